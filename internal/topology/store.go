package topology

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
)

// Position is an externally supplied layout coordinate for one node in
// the UI graph. The engine never reads positions; they exist purely for
// observers.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Store is the durable topology store contract. Writes are
// last-write-wins; the caller is responsible for serialising writers.
type Store interface {
	// Load reads the full lamp and sensor topology at startup.
	Load(ctx context.Context) ([]lamp.Lamp, []lamp.Sensor, error)

	// UpsertLampState writes a lamp's last-known state and its pending
	// auto-off deadline. A nil offAt clears any stored deadline. Inserts
	// a placeholder row if the lamp is not stored yet.
	UpsertLampState(ctx context.Context, id string, state lamp.LampState, offAt *time.Time) error

	// UpsertLampMetadata writes a lamp's descriptive fields without
	// touching its stored state.
	UpsertLampMetadata(ctx context.Context, id string, meta lamp.Metadata) error

	// UpsertSensor writes a sensor record.
	UpsertSensor(ctx context.Context, id string, meta lamp.SensorMetadata) error

	// LoadDeadlines returns every stored auto-off deadline.
	LoadDeadlines(ctx context.Context) (map[string]time.Time, error)

	// LoadPositions returns the stored UI layout positions.
	LoadPositions(ctx context.Context) (map[string]Position, error)

	// SavePositions replaces the stored UI layout positions.
	SavePositions(ctx context.Context, positions map[string]Position) error
}

// SQLiteStore implements Store on the embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed topology store. The db
// parameter should be an open connection with migrations applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads the full lamp and sensor topology.
func (s *SQLiteStore) Load(ctx context.Context) ([]lamp.Lamp, []lamp.Sensor, error) {
	lamps, err := s.loadLamps(ctx)
	if err != nil {
		return nil, nil, err
	}
	sensors, err := s.loadSensors(ctx)
	if err != nil {
		return nil, nil, err
	}
	return lamps, sensors, nil
}

func (s *SQLiteStore) loadLamps(ctx context.Context) ([]lamp.Lamp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, street, connections, state FROM lamps ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying lamps: %w", err)
	}
	defer rows.Close()

	var lamps []lamp.Lamp
	for rows.Next() {
		var l lamp.Lamp
		var connections, state string
		if err := rows.Scan(&l.ID, &l.Name, &l.Street, &connections, &state); err != nil {
			return nil, fmt.Errorf("scanning lamp: %w", err)
		}
		if err := json.Unmarshal([]byte(connections), &l.Connections); err != nil {
			return nil, fmt.Errorf("decoding connections for lamp %s: %w", l.ID, err)
		}
		if err := json.Unmarshal([]byte(state), &l.State); err != nil {
			return nil, fmt.Errorf("decoding state for lamp %s: %w", l.ID, err)
		}
		if l.Connections == nil {
			l.Connections = []string{}
		}
		lamps = append(lamps, l)
	}
	return lamps, rows.Err()
}

func (s *SQLiteStore) loadSensors(ctx context.Context) ([]lamp.Sensor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, street, linked_lamp_id FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []lamp.Sensor
	for rows.Next() {
		var sn lamp.Sensor
		if err := rows.Scan(&sn.ID, &sn.Name, &sn.Street, &sn.LinkedLampID); err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors = append(sensors, sn)
	}
	return sensors, rows.Err()
}

// UpsertLampState writes a lamp's state and auto-off deadline.
func (s *SQLiteStore) UpsertLampState(ctx context.Context, id string, state lamp.LampState, offAt *time.Time) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state for lamp %s: %w", id, err)
	}

	var off sql.NullInt64
	if offAt != nil {
		off = sql.NullInt64{Int64: offAt.Unix(), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lamps (id, name, street, connections, state, off_at, created_at, updated_at)
		VALUES (?, '', '', '[]', ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			off_at = excluded.off_at,
			updated_at = excluded.updated_at`,
		id, string(encoded), off, now, now)
	if err != nil {
		return fmt.Errorf("upserting state for lamp %s: %w", id, err)
	}
	return nil
}

// UpsertLampMetadata writes a lamp's descriptive fields, preserving any
// stored state.
func (s *SQLiteStore) UpsertLampMetadata(ctx context.Context, id string, meta lamp.Metadata) error {
	connections := meta.Connections
	if connections == nil {
		connections = []string{}
	}
	encoded, err := json.Marshal(connections)
	if err != nil {
		return fmt.Errorf("encoding connections for lamp %s: %w", id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lamps (id, name, street, connections, state, off_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, '{"on":false,"brightness":0,"color":"#ffffff"}', NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			street = excluded.street,
			connections = excluded.connections,
			updated_at = excluded.updated_at`,
		id, meta.Name, meta.Street, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("upserting metadata for lamp %s: %w", id, err)
	}
	return nil
}

// UpsertSensor writes a sensor record.
func (s *SQLiteStore) UpsertSensor(ctx context.Context, id string, meta lamp.SensorMetadata) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sensors (id, name, street, linked_lamp_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			street = excluded.street,
			linked_lamp_id = excluded.linked_lamp_id,
			updated_at = excluded.updated_at`,
		id, meta.Name, meta.Street, meta.LinkedLampID, now, now)
	if err != nil {
		return fmt.Errorf("upserting sensor %s: %w", id, err)
	}
	return nil
}

// LoadDeadlines returns every stored auto-off deadline keyed by lamp id.
func (s *SQLiteStore) LoadDeadlines(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, off_at FROM lamps WHERE off_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying deadlines: %w", err)
	}
	defer rows.Close()

	deadlines := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var offAt int64
		if err := rows.Scan(&id, &offAt); err != nil {
			return nil, fmt.Errorf("scanning deadline: %w", err)
		}
		deadlines[id] = time.Unix(offAt, 0).UTC()
	}
	return deadlines, rows.Err()
}

// LoadPositions returns the stored UI layout positions.
func (s *SQLiteStore) LoadPositions(ctx context.Context) (map[string]Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, x, y FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]Position)
	for rows.Next() {
		var id string
		var p Position
		if err := rows.Scan(&id, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions[id] = p
	}
	return positions, rows.Err()
}

// SavePositions replaces the stored UI layout positions in a single
// transaction.
func (s *SQLiteStore) SavePositions(ctx context.Context, positions map[string]Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning positions transaction: %w", err)
	}
	//nolint:errcheck // Rollback after commit is a no-op
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clearing positions: %w", err)
	}
	for id, p := range positions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO positions (id, x, y) VALUES (?, ?, ?)`, id, p.X, p.Y); err != nil {
			return fmt.Errorf("inserting position for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing positions: %w", err)
	}
	return nil
}
