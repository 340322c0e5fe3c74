package topology

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/database"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	_ "github.com/svenyesyes/smart-lantaarn-server/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestLoadEmpty(t *testing.T) {
	store := newTestStore(t)
	lamps, sensors, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lamps) != 0 || len(sensors) != 0 {
		t.Errorf("fresh store returned %d lamps, %d sensors", len(lamps), len(sensors))
	}
}

func TestUpsertAndLoadLamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := lamp.Metadata{Name: "Corner", Street: "main", Connections: []string{"b", "c"}}
	if err := store.UpsertLampMetadata(ctx, "a", meta); err != nil {
		t.Fatalf("UpsertLampMetadata: %v", err)
	}

	state := lamp.LampState{On: true, Brightness: 75, Color: "#60a5fa"}
	if err := store.UpsertLampState(ctx, "a", state, nil); err != nil {
		t.Fatalf("UpsertLampState: %v", err)
	}

	lamps, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lamps) != 1 {
		t.Fatalf("lamp count = %d, want 1", len(lamps))
	}
	got := lamps[0]
	if got.ID != "a" || got.Name != "Corner" || got.Street != "main" {
		t.Errorf("metadata round trip failed: %+v", got)
	}
	if len(got.Connections) != 2 || got.Connections[0] != "b" {
		t.Errorf("connections = %v, want [b c]", got.Connections)
	}
	if got.State != state {
		t.Errorf("state = %+v, want %+v", got.State, state)
	}
}

func TestUpsertLampStateCreatesPlaceholder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := lamp.LampState{On: true, Brightness: 50, Color: "#ffffff"}
	if err := store.UpsertLampState(ctx, "lazy", state, nil); err != nil {
		t.Fatalf("UpsertLampState: %v", err)
	}

	lamps, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lamps) != 1 || lamps[0].Street != "" {
		t.Fatalf("placeholder round trip failed: %+v", lamps)
	}
	if lamps[0].State != state {
		t.Errorf("state = %+v, want %+v", lamps[0].State, state)
	}
}

func TestMetadataUpsertPreservesState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := lamp.LampState{On: true, Brightness: 90, Color: "#ff0000"}
	if err := store.UpsertLampState(ctx, "a", state, nil); err != nil {
		t.Fatalf("UpsertLampState: %v", err)
	}
	if err := store.UpsertLampMetadata(ctx, "a", lamp.Metadata{Street: "side"}); err != nil {
		t.Fatalf("UpsertLampMetadata: %v", err)
	}

	lamps, _, _ := store.Load(ctx)
	if lamps[0].State != state {
		t.Errorf("metadata upsert clobbered state: %+v", lamps[0].State)
	}
	if lamps[0].Street != "side" {
		t.Errorf("street = %q, want side", lamps[0].Street)
	}
}

func TestDeadlines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	offAt := time.Now().Add(90 * time.Second).UTC().Truncate(time.Second)
	state := lamp.LampState{On: true, Brightness: 100, Color: "#ffffff"}
	if err := store.UpsertLampState(ctx, "a", state, &offAt); err != nil {
		t.Fatalf("UpsertLampState with deadline: %v", err)
	}
	if err := store.UpsertLampState(ctx, "b", lamp.LampState{}, nil); err != nil {
		t.Fatalf("UpsertLampState: %v", err)
	}

	deadlines, err := store.LoadDeadlines(ctx)
	if err != nil {
		t.Fatalf("LoadDeadlines: %v", err)
	}
	if len(deadlines) != 1 {
		t.Fatalf("deadline count = %d, want 1", len(deadlines))
	}
	if got := deadlines["a"]; !got.Equal(offAt) {
		t.Errorf("deadline = %v, want %v", got, offAt)
	}

	// Clearing: a state write with nil offAt removes the deadline.
	if err := store.UpsertLampState(ctx, "a", lamp.LampState{}, nil); err != nil {
		t.Fatalf("UpsertLampState: %v", err)
	}
	deadlines, _ = store.LoadDeadlines(ctx)
	if len(deadlines) != 0 {
		t.Errorf("deadline not cleared: %v", deadlines)
	}
}

func TestSensors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := lamp.SensorMetadata{Name: "Gate", Street: "main", LinkedLampID: "a"}
	if err := store.UpsertSensor(ctx, "s1", meta); err != nil {
		t.Fatalf("UpsertSensor: %v", err)
	}
	meta.LinkedLampID = "b"
	if err := store.UpsertSensor(ctx, "s1", meta); err != nil {
		t.Fatalf("UpsertSensor update: %v", err)
	}

	_, sensors, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sensors) != 1 {
		t.Fatalf("sensor count = %d, want 1", len(sensors))
	}
	if sensors[0].LinkedLampID != "b" {
		t.Errorf("linked lamp = %q, want b", sensors[0].LinkedLampID)
	}
}

func TestPositions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := map[string]Position{
		"a": {X: 10.5, Y: -3},
		"b": {X: 0, Y: 200},
	}
	if err := store.SavePositions(ctx, want); err != nil {
		t.Fatalf("SavePositions: %v", err)
	}

	got, err := store.LoadPositions(ctx)
	if err != nil {
		t.Fatalf("LoadPositions: %v", err)
	}
	if len(got) != 2 || got["a"] != want["a"] || got["b"] != want["b"] {
		t.Errorf("positions = %v, want %v", got, want)
	}

	// Save replaces, never merges.
	if err := store.SavePositions(ctx, map[string]Position{"c": {X: 1, Y: 1}}); err != nil {
		t.Fatalf("SavePositions: %v", err)
	}
	got, _ = store.LoadPositions(ctx)
	if len(got) != 1 {
		t.Errorf("replacement save kept stale rows: %v", got)
	}
}
