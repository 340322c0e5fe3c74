package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

const persistTimeout = 5 * time.Second

// Defaults carries the activation parameters applied when a device or
// sensor triggers a street without specifying any.
type Defaults struct {
	SpilloverDepth int
	PulseColor     string
}

// Manager tracks live device sessions: identity assignment, authorize
// binding with eviction, identity-checked command handling, and
// best-effort state pushes. At most one authorized session exists per
// id; a newer authorization evicts the older connection.
type Manager struct {
	engine   *lamp.Engine
	store    topology.Store
	cfg      config.WebSocketConfig
	defaults Defaults
	logger   *logging.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	byID     map[string]*Session
	connFns  []func(ids []string)
	closed   bool
}

// NewManager creates a device session manager.
func NewManager(engine *lamp.Engine, store topology.Store, cfg config.WebSocketConfig, defaults Defaults, logger *logging.Logger) *Manager {
	return &Manager{
		engine:   engine,
		store:    store,
		cfg:      cfg,
		defaults: defaults,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		byID:     make(map[string]*Session),
	}
}

// HandleConnection adopts an upgraded device connection and starts its
// read/write pumps.
func (m *Manager) HandleConnection(conn *websocket.Conn) {
	s := &Session{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
	}
	m.register(s)
	go s.writePump(m.cfg)
	go s.readPump(m.cfg)
}

// OnConnectivityChange registers a callback invoked with the sorted set
// of live authorized ids whenever it changes.
func (m *Manager) OnConnectivityChange(fn func(ids []string)) {
	m.mu.Lock()
	m.connFns = append(m.connFns, fn)
	m.mu.Unlock()
}

// ConnectedIDs returns the sorted ids of all live authorized sessions.
func (m *Manager) ConnectedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectedIDsLocked()
}

func (m *Manager) connectedIDsLocked() []string {
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PushState sends set_state to the lamp's session, if one is live.
// Intended as an engine state-updated hook; delivery is best-effort.
func (m *Manager) PushState(lampID string, state lamp.LampState) {
	m.mu.RLock()
	s := m.byID[lampID]
	m.mu.RUnlock()
	if s == nil {
		return
	}
	st := state
	s.sendReply(Reply{Type: TypeSetState, ID: lampID, State: &st})
}

// PushActivated sends activated with the current state to every
// affected lamp that has a live session.
func (m *Manager) PushActivated(lampIDs []string) {
	for _, id := range lampIDs {
		m.mu.RLock()
		s := m.byID[id]
		m.mu.RUnlock()
		if s == nil {
			continue
		}
		l, err := m.engine.GetLamp(id)
		if err != nil {
			continue
		}
		s.sendReply(Reply{Type: TypeActivated, ID: id, State: &l.State})
	}
}

// Close evicts every session. Used at shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for s := range m.sessions {
		close(s.send)
		if s.conn != nil {
			s.conn.Close()
		}
		delete(m.sessions, s)
	}
	m.byID = make(map[string]*Session)
	m.mu.Unlock()
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s] = struct{}{}
	total := len(m.sessions)
	m.mu.Unlock()
	m.logger.Debug("device connected", "sessions", total)
}

// unregister removes a session on disconnect. Only the goroutine that
// removes the session from the map closes its send channel, preventing
// double-close panics when eviction and disconnect race.
func (m *Manager) unregister(s *Session) {
	id, _ := s.identity()

	m.mu.Lock()
	_, existed := m.sessions[s]
	delete(m.sessions, s)
	changed := false
	if id != "" && m.byID[id] == s {
		delete(m.byID, id)
		changed = true
	}
	ids := m.connectedIDsLocked()
	m.mu.Unlock()

	if existed {
		close(s.send)
	}
	m.logger.Debug("device disconnected", "device_id", id)
	if changed {
		m.notifyConnectivity(ids)
	}
}

func (m *Manager) notifyConnectivity(ids []string) {
	m.mu.RLock()
	fns := make([]func([]string), len(m.connFns))
	copy(fns, m.connFns)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(ids)
	}
}

// handle processes one inbound device message. Messages on a single
// connection are processed in arrival order by the read pump.
func (m *Manager) handle(s *Session, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendReply(errorReply(CodeUnknownType, "invalid message"))
		return
	}

	switch msg.Type {
	case TypeRequestID:
		m.handleRequestID(s, msg)
	case TypeAuthorize:
		m.handleAuthorize(s, msg)
	case TypeState:
		m.handleState(s, msg)
	case TypeActivateStreet:
		m.handleActivateStreet(s, msg)
	case TypeSensorActivate:
		m.handleSensorActivate(s, msg)
	default:
		s.sendReply(errorReply(CodeUnknownType, "unknown message type: "+msg.Type))
	}
}

// handleRequestID mints a fresh stable id, registers a placeholder for
// it, and returns it to the device. The session stays unauthenticated
// until it authorizes with the id.
func (m *Manager) handleRequestID(s *Session, msg Message) {
	kind := normaliseKind(msg.Kind)
	id := m.newID()
	m.ensureKnown(id, kind)

	m.logger.Info("device id assigned", "device_id", id, "kind", kind)
	s.sendReply(Reply{Type: TypeAssignedID, ID: id})
}

// handleAuthorize binds the session to an id. Unknown ids get a
// placeholder (the lazy-creation handshake); a prior session holding
// the same id is evicted, newest wins.
func (m *Manager) handleAuthorize(s *Session, msg Message) {
	if msg.ID == "" {
		s.sendReply(errorReply(CodeUnauthorizedID, "id is required"))
		return
	}

	kind := msg.Kind
	if kind == "" {
		// Infer from the known topology; fresh ids default to lamp.
		if m.engine.HasSensor(msg.ID) && !m.engine.HasLamp(msg.ID) {
			kind = KindSensor
		} else {
			kind = KindLamp
		}
	}
	kind = normaliseKind(kind)
	m.ensureKnown(msg.ID, kind)

	prevID, _ := s.identity()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if old := m.byID[msg.ID]; old != nil && old != s {
		delete(m.sessions, old)
		delete(m.byID, msg.ID)
		close(old.send)
		if old.conn != nil {
			old.conn.Close()
		}
		m.logger.Info("device session evicted by newer authorization", "device_id", msg.ID)
	}
	if prevID != "" && prevID != msg.ID && m.byID[prevID] == s {
		delete(m.byID, prevID)
	}
	m.byID[msg.ID] = s
	ids := m.connectedIDsLocked()
	m.mu.Unlock()

	s.setIdentity(msg.ID, kind)
	m.logger.Info("device authorized", "device_id", msg.ID, "kind", kind)
	s.sendReply(Reply{Type: TypeAuthorized, ID: msg.ID})
	m.notifyConnectivity(ids)
}

// handleState applies a device-reported lamp state. Only the session's
// own id is accepted; mismatches are rejected, never applied.
func (m *Manager) handleState(s *Session, msg Message) {
	id, kind := s.identity()
	if id == "" || msg.ID != id {
		s.sendReply(errorReply(CodeUnauthorizedID, "id does not match session"))
		return
	}
	if kind != KindLamp || msg.State == nil {
		return
	}
	m.engine.SetLampState(id, *msg.State)
}

// handleActivateStreet activates the street of the session's own lamp
// using the configured defaults.
func (m *Manager) handleActivateStreet(s *Session, msg Message) {
	id, _ := s.identity()
	if id == "" || msg.ID != id {
		s.sendReply(errorReply(CodeUnauthorizedID, "id does not match session"))
		return
	}

	l, err := m.engine.GetLamp(id)
	if err != nil || l.Street == "" {
		s.sendReply(errorReply(CodeNoStreet, "lamp has no street assigned"))
		return
	}

	affected := m.engine.ActivateStreet(l.Street, m.activationOptions())
	s.sendReply(Reply{Type: TypeStreetActivated, Street: l.Street})
	m.PushActivated(affected)
}

// handleSensorActivate activates the street of the sensor's linked
// lamp.
func (m *Manager) handleSensorActivate(s *Session, msg Message) {
	id, _ := s.identity()
	if id == "" || msg.ID != id {
		s.sendReply(errorReply(CodeUnauthorizedID, "id does not match session"))
		return
	}

	sn, err := m.engine.GetSensor(id)
	if err != nil || sn.LinkedLampID == "" {
		s.sendReply(errorReply(CodeNoLink, "sensor has no linked lamp"))
		return
	}
	l, err := m.engine.GetLamp(sn.LinkedLampID)
	if err != nil {
		s.sendReply(errorReply(CodeNoLink, "linked lamp does not exist"))
		return
	}
	if l.Street == "" {
		s.sendReply(errorReply(CodeNoStreet, "linked lamp has no street assigned"))
		return
	}

	affected := m.engine.ActivateStreet(l.Street, m.activationOptions())
	s.sendReply(Reply{Type: TypeStreetActivated, Street: l.Street})
	m.PushActivated(affected)
}

func (m *Manager) activationOptions() lamp.ActivateOptions {
	opts := lamp.ActivateOptions{On: true, SpilloverDepth: m.defaults.SpilloverDepth}
	if m.defaults.PulseColor != "" {
		color := m.defaults.PulseColor
		opts.Color = &color
	}
	return opts
}

// newID mints an id that collides with neither the known topology nor
// any live session.
func (m *Manager) newID() string {
	for {
		id := uuid.NewString()
		if m.engine.HasLamp(id) || m.engine.HasSensor(id) {
			continue
		}
		m.mu.RLock()
		_, live := m.byID[id]
		m.mu.RUnlock()
		if !live {
			return id
		}
	}
}

// ensureKnown creates and persists a placeholder record for the id if
// the topology does not know it yet.
func (m *Manager) ensureKnown(id, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if kind == KindSensor {
		if _, created := m.engine.EnsureSensor(id); created {
			if err := m.store.UpsertSensor(ctx, id, lamp.SensorMetadata{}); err != nil {
				m.logger.Error("failed to persist placeholder sensor", "sensor_id", id, "error", err)
			}
		}
		return
	}
	if l, created := m.engine.EnsureLamp(id); created {
		if err := m.store.UpsertLampState(ctx, id, l.State, nil); err != nil {
			m.logger.Error("failed to persist placeholder lamp", "lamp_id", id, "error", err)
		}
	}
}

func normaliseKind(kind string) string {
	if kind == KindSensor {
		return KindSensor
	}
	return KindLamp
}
