package lamp

import (
	"sort"
	"sync"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
)

// StateHook is invoked after a lamp's state changes, outside the
// engine's lock, with a copy of the new state.
type StateHook func(lampID string, state LampState)

// StreetHook is invoked after a street activation completes, outside
// the engine's lock, with the sorted set of affected lamp ids.
type StreetHook func(streetID string, affected []string)

// Engine owns the lamp/sensor topology and all lamp state. Every
// mutation goes through SetLampState or ActivateStreet so the event log
// stays a faithful record of what happened. All methods are safe for
// concurrent use.
type Engine struct {
	mu      sync.RWMutex
	lamps   map[string]*Lamp
	sensors map[string]*Sensor
	events  []Event

	hookMu      sync.RWMutex
	hooks       []StateHook
	streetHooks []StreetHook

	logger *logging.Logger
}

// NewEngine creates an empty engine and appends the initialisation
// event.
func NewEngine(logger *logging.Logger) *Engine {
	return &Engine{
		lamps:   make(map[string]*Lamp),
		sensors: make(map[string]*Sensor),
		events:  []Event{newInitializedEvent()},
		logger:  logger,
	}
}

// Load replaces the topology with records read from the store. Meant
// for startup, before any sessions or observers attach; it appends no
// events and fires no hooks.
func (e *Engine) Load(lamps []Lamp, sensors []Sensor) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lamps = make(map[string]*Lamp, len(lamps))
	for i := range lamps {
		l := lamps[i]
		l.State.Brightness = clampBrightness(l.State.Brightness)
		if l.Connections == nil {
			l.Connections = []string{}
		}
		e.lamps[l.ID] = &l
	}

	e.sensors = make(map[string]*Sensor, len(sensors))
	for i := range sensors {
		s := sensors[i]
		e.sensors[s.ID] = &s
	}

	e.logger.Info("topology loaded", "lamps", len(lamps), "sensors", len(sensors))
}

// OnStateUpdated registers a hook called after every lamp state change,
// including each lamp touched by a street activation.
func (e *Engine) OnStateUpdated(fn StateHook) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// OnStreetActivated registers a hook called after every street
// activation with the ids of the lamps it touched.
func (e *Engine) OnStreetActivated(fn StreetHook) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.streetHooks = append(e.streetHooks, fn)
}

// SetLampState merges the provided fields over the lamp's current
// state. Unknown ids are a silent no-op so the operation stays total.
// Brightness is clamped to 0-100.
func (e *Engine) SetLampState(id string, partial PartialState) {
	e.mu.Lock()
	l, ok := e.lamps[id]
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("state update for unknown lamp ignored", "lamp_id", id)
		return
	}

	applyPartial(l, partial)
	newState := l.State
	e.events = append(e.events, newStateUpdatedEvent(id, newState))
	e.mu.Unlock()

	e.logger.Debug("lamp state updated",
		"lamp_id", id, "on", newState.On, "brightness", newState.Brightness)
	e.fireHooks(id, newState)
}

// ActivateStreet applies the requested state to every lamp on the
// street, then spreads it across the connectivity graph up to
// SpilloverDepth hops, touching only lamps on other streets. It returns
// the sorted set of affected lamp ids and appends a single
// street_activated event.
func (e *Engine) ActivateStreet(streetID string, opts ActivateOptions) []string {
	partial := PartialState{
		On:         &opts.On,
		Brightness: opts.Brightness,
		Color:      opts.Color,
	}

	e.mu.Lock()
	affected := e.reach(streetID, opts.SpilloverDepth)
	updates := make(map[string]LampState, len(affected))
	for _, id := range affected {
		l := e.lamps[id]
		applyPartial(l, partial)
		updates[id] = l.State
	}
	e.events = append(e.events, newStreetActivatedEvent(streetID, affected))
	e.mu.Unlock()

	e.logger.Info("street activated",
		"street", streetID, "on", opts.On,
		"spillover_depth", opts.SpilloverDepth, "affected", len(affected))

	for _, id := range affected {
		e.fireHooks(id, updates[id])
	}
	e.fireStreetHooks(streetID, affected)
	return affected
}

// PreviewStreetActivation returns the sorted set of lamp ids a street
// activation at the given depth would touch, without mutating anything.
func (e *Engine) PreviewStreetActivation(streetID string, depth int) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reach(streetID, depth)
}

// reach computes the activation set: all lamps on the street plus
// cross-street lamps reachable within depth hops. Every hop consumes
// one unit of depth, including hops between lamps of the origin street.
// Caller must hold at least a read lock.
func (e *Engine) reach(streetID string, depth int) []string {
	adj := e.adjacency()

	visited := make(map[string]bool)
	var frontier []string
	affected := []string{}
	for id, l := range e.lamps {
		if l.Street == streetID {
			visited[id] = true
			frontier = append(frontier, id)
			affected = append(affected, id)
		}
	}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
				if e.lamps[nb].Street != streetID {
					affected = append(affected, nb)
				}
			}
		}
		frontier = next
	}

	sort.Strings(affected)
	return affected
}

// adjacency builds the undirected neighbour map from the declared
// connections. A connection listed by either endpoint links both;
// references to unknown ids are skipped.
func (e *Engine) adjacency() map[string][]string {
	adj := make(map[string][]string, len(e.lamps))
	seen := make(map[[2]string]bool)
	for id, l := range e.lamps {
		for _, nb := range l.Connections {
			if _, ok := e.lamps[nb]; !ok || nb == id {
				continue
			}
			key := pairKey(id, nb)
			if seen[key] {
				continue
			}
			seen[key] = true
			adj[id] = append(adj[id], nb)
			adj[nb] = append(adj[nb], id)
		}
	}
	return adj
}

// Graph returns the full topology as nodes plus deduplicated undirected
// edges, both sorted for deterministic output. Lamp edges are
// classified same_street or cross_street; each sensor with a resolvable
// linked lamp contributes a sensor_link edge.
func (e *Engine) Graph() Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nodes := make([]Node, 0, len(e.lamps))
	for _, l := range e.lamps {
		nodes = append(nodes, Node{ID: l.ID, Name: l.Name, Street: l.Street, State: l.State})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	seen := make(map[[2]string]bool)
	edges := []Edge{}
	for id, l := range e.lamps {
		for _, nb := range l.Connections {
			if _, ok := e.lamps[nb]; !ok || nb == id {
				continue
			}
			key := pairKey(id, nb)
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, Edge{From: key[0], To: key[1], Type: e.classifyEdge(id, nb)})
		}
	}
	for id, sn := range e.sensors {
		if sn.LinkedLampID == "" {
			continue
		}
		if _, ok := e.lamps[sn.LinkedLampID]; !ok {
			continue
		}
		edges = append(edges, Edge{From: id, To: sn.LinkedLampID, Type: EdgeSensorLink})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	return Graph{Nodes: nodes, Edges: edges}
}

// classifyEdge types a lamp pair: same_street only when both share a
// non-empty street. Caller must hold at least a read lock.
func (e *Engine) classifyEdge(a, b string) string {
	la, lb := e.lamps[a], e.lamps[b]
	if la.Street != "" && la.Street == lb.Street {
		return EdgeSameStreet
	}
	return EdgeCrossStreet
}

// Events returns a copy of the append-only event log.
func (e *Engine) Events() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Lamps returns deep copies of all lamps, sorted by id.
func (e *Engine) Lamps() []*Lamp {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Lamp, 0, len(e.lamps))
	for _, l := range e.lamps {
		out = append(out, l.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetLamp returns a deep copy of the lamp or ErrLampNotFound.
func (e *Engine) GetLamp(id string) (*Lamp, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.lamps[id]
	if !ok {
		return nil, ErrLampNotFound
	}
	return l.DeepCopy(), nil
}

// Sensors returns deep copies of all sensors, sorted by id.
func (e *Engine) Sensors() []*Sensor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Sensor, 0, len(e.sensors))
	for _, s := range e.sensors {
		out = append(out, s.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSensor returns a deep copy of the sensor or ErrSensorNotFound.
func (e *Engine) GetSensor(id string) (*Sensor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sensors[id]
	if !ok {
		return nil, ErrSensorNotFound
	}
	return s.DeepCopy(), nil
}

// EnsureLamp returns the lamp with the given id, creating an off,
// street-less placeholder if it does not exist yet. The second return
// reports whether a placeholder was created.
func (e *Engine) EnsureLamp(id string) (*Lamp, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.lamps[id]; ok {
		return l.DeepCopy(), false
	}
	l := &Lamp{
		ID:          id,
		Connections: []string{},
		State:       LampState{On: false, Brightness: 0, Color: "#ffffff"},
	}
	e.lamps[id] = l
	e.logger.Info("placeholder lamp created", "lamp_id", id)
	return l.DeepCopy(), true
}

// EnsureSensor returns the sensor with the given id, creating an
// unlinked placeholder if needed. The second return reports whether a
// placeholder was created.
func (e *Engine) EnsureSensor(id string) (*Sensor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sensors[id]; ok {
		return s.DeepCopy(), false
	}
	s := &Sensor{ID: id}
	e.sensors[id] = s
	e.logger.Info("placeholder sensor created", "sensor_id", id)
	return s.DeepCopy(), true
}

// HasLamp reports whether a lamp with the given id exists.
func (e *Engine) HasLamp(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.lamps[id]
	return ok
}

// HasSensor reports whether a sensor with the given id exists.
func (e *Engine) HasSensor(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sensors[id]
	return ok
}

// UpsertLampMetadata creates or updates a lamp's descriptive fields.
// State is untouched; a new lamp starts off. Returns a deep copy of the
// resulting lamp.
func (e *Engine) UpsertLampMetadata(id string, meta Metadata) *Lamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lamps[id]
	if !ok {
		l = &Lamp{ID: id, State: LampState{Color: "#ffffff"}}
		e.lamps[id] = l
	}
	l.Name = meta.Name
	l.Street = meta.Street
	if meta.Connections != nil {
		l.Connections = append([]string{}, meta.Connections...)
	} else if l.Connections == nil {
		l.Connections = []string{}
	}
	return l.DeepCopy()
}

// UpsertSensor creates or updates a sensor's descriptive fields and
// returns a deep copy of the result.
func (e *Engine) UpsertSensor(id string, meta SensorMetadata) *Sensor {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sensors[id]
	if !ok {
		s = &Sensor{ID: id}
		e.sensors[id] = s
	}
	s.Name = meta.Name
	s.Street = meta.Street
	s.LinkedLampID = meta.LinkedLampID
	return s.DeepCopy()
}

func (e *Engine) fireHooks(id string, state LampState) {
	e.hookMu.RLock()
	hooks := make([]StateHook, len(e.hooks))
	copy(hooks, e.hooks)
	e.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(id, state)
	}
}

func (e *Engine) fireStreetHooks(streetID string, affected []string) {
	e.hookMu.RLock()
	hooks := make([]StreetHook, len(e.streetHooks))
	copy(hooks, e.streetHooks)
	e.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(streetID, affected)
	}
}

func applyPartial(l *Lamp, p PartialState) {
	if p.On != nil {
		l.State.On = *p.On
	}
	if p.Brightness != nil {
		l.State.Brightness = clampBrightness(*p.Brightness)
	}
	if p.Color != nil {
		l.State.Color = *p.Color
	}
	if p.ColorMode != nil {
		l.State.ColorMode = *p.ColorMode
	}
}

func clampBrightness(b int) int {
	if b < 0 {
		return 0
	}
	if b > 100 {
		return 100
	}
	return b
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
