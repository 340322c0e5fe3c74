package autooff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

// memoryStore is an in-memory topology.Store recording state writes.
type memoryStore struct {
	mu        sync.Mutex
	states    map[string]lamp.LampState
	deadlines map[string]time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		states:    make(map[string]lamp.LampState),
		deadlines: make(map[string]time.Time),
	}
}

func (m *memoryStore) Load(context.Context) ([]lamp.Lamp, []lamp.Sensor, error) {
	return nil, nil, nil
}

func (m *memoryStore) UpsertLampState(_ context.Context, id string, state lamp.LampState, offAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
	if offAt != nil {
		m.deadlines[id] = *offAt
	} else {
		delete(m.deadlines, id)
	}
	return nil
}

func (m *memoryStore) UpsertLampMetadata(context.Context, string, lamp.Metadata) error { return nil }
func (m *memoryStore) UpsertSensor(context.Context, string, lamp.SensorMetadata) error { return nil }

func (m *memoryStore) LoadDeadlines(context.Context) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.deadlines))
	for k, v := range m.deadlines {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) LoadPositions(context.Context) (map[string]topology.Position, error) {
	return map[string]topology.Position{}, nil
}

func (m *memoryStore) SavePositions(context.Context, map[string]topology.Position) error {
	return nil
}

func (m *memoryStore) storedDeadline(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deadlines[id]
	return d, ok
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func newTestSetup(t *testing.T, durationSeconds int) (*lamp.Engine, *memoryStore, *Scheduler) {
	t.Helper()
	engine := lamp.NewEngine(testLogger())
	engine.Load([]lamp.Lamp{{ID: "a", Street: "main"}}, nil)

	store := newMemoryStore()
	sched := New(engine, store, config.AutoOffConfig{
		Duration: durationSeconds,
		Color:    "#ffffff",
	}, testLogger())
	engine.OnStateUpdated(sched.HandleStateUpdate)
	t.Cleanup(sched.Stop)
	return engine, store, sched
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func lampOn(t *testing.T, e *lamp.Engine, id string) bool {
	t.Helper()
	l, err := e.GetLamp(id)
	if err != nil {
		t.Fatalf("GetLamp: %v", err)
	}
	return l.State.On
}

func turnOn(e *lamp.Engine, id string) {
	on := true
	b := 100
	e.SetLampState(id, lamp.PartialState{On: &on, Brightness: &b})
}

func TestFiresAfterDuration(t *testing.T) {
	engine, store, _ := newTestSetup(t, 1)
	turnOn(engine, "a")

	if _, ok := store.storedDeadline("a"); !ok {
		t.Fatal("deadline not persisted after activation")
	}

	waitFor(t, 3*time.Second, func() bool { return !lampOn(t, engine, "a") })

	l, _ := engine.GetLamp("a")
	if l.State.Brightness != 0 || l.State.Color != "#ffffff" {
		t.Errorf("forced-off state = %+v, want brightness 0 neutral colour", l.State)
	}
	if _, ok := store.storedDeadline("a"); ok {
		t.Error("deadline still persisted after firing")
	}
}

func TestOffCancelsDeadline(t *testing.T) {
	engine, store, sched := newTestSetup(t, 60)
	turnOn(engine, "a")

	if _, ok := sched.Deadline("a"); !ok {
		t.Fatal("no deadline armed")
	}

	off := false
	engine.SetLampState("a", lamp.PartialState{On: &off})

	if _, ok := sched.Deadline("a"); ok {
		t.Error("deadline survived lamp turning off")
	}
	if _, ok := store.storedDeadline("a"); ok {
		t.Error("persisted deadline survived lamp turning off")
	}
}

func TestRearmReplacesDeadline(t *testing.T) {
	engine, _, sched := newTestSetup(t, 60)
	turnOn(engine, "a")
	first, _ := sched.Deadline("a")

	time.Sleep(20 * time.Millisecond)
	turnOn(engine, "a")
	second, _ := sched.Deadline("a")

	if !second.After(first) {
		t.Errorf("rearmed deadline %v not after original %v", second, first)
	}
}

func TestDisabledSchedulerOnlyPersists(t *testing.T) {
	engine, store, sched := newTestSetup(t, 0)
	turnOn(engine, "a")

	if _, ok := sched.Deadline("a"); ok {
		t.Error("disabled scheduler armed a deadline")
	}
	store.mu.Lock()
	_, persisted := store.states["a"]
	store.mu.Unlock()
	if !persisted {
		t.Error("disabled scheduler skipped state persistence")
	}
}

func TestResumePastDeadlineFiresImmediately(t *testing.T) {
	engine, store, sched := newTestSetup(t, 60)

	// Simulate a lamp left on with a deadline that expired during downtime.
	on := true
	engine.SetLampState("a", lamp.PartialState{On: &on})
	past := time.Now().Add(-time.Minute).UTC()
	if err := store.UpsertLampState(context.Background(), "a", lamp.LampState{On: true}, &past); err != nil {
		t.Fatal(err)
	}

	if err := sched.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if lampOn(t, engine, "a") {
		t.Error("expired deadline did not fire on resume")
	}
}

func TestResumeFutureDeadlineRearms(t *testing.T) {
	engine, store, sched := newTestSetup(t, 60)

	on := true
	engine.SetLampState("a", lamp.PartialState{On: &on})
	future := time.Now().Add(time.Hour).UTC()
	if err := store.UpsertLampState(context.Background(), "a", lamp.LampState{On: true}, &future); err != nil {
		t.Fatal(err)
	}

	if err := sched.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !lampOn(t, engine, "a") {
		t.Error("future deadline fired early")
	}
	if d, ok := sched.Deadline("a"); !ok || !d.Equal(future) {
		t.Errorf("deadline = %v ok=%v, want %v", d, ok, future)
	}
}
