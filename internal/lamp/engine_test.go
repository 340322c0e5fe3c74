package lamp

import (
	"reflect"
	"testing"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// newTestEngine builds the reference topology used throughout:
//
//	a(main) - b(main) - c(side) - d(side) - e(other)
//
// plus f(other), which is not connected to anything.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(testLogger())
	e.Load([]Lamp{
		{ID: "a", Street: "main", Connections: []string{"b"}},
		{ID: "b", Street: "main", Connections: []string{"a", "c"}},
		{ID: "c", Street: "side", Connections: []string{"b", "d"}},
		{ID: "d", Street: "side", Connections: []string{"c", "e"}},
		{ID: "e", Street: "other", Connections: []string{"d"}},
		{ID: "f", Street: "other"},
	}, []Sensor{
		{ID: "s1", LinkedLampID: "a"},
	})
	return e
}

func TestActivateStreetSpillover(t *testing.T) {
	tests := []struct {
		name   string
		street string
		depth  int
		want   []string
	}{
		{"no spillover", "main", 0, []string{"a", "b"}},
		{"one hop crosses into side", "main", 1, []string{"a", "b", "c"}},
		{"two hops", "main", 2, []string{"a", "b", "c", "d"}},
		{"three hops reach other street", "main", 3, []string{"a", "b", "c", "d", "e"}},
		{"depth beyond graph", "main", 10, []string{"a", "b", "c", "d", "e"}},
		{"side origin spills both ways", "side", 1, []string{"b", "c", "d", "e"}},
		{"unknown street", "nowhere", 5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			got := e.ActivateStreet(tt.street, ActivateOptions{On: true, SpilloverDepth: tt.depth})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("affected = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActivateStreetAppliesState(t *testing.T) {
	e := newTestEngine(t)
	brightness := 80
	color := "#60a5fa"
	affected := e.ActivateStreet("main", ActivateOptions{
		On: true, Brightness: &brightness, Color: &color, SpilloverDepth: 1,
	})

	for _, id := range affected {
		l, err := e.GetLamp(id)
		if err != nil {
			t.Fatalf("GetLamp(%q): %v", id, err)
		}
		if !l.State.On || l.State.Brightness != 80 || l.State.Color != "#60a5fa" {
			t.Errorf("lamp %q state = %+v, want on/80/#60a5fa", id, l.State)
		}
	}

	// Lamps outside the reachable set stay untouched.
	for _, id := range []string{"d", "e", "f"} {
		l, _ := e.GetLamp(id)
		if l.State.On {
			t.Errorf("lamp %q changed despite being outside spillover range", id)
		}
	}
}

func TestActivateStreetPartialMerge(t *testing.T) {
	e := newTestEngine(t)
	b := 55
	c := "#ff0000"
	e.SetLampState("a", PartialState{Brightness: &b, Color: &c})

	// Activation without brightness/colour keeps each lamp's current values.
	e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 0})
	l, _ := e.GetLamp("a")
	if l.State.Brightness != 55 || l.State.Color != "#ff0000" {
		t.Errorf("state = %+v, want brightness 55 colour #ff0000 preserved", l.State)
	}
	if !l.State.On {
		t.Error("lamp should be on after activation")
	}
}

func TestPreviewMatchesActivationAndDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	preview := e.PreviewStreetActivation("main", 2)

	for _, l := range e.Lamps() {
		if l.State.On {
			t.Fatalf("preview mutated lamp %q", l.ID)
		}
	}
	if len(e.Events()) != 1 {
		t.Fatalf("preview appended events: %d", len(e.Events()))
	}

	affected := e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 2})
	if !reflect.DeepEqual(preview, affected) {
		t.Errorf("preview = %v, activation = %v", preview, affected)
	}
}

func TestActivateStreetIdempotent(t *testing.T) {
	e := newTestEngine(t)
	first := e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 1})
	second := e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 1})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat activation affected %v, want %v", second, first)
	}
}

func TestSetLampState(t *testing.T) {
	t.Run("merges only provided fields", func(t *testing.T) {
		e := newTestEngine(t)
		on := true
		b := 40
		e.SetLampState("a", PartialState{On: &on, Brightness: &b})

		c := "#00ff00"
		e.SetLampState("a", PartialState{Color: &c})

		l, _ := e.GetLamp("a")
		if !l.State.On || l.State.Brightness != 40 || l.State.Color != "#00ff00" {
			t.Errorf("state = %+v, want on/40/#00ff00", l.State)
		}
	})

	t.Run("clamps brightness", func(t *testing.T) {
		e := newTestEngine(t)
		for _, tc := range []struct{ in, want int }{{150, 100}, {-5, 0}, {100, 100}, {0, 0}} {
			e.SetLampState("a", PartialState{Brightness: &tc.in})
			l, _ := e.GetLamp("a")
			if l.State.Brightness != tc.want {
				t.Errorf("brightness %d clamped to %d, want %d", tc.in, l.State.Brightness, tc.want)
			}
		}
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		e := newTestEngine(t)
		on := true
		before := len(e.Events())
		e.SetLampState("ghost", PartialState{On: &on})
		if len(e.Events()) != before {
			t.Error("no-op update appended an event")
		}
	})
}

func TestEventLog(t *testing.T) {
	e := newTestEngine(t)
	events := e.Events()
	if len(events) != 1 || events[0].Type != EventEngineInitialized {
		t.Fatalf("fresh engine events = %v, want single engine_initialized", events)
	}

	on := true
	e.SetLampState("a", PartialState{On: &on})
	e.ActivateStreet("side", ActivateOptions{On: true, SpilloverDepth: 0})

	events = e.Events()
	if len(events) != 3 {
		t.Fatalf("event count = %d, want 3", len(events))
	}
	if events[1].Type != EventLampStateUpdated || events[1].LampID != "a" || events[1].State == nil || !events[1].State.On {
		t.Errorf("unexpected state event: %+v", events[1])
	}
	if events[2].Type != EventStreetActivated || events[2].StreetID != "side" {
		t.Errorf("unexpected street event: %+v", events[2])
	}
	if !reflect.DeepEqual(events[2].AffectedLampIDs, []string{"c", "d"}) {
		t.Errorf("affected ids = %v, want [c d]", events[2].AffectedLampIDs)
	}
}

func TestStateHooks(t *testing.T) {
	e := newTestEngine(t)
	var calls []string
	e.OnStateUpdated(func(id string, state LampState) {
		calls = append(calls, id)
		if !state.On {
			t.Errorf("hook for %q received off state", id)
		}
	})

	on := true
	e.SetLampState("a", PartialState{On: &on})
	e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 1})

	want := []string{"a", "a", "b", "c"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("hook calls = %v, want %v", calls, want)
	}
}

func TestStreetHooks(t *testing.T) {
	e := newTestEngine(t)
	var gotStreet string
	var gotAffected []string
	e.OnStreetActivated(func(street string, affected []string) {
		gotStreet = street
		gotAffected = affected
	})

	on := true
	e.SetLampState("a", PartialState{On: &on}) // must not fire the street hook

	e.ActivateStreet("main", ActivateOptions{On: true, SpilloverDepth: 1})
	if gotStreet != "main" {
		t.Errorf("street = %q, want %q", gotStreet, "main")
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(gotAffected, want) {
		t.Errorf("affected = %v, want %v", gotAffected, want)
	}
}

func TestGraphEdgeDeduplication(t *testing.T) {
	e := newTestEngine(t)
	g := e.Graph()

	if len(g.Nodes) != 6 {
		t.Fatalf("node count = %d, want 6", len(g.Nodes))
	}
	// a-b, b-c, c-d, d-e: each listed by both endpoints, reported once.
	// Pairs sharing a street are same_street, street boundaries are
	// cross_street, and sensor s1 contributes its link to a.
	want := []Edge{
		{From: "a", To: "b", Type: EdgeSameStreet},
		{From: "b", To: "c", Type: EdgeCrossStreet},
		{From: "c", To: "d", Type: EdgeSameStreet},
		{From: "d", To: "e", Type: EdgeCrossStreet},
		{From: "s1", To: "a", Type: EdgeSensorLink},
	}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
}

func TestGraphEdgeTypeRequiresNonEmptyStreet(t *testing.T) {
	// Two placeholder lamps with no street never classify as
	// same_street even though the streets compare equal.
	e := NewEngine(testLogger())
	e.Load([]Lamp{
		{ID: "x", Connections: []string{"y"}},
		{ID: "y"},
	}, nil)

	want := []Edge{{From: "x", To: "y", Type: EdgeCrossStreet}}
	if g := e.Graph(); !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
}

func TestGraphSensorLinks(t *testing.T) {
	e := NewEngine(testLogger())
	e.Load(
		[]Lamp{{ID: "x", Street: "main"}},
		[]Sensor{
			{ID: "s-linked", LinkedLampID: "x"},
			{ID: "s-unlinked"},
			{ID: "s-dangling", LinkedLampID: "missing"},
		},
	)

	// Only the sensor whose link resolves to a known lamp appears.
	want := []Edge{{From: "s-linked", To: "x", Type: EdgeSensorLink}}
	if g := e.Graph(); !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
}

func TestGraphAsymmetricConnectionStillLinks(t *testing.T) {
	// Only one endpoint declares the connection; the edge and the
	// spillover path must exist anyway.
	e := NewEngine(testLogger())
	e.Load([]Lamp{
		{ID: "x", Street: "main", Connections: []string{"y"}},
		{ID: "y", Street: "side"},
	}, nil)

	g := e.Graph()
	if !reflect.DeepEqual(g.Edges, []Edge{{From: "x", To: "y", Type: EdgeCrossStreet}}) {
		t.Fatalf("edges = %v, want single x-y edge", g.Edges)
	}

	affected := e.ActivateStreet("side", ActivateOptions{On: true, SpilloverDepth: 1})
	if !reflect.DeepEqual(affected, []string{"x", "y"}) {
		t.Errorf("affected = %v, want [x y]", affected)
	}
}

func TestGraphSkipsUnknownConnections(t *testing.T) {
	e := NewEngine(testLogger())
	e.Load([]Lamp{
		{ID: "x", Street: "main", Connections: []string{"missing"}},
	}, nil)
	if got := e.Graph().Edges; len(got) != 0 {
		t.Errorf("edges = %v, want none for unregistered neighbour", got)
	}
}

func TestEnsureLamp(t *testing.T) {
	e := newTestEngine(t)

	l, created := e.EnsureLamp("new-lamp")
	if !created {
		t.Fatal("expected placeholder creation")
	}
	if l.Street != "" || l.State.On {
		t.Errorf("placeholder = %+v, want unassigned street and off state", l)
	}

	_, created = e.EnsureLamp("new-lamp")
	if created {
		t.Error("second EnsureLamp reported creation")
	}
	if _, created := e.EnsureLamp("a"); created {
		t.Error("EnsureLamp recreated an existing lamp")
	}
}

func TestUpsertLampMetadata(t *testing.T) {
	e := newTestEngine(t)
	on := true
	e.SetLampState("a", PartialState{On: &on})

	l := e.UpsertLampMetadata("a", Metadata{Name: "Corner", Street: "plaza", Connections: []string{"b"}})
	if l.Name != "Corner" || l.Street != "plaza" {
		t.Errorf("metadata not applied: %+v", l)
	}
	if !l.State.On {
		t.Error("metadata upsert must not touch state")
	}

	n := e.UpsertLampMetadata("brand-new", Metadata{Street: "plaza"})
	if n.State.On {
		t.Error("new lamp must start off")
	}
}

func TestSensors(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.GetSensor("s1")
	if err != nil {
		t.Fatalf("GetSensor: %v", err)
	}
	if s.LinkedLampID != "a" {
		t.Errorf("linked lamp = %q, want a", s.LinkedLampID)
	}

	if _, err := e.GetSensor("nope"); err != ErrSensorNotFound {
		t.Errorf("err = %v, want ErrSensorNotFound", err)
	}

	e.UpsertSensor("s2", SensorMetadata{Name: "Gate", LinkedLampID: "e"})
	if got := len(e.Sensors()); got != 2 {
		t.Errorf("sensor count = %d, want 2", got)
	}
}

func TestDeepCopyIsolation(t *testing.T) {
	e := newTestEngine(t)
	l, _ := e.GetLamp("a")
	l.State.On = true
	l.Connections[0] = "tampered"

	fresh, _ := e.GetLamp("a")
	if fresh.State.On || fresh.Connections[0] != "b" {
		t.Error("mutating a returned copy leaked into the engine")
	}
}
