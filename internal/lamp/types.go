package lamp

// LampState is the current visual state of a lamp. Brightness is always
// within 0-100; the setter clamps out-of-range values.
type LampState struct {
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"`
	Color      string `json:"color"`
	ColorMode  string `json:"color_mode,omitempty"`
}

// PartialState carries a state update where nil fields leave the current
// value untouched. Unspecified fields are never defaulted.
type PartialState struct {
	On         *bool   `json:"on,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	Color      *string `json:"color,omitempty"`
	ColorMode  *string `json:"color_mode,omitempty"`
}

// Lamp is an addressable street lamp in the topology graph.
// The ID is immutable once assigned. Connections lists neighbour lamp
// ids and may reference ids that have not been registered yet.
type Lamp struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Street      string    `json:"street"`
	Connections []string  `json:"connections"`
	State       LampState `json:"state"`
}

// DeepCopy returns an independent copy safe to hand outside the engine.
func (l *Lamp) DeepCopy() *Lamp {
	if l == nil {
		return nil
	}
	c := *l
	c.Connections = make([]string, len(l.Connections))
	copy(c.Connections, l.Connections)
	return &c
}

// Metadata is the mutable descriptive part of a lamp, separate from its
// visual state.
type Metadata struct {
	Name        string   `json:"name,omitempty"`
	Street      string   `json:"street"`
	Connections []string `json:"connections"`
}

// Sensor is a motion sensor linked to a lamp. Triggering the sensor
// activates the street of its linked lamp. Sensors carry no state of
// their own.
type Sensor struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Street       string `json:"street,omitempty"`
	LinkedLampID string `json:"linked_lamp_id,omitempty"`
}

// DeepCopy returns an independent copy of the sensor.
func (s *Sensor) DeepCopy() *Sensor {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SensorMetadata is the mutable descriptive part of a sensor.
type SensorMetadata struct {
	Name         string `json:"name,omitempty"`
	Street       string `json:"street,omitempty"`
	LinkedLampID string `json:"linked_lamp_id,omitempty"`
}

// Node is a lamp as it appears in the rendered graph.
type Node struct {
	ID     string    `json:"id"`
	Name   string    `json:"name,omitempty"`
	Street string    `json:"street"`
	State  LampState `json:"state"`
}

// Edge classifications for the rendered graph.
const (
	// EdgeSameStreet links two lamps sharing the same non-empty street.
	EdgeSameStreet = "same_street"

	// EdgeCrossStreet links lamps on different streets; lamps with no
	// street assigned always classify as cross-street.
	EdgeCrossStreet = "cross_street"

	// EdgeSensorLink links a sensor to the lamp it triggers. Sensor
	// links are never traversed by spillover.
	EdgeSensorLink = "sensor_link"
)

// Edge is an undirected connection in the rendered graph. Lamp edges
// are symmetric and deduplicated: each unordered pair appears exactly
// once, with From ordered before To. Sensor links run From the sensor
// To its linked lamp.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Graph is the full lamp topology as nodes plus deduplicated edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ActivateOptions controls a street activation. Brightness and Color
// follow partial-merge semantics: nil keeps each lamp's current value.
// SpilloverDepth bounds how many hops the activation crosses into
// neighbouring streets; zero means no spillover.
type ActivateOptions struct {
	On             bool
	Brightness     *int
	Color          *string
	SpilloverDepth int
}
