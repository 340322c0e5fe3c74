package lamp

import "time"

// EventType tags an engine event.
type EventType string

const (
	// EventEngineInitialized is appended once when the engine starts.
	EventEngineInitialized EventType = "engine_initialized"

	// EventLampStateUpdated records a single lamp state change.
	EventLampStateUpdated EventType = "lamp_state_updated"

	// EventStreetActivated records one street activation including every
	// lamp it reached through spillover.
	EventStreetActivated EventType = "street_activated"
)

// Event is one entry in the engine's append-only event log. Fields are
// populated per type: LampID and State for lamp_state_updated, StreetID
// and AffectedLampIDs for street_activated.
type Event struct {
	Type            EventType  `json:"type"`
	Timestamp       time.Time  `json:"timestamp"`
	LampID          string     `json:"lamp_id,omitempty"`
	State           *LampState `json:"state,omitempty"`
	StreetID        string     `json:"street_id,omitempty"`
	AffectedLampIDs []string   `json:"affected_lamp_ids,omitempty"`
}

func newInitializedEvent() Event {
	return Event{Type: EventEngineInitialized, Timestamp: time.Now().UTC()}
}

func newStateUpdatedEvent(id string, state LampState) Event {
	s := state
	return Event{
		Type:      EventLampStateUpdated,
		Timestamp: time.Now().UTC(),
		LampID:    id,
		State:     &s,
	}
}

func newStreetActivatedEvent(streetID string, affected []string) Event {
	return Event{
		Type:            EventStreetActivated,
		Timestamp:       time.Now().UTC(),
		StreetID:        streetID,
		AffectedLampIDs: affected,
	}
}
