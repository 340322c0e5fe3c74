package session

import "github.com/svenyesyes/smart-lantaarn-server/internal/lamp"

// Device message types.
const (
	TypeRequestID       = "request_id"
	TypeAssignedID      = "assigned_id"
	TypeAuthorize       = "authorize"
	TypeAuthorized      = "authorized"
	TypeState           = "state"
	TypeActivateStreet  = "activate_street"
	TypeSensorActivate  = "sensor_activate"
	TypeStreetActivated = "street_activated"
	TypeActivated       = "activated"
	TypeSetState        = "set_state"
	TypeError           = "error"
)

// Error codes returned to devices.
const (
	CodeUnauthorizedID = "unauthorized_id"
	CodeNoStreet       = "no_street"
	CodeNoLink         = "no_link"
	CodeUnknownType    = "unknown_type"
)

// Device kinds.
const (
	KindLamp   = "lamp"
	KindSensor = "sensor"
)

// Message is the envelope for everything a device sends. Kind is
// optional on request_id and authorize; it defaults to lamp.
type Message struct {
	Type  string             `json:"type"`
	ID    string             `json:"id,omitempty"`
	Kind  string             `json:"kind,omitempty"`
	State *lamp.PartialState `json:"state,omitempty"`
}

// Reply is the envelope for everything sent to a device.
type Reply struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Street  string          `json:"street,omitempty"`
	State   *lamp.LampState `json:"state,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

func errorReply(code, message string) Reply {
	return Reply{Type: TypeError, Code: code, Message: message}
}
