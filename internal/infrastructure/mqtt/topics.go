package mqtt

import "fmt"

// topicPrefix is the root of the Lantaarn topic namespace.
const topicPrefix = "lantaarn"

// Topics builds the MQTT topic names used by the relay.
//
// Layout:
//
//	lantaarn/system/status           retained server online/offline status
//	lantaarn/state/lamp/{id}         retained last-known lamp state
//	lantaarn/event/street/{street}   street activation events (not retained)
type Topics struct{}

// SystemStatus returns the server status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// LampState returns the state topic for one lamp.
func (Topics) LampState(lampID string) string {
	return fmt.Sprintf("%s/state/lamp/%s", topicPrefix, lampID)
}

// StreetActivated returns the activation event topic for one street.
func (Topics) StreetActivated(streetID string) string {
	return fmt.Sprintf("%s/event/street/%s", topicPrefix, streetID)
}
