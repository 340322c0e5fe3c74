// Package mqtt provides the optional MQTT relay for the Lantaarn server.
//
// The relay publishes lamp state changes and street activation events to
// an external broker so building-management systems and dashboards can
// follow the street without talking to the HTTP API. It is strictly
// one-way: the server never consumes commands from the broker.
//
// # Topic Structure
//
//	lantaarn/system/status           retained online/offline status (LWT backed)
//	lantaarn/state/lamp/{id}         retained last-known lamp state
//	lantaarn/event/street/{street}   street activation events
//
// # Connection Management
//
// The client auto-reconnects with exponential backoff. A Last Will and
// Testament marks the server offline if it disconnects unexpectedly,
// distinct from the graceful shutdown status published by Close.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	topic := mqtt.Topics{}.LampState("lamp-12")
//	client.PublishRetained(topic, payload)
package mqtt
