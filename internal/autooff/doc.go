// Package autooff schedules automatic deactivation of lamps after a
// configured duration. Deadlines are armed from the engine's
// state-updated hook, persisted alongside lamp state, and resumed
// across restarts.
package autooff
