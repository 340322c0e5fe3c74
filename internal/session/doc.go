// Package session manages live device connections: identity
// assignment, authorization with newest-wins eviction, identity-checked
// command handling, liveness probing, and best-effort state pushes to
// lamps.
//
// Each connection moves through a small state machine: unauthenticated
// on connect, authorized once it binds an id, closed on disconnect or
// eviction. Only messages whose claimed id matches the session's bound
// id are accepted for state-changing operations.
package session
