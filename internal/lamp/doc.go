// Package lamp implements the graph activation engine: the in-memory
// lamp/sensor topology, state mutation, and deterministic spillover
// computation over the connectivity graph.
//
// All state changes flow through the engine's public operations so the
// append-only event log and the state-updated hooks see every change.
// External callers only ever receive deep copies; the engine's internal
// maps are never exposed.
package lamp
