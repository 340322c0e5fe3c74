// Package topology persists the lamp/sensor graph, last-known lamp
// state, auto-off deadlines, and UI layout positions in SQLite.
//
// The store offers no transactional isolation across callers; the
// engine's state-updated hook is the single logical writer for state,
// so writes are last-write-wins by contract.
package topology
