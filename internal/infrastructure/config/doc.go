// Package config loads and validates the Lantaarn server configuration.
//
// Configuration comes from a YAML file with hardcoded defaults underneath
// and LANTAARN_* environment variable overrides on top:
//
//	site:
//	  id: "site-001"
//	database:
//	  path: "./data/lantaarn.db"
//	engine:
//	  spillover_depth: 1
//	  pulse_color: "#60a5fa"
//	auto_off:
//	  duration: 300
//
// Load() returns a validated *Config; invalid configuration fails fast at
// startup rather than surfacing as runtime misbehaviour.
package config
