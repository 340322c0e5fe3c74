// Package influxdb provides optional time-series telemetry for the
// Lantaarn server.
//
// Lamp state changes and street activations are recorded as InfluxDB
// points so operators can chart duty cycles, activation frequency, and
// spillover reach over time. Writes are batched and non-blocking;
// telemetry never slows the engine down.
//
// The integration is disabled by default and enabled via the influxdb
// section of config.yaml.
package influxdb
