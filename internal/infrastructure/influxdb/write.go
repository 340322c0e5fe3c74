package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
)

// WriteLampState records a lamp state change as telemetry.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Booleans are stored as 0/1 so dashboards can aggregate duty cycles.
func (c *Client) WriteLampState(lampID string, state lamp.LampState) {
	if !c.IsConnected() {
		return
	}

	on := 0.0
	if state.On {
		on = 1.0
	}

	point := write.NewPoint(
		"lamp_state",
		map[string]string{
			"lamp_id": lampID,
		},
		map[string]interface{}{
			"on":         on,
			"brightness": float64(state.Brightness),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStreetActivation records one street activation and how many
// lamps it reached.
func (c *Client) WriteStreetActivation(streetID string, affected int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"street_activation",
		map[string]string{
			"street": streetID,
		},
		map[string]interface{}{
			"affected_lamps": float64(affected),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
