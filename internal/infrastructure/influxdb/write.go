package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRefreshMetric records the outcome of a coordinator refresh cycle.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "plug-kitchen")
//   - durationMs: How long the refresh took, in milliseconds
//   - success: Whether the refresh succeeded
//
// Example:
//
//	client.WriteRefreshMetric("plug-kitchen", 142.0, true)
func (c *Client) WriteRefreshMetric(deviceID string, durationMs float64, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"refresh",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
			"success":     success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAvailability records a device availability transition.
//
// Only transitions are recorded, not every poll, to keep cardinality
// and write volume low.
//
// Parameters:
//   - deviceID: Device identifier
//   - available: New availability state
func (c *Client) WriteAvailability(deviceID string, available bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"availability",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"available": available,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePushFailures records the consecutive push update failure count.
//
// Parameters:
//   - deviceID: Device identifier
//   - count: Current consecutive failure count
func (c *Client) WritePushFailures(deviceID string, count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"push_failures",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"coordinators": 4})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
