// Package influxdb provides time-series telemetry for the Shelly bridge.
//
// This package wraps the official InfluxDB v2 Go client with
// bridge-specific write helpers.
//
// # Measurements
//
//   - refresh: Per-refresh duration and outcome, tagged by device
//   - availability: Availability transitions, tagged by device
//   - push_failures: Consecutive push update failure counts
//   - bridge: Bridge lifecycle events, written via WritePoint
//
// # Write Behaviour
//
// All writes are non-blocking. Points are batched and flushed
// asynchronously; write errors are delivered via SetOnError.
// Telemetry is optional - when disabled in config, Connect returns
// ErrDisabled and the bridge runs without it.
//
// # Usage
//
//	tsdb, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    tsdb = nil // bridge runs without telemetry
//	} else if err != nil {
//	    return err
//	}
//
//	tsdb.WriteRefreshMetric("plug-kitchen", 142.0, true)
package influxdb
