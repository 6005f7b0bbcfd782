// Package shelly implements the device update coordinators at the heart
// of the Shelly bridge.
//
// One Coordinator runs per configured device. It owns the device client
// handle and keeps a local state snapshot synchronized through three
// serialized paths: scheduled polls, device-initiated push updates, and
// reconnect-triggered refreshes. Everything downstream - availability,
// reauthentication, reload debouncing, repair notices, click events -
// hangs off those refresh cycles.
//
// # Scheduling
//
// Always-on devices poll at base interval x update multiplier. Sleeping
// (battery) devices are never actively polled: their tick is a liveness
// check that marks them unavailable once the sleep window (sleep period
// x sleep multiplier) elapses without a wakeup push. RPC devices
// additionally run a fixed-interval reconnect loop.
//
// # Failure routing
//
// Classify partitions every refresh error: transient failures flip
// availability and retry on schedule; auth rejection triggers
// reauthentication at most once per episode (an episode ends on the
// next success); unsupported firmware logs once without availability
// flapping; anything unrecognized is treated as transient but logged
// loudly.
//
// # Bus surfaces
//
// BusEventSink, BusIssueRegistry, and BusStatePublisher adapt the
// coordinator's outputs onto the Gray Logic MQTT scheme
// (graylogic/{event,alert,state}/shelly/...). HealthReporter publishes
// periodic bridge health the same way the core's bridges do.
package shelly
