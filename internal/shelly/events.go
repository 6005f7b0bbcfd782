package shelly

import (
	"sync"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
)

// ClickEvent is the outward button event published on the event bus.
type ClickEvent struct {
	DeviceID   string `json:"device_id"`
	Device     string `json:"device"`
	Channel    int    `json:"channel"`
	ClickType  string `json:"click_type"`
	Generation int    `json:"generation"`
}

// EventSink receives outward click events.
// Implemented by BusEventSink over MQTT; by fakes in tests.
type EventSink interface {
	PublishEvent(ev ClickEvent) error
}

// gen1ClickTypes maps the Gen1 shorthand event codes to click type names.
var gen1ClickTypes = map[string]string{
	"S":   "single",
	"SS":  "double",
	"SSS": "triple",
	"L":   "long",
	"SL":  "single_long",
	"LS":  "long_single",
}

// rpcClickTypes is the set of event types RPC devices are known to send.
// Unknown types are logged and dropped rather than forwarded.
var rpcClickTypes = map[string]bool{
	"btn_down":    true,
	"btn_up":      true,
	"single_push": true,
	"double_push": true,
	"triple_push": true,
	"long_push":   true,
}

// Dispatcher converts raw input events into outward click events.
//
// Gen1 devices report a per-channel event counter alongside the current
// event type; an event is dispatched only when the counter strictly
// increases, which dedupes the repeated reports each poll returns.
// RPC devices deliver discrete event batches instead, dispatched in order.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	deviceID   string
	deviceName string
	generation entry.Generation
	sink       EventSink

	// lastCount tracks the per-channel event counter for Gen1 dedup.
	lastCount map[int]int
	mu        sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates a dispatcher for one device.
// The sink may be nil, in which case events are silently dropped.
func NewDispatcher(deviceID, deviceName string, gen entry.Generation, sink EventSink) *Dispatcher {
	return &Dispatcher{
		deviceID:   deviceID,
		deviceName: deviceName,
		generation: gen,
		sink:       sink,
		lastCount:  make(map[int]int),
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// HandleCounter processes a Gen1 counter-style input report.
//
// A report is dispatched only when the counter strictly increased since
// the last report for that channel and the event type is non-empty.
// Counters initialise lazily: the first report for a channel always
// counts as increased. Some Gen1 devices lack the counter and report
// -1; for those, every non-empty event type dispatches and only empty
// reports are suppressed.
//
// Parameters:
//   - channel: Input channel index
//   - eventType: Gen1 shorthand code (e.g. "S", "SS", "L"); empty means
//     no event pending
//   - count: The device's per-channel event counter, or -1 if absent
func (d *Dispatcher) HandleCounter(channel int, eventType string, count int) {
	if count >= 0 {
		d.mu.Lock()
		last, seen := d.lastCount[channel]
		if seen && count <= last {
			d.mu.Unlock()
			return // stale or repeated report
		}
		d.lastCount[channel] = count
		d.mu.Unlock()
	}

	if eventType == "" {
		return // counter moved but no event type; nothing to dispatch
	}

	clickType, ok := gen1ClickTypes[eventType]
	if !ok {
		d.logWarn("unknown input event type", "device", d.deviceID, "type", eventType)
		return
	}

	d.dispatch(channel, clickType)
}

// HandleBatch processes an RPC event batch.
//
// Each event is dispatched independently, in order. Unknown event types
// are logged and skipped; empty types are skipped silently.
func (d *Dispatcher) HandleBatch(events []InputEvent) {
	for _, ev := range events {
		if ev.Type == "" {
			continue
		}
		if !rpcClickTypes[ev.Type] {
			d.logWarn("unknown input event type", "device", d.deviceID, "type", ev.Type)
			continue
		}
		d.dispatch(ev.Channel, ev.Type)
	}
}

// dispatch sends one click event to the sink.
func (d *Dispatcher) dispatch(channel int, clickType string) {
	if d.sink == nil {
		return
	}

	ev := ClickEvent{
		DeviceID:   d.deviceID,
		Device:     d.deviceName,
		Channel:    channel,
		ClickType:  clickType,
		Generation: int(d.generation),
	}

	if err := d.sink.PublishEvent(ev); err != nil {
		d.logError("failed to publish click event", err)
	}
}

// logWarn logs a warning if a logger is set.
func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if a logger is set.
func (d *Dispatcher) logError(msg string, err error) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
