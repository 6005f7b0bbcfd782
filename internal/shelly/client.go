package shelly

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
)

// UpdateKind distinguishes the two ways a device delivers a state update.
type UpdateKind int

const (
	// UpdatePeriodic is a full status report: either the result of a
	// scheduled poll or a device-initiated full push. Resets the
	// push-failure counter.
	UpdatePeriodic UpdateKind = iota

	// UpdateReplay is a poll-triggered replay of state the device should
	// have pushed on its own. Counted against the push-failure ceiling.
	UpdateReplay
)

// String returns the update kind name for logging.
func (k UpdateKind) String() string {
	if k == UpdateReplay {
		return "replay"
	}
	return "periodic"
}

// Snapshot is one observed device state.
//
// Payload carries the raw component states for bus publication. The
// remaining fields are the facts the coordinator itself reacts to.
type Snapshot struct {
	// Payload holds the device's component states keyed by component
	// (e.g. "switch:0", "temperature"). Opaque to the coordinator;
	// published as-is on the state topic.
	Payload map[string]any

	// Taken is when the snapshot was captured.
	Taken time.Time

	// CfgRevision is the device's configuration revision counter.
	// A change signals the device config was edited.
	CfgRevision int64

	// DeviceClass describes what kind of entity the device presents
	// (e.g. "switch", "cover", "light"). A change here is structural
	// and requires an entry reload.
	DeviceClass string

	// ColorMode is the active colour mode for light devices. Changes
	// are cosmetic and never trigger a reload.
	ColorMode string

	// Effect is the active light effect index. Cosmetic, like ColorMode.
	Effect int

	// WakeupPeriod is the sleep interval in seconds the device reports,
	// zero for always-on devices. Persisted to the entry when it drifts
	// from the stored value.
	WakeupPeriod int

	// Firmware is the running firmware version string.
	Firmware string
}

// InputEvent is a raw button event as delivered by a device.
type InputEvent struct {
	// Channel is the input channel index (0-based).
	Channel int

	// Type is the raw event type. Gen1 devices use the shorthand codes
	// ("S", "SS", "L", ...); RPC devices use full names ("single_push").
	Type string

	// Count is the per-channel event counter for devices that have one.
	// Negative when the device does not report a counter.
	Count int
}

// Device is the client handle for one physical Shelly device.
//
// Implementations wrap the actual transport (HTTP polling, RPC over
// WebSocket). The coordinator only ever talks to this interface, which
// keeps the protocol stack swappable and the coordinator testable.
type Device interface {
	// Refresh fetches the current device state. Errors are classified
	// by Classify; implementations should wrap the package sentinels
	// (ErrConnection, ErrInvalidAuth, ErrFirmwareUnsupported) so the
	// coordinator can route failures.
	Refresh(ctx context.Context) (*Snapshot, error)

	// Initialize (re-)establishes the device session. For polling
	// transports this is a connectivity probe; for persistent
	// connections it performs the handshake.
	Initialize(ctx context.Context) error

	// Connected reports whether the device session is currently up.
	// Polling transports report true once initialized.
	Connected() bool

	// Generation returns the device protocol generation.
	Generation() entry.Generation

	// MAC returns the device MAC address without separators.
	MAC() string

	// Host returns the device network address.
	Host() string

	// FirmwareVersion returns the last known firmware version.
	FirmwareVersion() string

	// SetOnUpdate registers the callback for device-initiated state
	// updates. May be called before Initialize.
	SetOnUpdate(fn func(kind UpdateKind, snap *Snapshot))

	// SetOnEvent registers the callback for raw input events.
	SetOnEvent(fn func(events []InputEvent))
}

// Logger is the optional structured logger interface domain types accept.
// Satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
