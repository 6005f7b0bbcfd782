package entry

import "time"

// Generation identifies a Shelly device generation.
type Generation int

// Device generations.
const (
	// Gen1 devices use the legacy HTTP/CoAP protocol and report
	// button presses as accumulating click counters.
	Gen1 Generation = 1

	// Gen2 devices (and later) use the RPC protocol over WebSocket
	// and report button presses as discrete event batches.
	Gen2 Generation = 2
)

// Entry is the persisted configuration record for one Shelly device.
//
// An Entry is the durable counterpart of a running coordinator: it holds
// the connection parameters and the device facts that must survive a
// restart (sleep period, firmware version, pending reauthentication).
type Entry struct {
	// ID is the unique entry identifier (e.g., "plug-kitchen").
	ID string `json:"id"`

	// Name is the human-readable device name.
	Name string `json:"name"`

	// Host is the device's network address (IP or hostname).
	Host string `json:"host"`

	// MAC is the device's MAC address without separators (e.g., "AABBCCDDEEFF").
	// Used to build stable repair issue identifiers.
	MAC string `json:"mac"`

	// Generation is the device protocol generation.
	Generation Generation `json:"generation"`

	// SleepPeriod is the device's configured sleep interval in seconds.
	// Zero for always-on devices. For battery devices this is updated
	// from the device's reported wakeup period after each contact.
	SleepPeriod int `json:"sleep_period"`

	// Firmware is the last observed firmware version string.
	Firmware string `json:"firmware"`

	// AuthRequired is set when the device rejected our credentials and
	// reauthentication is pending. Cleared on the next successful refresh.
	AuthRequired bool `json:"auth_required"`

	// CreatedAt is when the entry was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the entry was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Sleeps reports whether this entry describes a battery-powered device
// that spends most of its time asleep.
func (e *Entry) Sleeps() bool {
	return e.SleepPeriod > 0
}

// Validate checks that the entry has the required fields.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return ErrInvalidEntry
	}
	if e.Host == "" {
		return ErrInvalidEntry
	}
	if e.Generation != Gen1 && e.Generation != Gen2 {
		return ErrInvalidEntry
	}
	if e.SleepPeriod < 0 {
		return ErrInvalidEntry
	}
	return nil
}
