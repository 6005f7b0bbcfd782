package shelly

import (
	"context"
	"errors"
	"net"
	"os"
)

// Domain errors for the Shelly coordinator package.
var (
	// ErrConnection is returned when a device cannot be reached or the
	// connection drops mid-operation.
	ErrConnection = errors.New("shelly: device connection failed")

	// ErrInvalidAuth is returned when the device rejects our credentials.
	ErrInvalidAuth = errors.New("shelly: authentication rejected")

	// ErrFirmwareUnsupported is returned when the device firmware is too
	// old to support the operations the coordinator needs.
	ErrFirmwareUnsupported = errors.New("shelly: firmware unsupported")

	// ErrNotStarted is returned when an operation requires a started
	// coordinator.
	ErrNotStarted = errors.New("shelly: coordinator not started")
)

// FailureClass partitions refresh and connect errors into the categories
// the coordinator reacts to. Every error maps to exactly one class.
type FailureClass int

const (
	// FailureTransient covers connection drops, timeouts, and anything
	// else expected to heal on its own. The device is marked unavailable
	// and retried on the normal schedule.
	FailureTransient FailureClass = iota

	// FailureAuthInvalid means the device rejected our credentials.
	// Triggers reauthentication, at most once per episode.
	FailureAuthInvalid

	// FailureFirmwareUnsupported means the firmware cannot support the
	// coordinator. Logged once; no availability flapping.
	FailureFirmwareUnsupported

	// FailureUnrecognized is the catch-all for errors the classifier
	// does not know. Treated like transient, but logged loudly.
	FailureUnrecognized
)

// String returns the failure class name for logging.
func (f FailureClass) String() string {
	switch f {
	case FailureTransient:
		return "transient"
	case FailureAuthInvalid:
		return "auth_invalid"
	case FailureFirmwareUnsupported:
		return "firmware_unsupported"
	default:
		return "unrecognized"
	}
}

// Classify maps an error from a device operation to its failure class.
//
// The mapping is total: any error yields a class, unknown errors yield
// FailureUnrecognized. Classification is pure - no logging, no side
// effects - so callers decide how to react.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, ErrInvalidAuth):
		return FailureAuthInvalid
	case errors.Is(err, ErrFirmwareUnsupported):
		return FailureFirmwareUnsupported
	case errors.Is(err, ErrConnection):
		return FailureTransient
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return FailureTransient
	}

	// Network-level timeouts and connection failures are transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}

	return FailureUnrecognized
}
