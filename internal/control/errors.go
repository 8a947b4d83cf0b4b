package control

import "errors"

// Domain errors for the control package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, control.ErrUnknownDevice) {
//	    // handle unknown device case
//	}
var (
	// ErrUnknownDevice is returned when a command targets a device that
	// is not present in the last known snapshot.
	ErrUnknownDevice = errors.New("control: unknown device")

	// ErrRetryExhausted is returned when a write fails with a session
	// expiry even after one re-authentication and retry.
	ErrRetryExhausted = errors.New("control: retry exhausted")

	// ErrClosed is returned when a command arrives after Close.
	ErrClosed = errors.New("control: dispatcher closed")
)
