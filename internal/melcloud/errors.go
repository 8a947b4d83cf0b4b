package melcloud

import "errors"

// Domain errors for the melcloud package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, melcloud.ErrSessionExpired) {
//	    // re-authenticate and retry once
//	}
var (
	// ErrAuthFailed is returned when MELCloud rejects the account
	// credentials. This is fatal: retrying with the same credentials
	// cannot succeed.
	ErrAuthFailed = errors.New("melcloud: authentication rejected")

	// ErrSessionExpired is returned when a request fails because the
	// cached context key is no longer accepted. Recoverable by
	// re-authenticating.
	ErrSessionExpired = errors.New("melcloud: session expired")

	// ErrNotAuthenticated is returned when an operation requires a
	// session but none has been established yet.
	ErrNotAuthenticated = errors.New("melcloud: not authenticated")

	// ErrAPI is returned for transport, validation and server failures.
	ErrAPI = errors.New("melcloud: request failed")

	// ErrUnknownFamily is returned when a device family is not recognised.
	ErrUnknownFamily = errors.New("melcloud: unknown device family")

	// ErrUnknownField is returned when a write targets a field outside
	// the family's settable schema.
	ErrUnknownField = errors.New("melcloud: field not in write schema")

	// ErrSeriesUnavailable is returned when a requested telemetry series
	// does not exist for the device.
	ErrSeriesUnavailable = errors.New("melcloud: telemetry series unavailable")
)
