// Package control provides the command dispatch layer for melbridge.
//
// The Dispatcher sits between the intake surfaces (HTTP API, MQTT set
// topics) and the cloud client. Every command passes through the same
// pipeline regardless of which surface it arrived on:
//
//	┌─────────────────────────────────────────────────────┐
//	│              Dispatcher (dispatcher.go)             │
//	│  1. Deduplicate against last known device state     │
//	│  2. Coalesce with identical in-flight commands      │
//	│  3. Send sparse patch via the cloud client          │
//	│  4. On session expiry: re-login, retry exactly once │
//	│  5. Arm the per-device refresh debounce timer       │
//	└─────────────────────────────────────────────────────┘
//
// # Deduplication
//
// A command targeting a value the device already holds is dropped
// without touching the wire. The comparison runs against the poller's
// last known snapshot, so a stale snapshot can let a redundant write
// through; that is harmless, the endpoint is idempotent.
//
// # Retry Semantics
//
// A write that fails with melcloud.ErrSessionExpired triggers one
// re-authentication and one retry. A second expiry on the retried
// write surfaces ErrRetryExhausted; the dispatcher never loops on
// authentication failures. Every other error is returned untouched.
//
// # Refresh Debounce
//
// Each successful write arms (or re-arms) a single per-device timer.
// When the timer fires with no further writes inside the window, the
// refresh callback runs once. Rapid command bursts therefore collapse
// into one refresh at the trailing edge; timers never stack.
//
// # Thread Safety
//
// Dispatcher is safe for concurrent use from multiple goroutines.
package control
