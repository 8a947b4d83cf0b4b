// Package poller owns the device state lifecycle for melbridge.
//
// The SyncLoop is the only writer of the device snapshot. Every cycle
// it fetches the combined account state in a single round trip and
// swaps the snapshot wholesale; nothing ever mutates a snapshot in
// place. Consumers (control dispatcher, HTTP API, MQTT publisher,
// WebSocket hub) read the latest snapshot or subscribe to swaps.
//
// # Cadences
//
// Two cadences run inside one loop:
//
//   - State poll (default 60s): full snapshot fetch and swap. A failed
//     fetch keeps the previous device list and marks the snapshot
//     stale; consumers keep serving the old data with the flag set.
//   - Sub-poll (default 30m): per-device telemetry. Energy reports are
//     gated on the device's energy meter capability; ambient readings
//     are gated on a one-time probe of the telemetry series.
//
// # Capability Probe
//
// Whether a device exposes the outdoor temperature series is not
// declared in the snapshot, so the first sub-poll probes it. A series
// reported unavailable marks the device permanently unsupported; a
// transient error leaves the probe pending for the next sub-poll.
//
// # On-Demand Refresh
//
// RequestRefresh triggers an immediate state poll outside the regular
// cadence. The control dispatcher calls it when a device's debounce
// window elapses, so command results reach the snapshot quickly.
//
// Sub-poll failures are logged and never abort a cycle; a device with a
// broken report endpoint still gets its state refreshed.
package poller
