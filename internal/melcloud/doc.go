// Package melcloud implements the vendor cloud client for Mitsubishi
// air-to-air (ATA) and air-to-water (ATW) heat pumps.
//
// The package is split along the session/transport boundary:
//
//   - SessionManager owns the authenticated session. Login happens lazily
//     and exactly once at a time: concurrent callers that observe an
//     invalid session await the single in-flight attempt rather than each
//     triggering their own login.
//
//   - Client is the unified API client. It fetches the combined snapshot
//     of both device families in one round trip, sends write commands,
//     and fetches telemetry series. Each device family's wire mapping is
//     handled by its own family client behind a shared contract.
//
// # Write semantics
//
// The MELCloud write endpoint expects every settable field of the
// family's schema to be present in the request body. A JSON null means
// "leave unchanged"; any other value, including zero and false, is
// applied literally. Omitting a field is NOT equivalent to sending null
// in this protocol family, so Client.SendUpdate always transmits the
// full schema with nulls for unchanged fields.
//
// # Error taxonomy
//
//   - ErrAuthFailed: credentials rejected; fatal, never retried here
//   - ErrSessionExpired: the context key was rejected; recoverable by
//     re-authenticating (see the control package's retry-once policy)
//   - ErrAPI: transport, validation or server failure; surfaced as-is
//   - ErrSeriesUnavailable: a telemetry series does not exist for the
//     device; used by the sync loop's one-time capability probe
package melcloud
