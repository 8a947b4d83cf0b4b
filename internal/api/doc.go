// Package api provides the HTTP REST API and WebSocket server for
// melbridge.
//
// It exposes the device snapshot, the command pipeline and accumulated
// energy data to host automation platforms and dashboards:
//
//	GET  /api/v1/health               liveness and snapshot freshness
//	GET  /api/v1/devices              full fleet snapshot
//	GET  /api/v1/devices/{id}         one device
//	POST /api/v1/devices/{id}/apply   command {field, value}
//	GET  /api/v1/energy               per-device totals and hourly buckets
//	GET  /api/v1/ws                   WebSocket event stream
//
// All routes except /health require a bearer token signed with the
// configured JWT secret. WebSocket clients pass the token as a "token"
// query parameter since browsers cannot set headers on upgrade
// requests.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
