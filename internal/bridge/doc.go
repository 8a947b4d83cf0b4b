// Package bridge connects the sync loop and control dispatcher to the
// outward-facing surfaces: MQTT and the metrics store.
//
// Outbound, the bridge publishes after every snapshot swap:
//
//	melbridge/device/{id}/state    retained per-device state
//	melbridge/device/{id}/energy   retained cumulative energy total
//	melbridge/devices/snapshot     full fleet snapshot
//
// and mirrors numeric readings into InfluxDB.
//
// Inbound, it subscribes to melbridge/device/+/set and feeds parsed
// commands into the control dispatcher, so MQTT commands share the
// dedup, coalescing and retry pipeline with the HTTP API.
//
// MQTT being down never blocks a sync cycle; publish failures are
// logged and the next cycle publishes fresh data anyway.
package bridge
