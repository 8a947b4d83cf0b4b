package influxdb

import "errors"

// Sentinel errors; check with errors.Is. Write failures do not appear
// here: writes are asynchronous and report through SetOnError.
var (
	// ErrDisabled is returned by Connect when the config disables
	// InfluxDB entirely.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned when the server cannot be
	// reached or reports itself unhealthy at connect time.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
