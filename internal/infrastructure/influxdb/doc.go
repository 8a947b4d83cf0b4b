// Package influxdb provides InfluxDB connectivity for the MELCloud bridge.
//
// It wraps the official influxdb-client-go v2 library with bridge-specific
// write helpers for climate telemetry and energy accumulation metrics.
//
// Writes are non-blocking and batched; a failed InfluxDB connection never
// affects the synchronization core, it only drops observability data.
//
// # Usage
//
//	client, err := influxdb.Connect(config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   os.Getenv("MELBRIDGE_INFLUXDB_TOKEN"),
//	    Org:     "home",
//	    Bucket:  "melbridge",
//	})
//	if err != nil {
//	    log.Warn("influxdb unavailable", "error", err)
//	}
//	defer client.Close()
//
//	client.WriteClimateMetric(deviceID, "room_temperature_c", 21.5)
//	client.WriteEnergyTotal(deviceID, 1234.5)
package influxdb
