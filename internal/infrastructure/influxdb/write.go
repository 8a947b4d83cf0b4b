package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteClimateMetric writes a single climate measurement for a device.
//
// This is the primary method for recording device telemetry from the
// sync loop. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - deviceID: MELCloud device identifier
//   - measurement: The metric name (e.g., "room_temperature_c", "set_temperature_c")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteClimateMetric(deviceID, "room_temperature_c", 21.5)
//	client.WriteClimateMetric(deviceID, "outdoor_temperature_c", 4.0)
func (c *Client) WriteClimateMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"climate",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyTotal writes the cumulative energy total for a device.
//
// Recorded after each accumulator update so the host can graph lifetime
// consumption without reading the bridge's database.
func (c *Client) WriteEnergyTotal(deviceID string, totalKWh float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy_total",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"total_kwh": totalKWh,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyBucket writes the observed value of a single hour bucket at
// its bucket timestamp rather than the observation time. Useful for
// reconstructing the device's hourly consumption profile.
//
// Parameters:
//   - deviceID: Device identifier
//   - bucket: The hour the consumption belongs to
//   - kwh: The cumulative-so-far value reported for that hour
func (c *Client) WriteEnergyBucket(deviceID string, bucket time.Time, kwh float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy_hourly",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"kwh": kwh,
		},
		bucket,
	)

	c.writeAPI.WritePoint(point)
}
