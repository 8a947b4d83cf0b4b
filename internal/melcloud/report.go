package melcloud

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Energy unit divisors per device family, converting the report
// endpoint's native unit to kilowatt-hours.
//
// The payload is not self-describing and the two families do NOT share
// a unit: ATA devices report watt-hours, ATW devices report
// kilowatt-hours. These constants are the single place that knowledge
// lives; never infer the unit from the values.
const (
	ataEnergyUnitDivisor = 1000.0
	atwEnergyUnitDivisor = 1.0
)

// EnergyUnitDivisor returns the divisor that converts a family's energy
// report values to kilowatt-hours.
func EnergyUnitDivisor(family Family) (float64, error) {
	switch family {
	case FamilyATA:
		return ataEnergyUnitDivisor, nil
	case FamilyATW:
		return atwEnergyUnitDivisor, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
}

// HourBucket is one hour of a device's energy report, normalised to
// kilowatt-hours. The value is cumulative-so-far for that hour and can
// still grow on later polls until the hour is finalised.
type HourBucket struct {
	Hour time.Time `json:"hour"`
	KWh  float64   `json:"kwh"`
}

// FetchEnergyReport fetches the consumed-energy series for a device and
// normalises it into per-hour buckets in kilowatt-hours, sorted by hour.
//
// When the report carries several samples inside one hour, the largest
// wins: the series is cumulative within the hour, so the largest sample
// is the most recent upload.
func (c *Client) FetchEnergyReport(ctx context.Context, device Device, from, to time.Time) ([]HourBucket, error) {
	divisor, err := EnergyUnitDivisor(device.Family)
	if err != nil {
		return nil, err
	}

	samples, err := c.FetchTelemetry(ctx, device.ID, MeasureEnergyConsumed, from, to)
	if err != nil {
		return nil, err
	}

	byHour := make(map[time.Time]float64, len(samples))
	for _, s := range samples {
		hour := s.Time.UTC().Truncate(time.Hour)
		kwh := s.Value / divisor
		if kwh > byHour[hour] {
			byHour[hour] = kwh
		}
	}

	buckets := make([]HourBucket, 0, len(byHour))
	for hour, kwh := range byHour {
		buckets = append(buckets, HourBucket{Hour: hour, KWh: kwh})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Hour.Before(buckets[j].Hour)
	})
	return buckets, nil
}
