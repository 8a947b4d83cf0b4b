package energy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
)

// Logger is the minimal logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the full persisted accumulator state.
type State struct {
	// Totals maps device ID to its running kWh total.
	Totals map[string]float64

	// Tracked maps device ID to when bucket tracking began for it. A
	// device absent from this map gets baselined on its next report.
	Tracked map[string]time.Time

	// Buckets maps device ID to hour-bucket key to the highest kWh
	// reading observed for that hour.
	Buckets map[string]map[string]float64
}

// NewState returns an empty state with all maps allocated.
func NewState() State {
	return State{
		Totals:  make(map[string]float64),
		Tracked: make(map[string]time.Time),
		Buckets: make(map[string]map[string]float64),
	}
}

// Store persists accumulator state between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// DefaultRetention bounds how long per-hour bucket records are kept.
const DefaultRetention = 48 * time.Hour

// Config holds the accumulator settings.
type Config struct {
	// Retention is how far back bucket records are kept; older records
	// are pruned after each ingest.
	Retention time.Duration
}

// DeviceReport is one device's view for the reporting surfaces.
type DeviceReport struct {
	DeviceID string                `json:"device_id"`
	TotalKWh float64               `json:"total_kwh"`
	Hours    []melcloud.HourBucket `json:"hours"`
}

// Accumulator folds hourly consumption reports into monotone running
// totals. See the package doc for the delta rules.
//
// Thread Safety: all methods are safe for concurrent use.
type Accumulator struct {
	store     Store
	retention time.Duration
	logger    Logger
	now       func() time.Time

	mu    sync.Mutex
	state State
}

// NewAccumulator creates an accumulator over the given store.
func NewAccumulator(cfg Config, store Store) *Accumulator {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Accumulator{
		store:     store,
		retention: retention,
		logger:    noopLogger{},
		now:       time.Now,
		state:     NewState(),
	}
}

// SetLogger sets the logger for the accumulator.
func (a *Accumulator) SetLogger(logger Logger) {
	a.logger = logger
}

// Load restores persisted state. Must be called before the first
// Ingest; a store with no prior state yields an empty accumulator.
func (a *Accumulator) Load(ctx context.Context) error {
	state, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading energy state: %w", err)
	}
	if state.Totals == nil {
		state.Totals = make(map[string]float64)
	}
	if state.Tracked == nil {
		state.Tracked = make(map[string]time.Time)
	}
	if state.Buckets == nil {
		state.Buckets = make(map[string]map[string]float64)
	}

	a.mu.Lock()
	a.state = state
	a.mu.Unlock()

	a.logger.Info("energy state loaded",
		"devices", len(state.Totals),
		"tracked", len(state.Tracked),
	)
	return nil
}

// Ingest processes one hourly report for a device and persists the
// updated state.
func (a *Accumulator) Ingest(ctx context.Context, device melcloud.Device, buckets []melcloud.HourBucket) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := device.ID
	records := a.state.Buckets[id]
	if records == nil {
		records = make(map[string]float64)
		a.state.Buckets[id] = records
	}

	if _, tracked := a.state.Tracked[id]; !tracked {
		// Baseline: record observed readings, credit nothing. Totals
		// from an earlier run survive untouched.
		a.state.Tracked[id] = a.now()
		for _, b := range buckets {
			records[bucketKey(b.Hour)] = b.KWh
		}
		a.logger.Info("energy tracking baselined",
			"device_id", id,
			"buckets", len(buckets),
			"total_kwh", a.state.Totals[id],
		)
	} else {
		var delta float64
		for _, b := range buckets {
			key := bucketKey(b.Hour)
			prev, seen := records[key]
			switch {
			case !seen:
				records[key] = b.KWh
				delta += b.KWh
			case b.KWh > prev:
				records[key] = b.KWh
				delta += b.KWh - prev
			case b.KWh < prev:
				// Readings only grow while an hour fills; keep the
				// higher value so the total stays monotone.
				a.logger.Warn("energy reading decreased, keeping higher value",
					"device_id", id,
					"bucket", key,
					"previous_kwh", prev,
					"reported_kwh", b.KWh,
				)
			}
		}
		if delta > 0 {
			a.state.Totals[id] += delta
			a.logger.Debug("energy credited",
				"device_id", id,
				"delta_kwh", delta,
				"total_kwh", a.state.Totals[id],
			)
		}
	}
	if _, ok := a.state.Totals[id]; !ok {
		a.state.Totals[id] = 0
	}

	a.pruneLocked(id)

	if err := a.store.Save(ctx, a.state); err != nil {
		return fmt.Errorf("persisting energy state: %w", err)
	}
	return nil
}

// Total returns the running kWh total for a device.
func (a *Accumulator) Total(deviceID string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total, ok := a.state.Totals[deviceID]
	return total, ok
}

// Report returns every device's total and retained hourly buckets,
// sorted by device ID, buckets sorted by hour.
func (a *Accumulator) Report() []DeviceReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]DeviceReport, 0, len(a.state.Totals))
	for id, total := range a.state.Totals {
		report := DeviceReport{DeviceID: id, TotalKWh: total}
		for key, kwh := range a.state.Buckets[id] {
			hour, err := time.Parse(time.RFC3339, key)
			if err != nil {
				continue
			}
			report.Hours = append(report.Hours, melcloud.HourBucket{Hour: hour, KWh: kwh})
		}
		sort.Slice(report.Hours, func(i, j int) bool {
			return report.Hours[i].Hour.Before(report.Hours[j].Hour)
		})
		out = append(out, report)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// pruneLocked drops bucket records older than the retention window.
// Caller must hold a.mu. Totals are never recomputed from buckets, so
// pruning loses no credited energy.
func (a *Accumulator) pruneLocked(deviceID string) {
	cutoff := a.now().Add(-a.retention)
	for key := range a.state.Buckets[deviceID] {
		hour, err := time.Parse(time.RFC3339, key)
		if err != nil || hour.Before(cutoff) {
			delete(a.state.Buckets[deviceID], key)
		}
	}
}

// bucketKey normalises an hour bucket to its stable map key.
func bucketKey(hour time.Time) string {
	return hour.UTC().Truncate(time.Hour).Format(time.RFC3339)
}
