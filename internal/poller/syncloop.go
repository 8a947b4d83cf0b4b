package poller

import (
	"context"
	"errors"
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

// Fetcher is the cloud read surface the loop polls. Satisfied by
// *melcloud.Client.
type Fetcher interface {
	FetchState(ctx context.Context) (*melcloud.UserContext, error)
	FetchTelemetry(ctx context.Context, deviceID string, measure melcloud.Measure, from, to time.Time) ([]melcloud.Sample, error)
	FetchEnergyReport(ctx context.Context, device melcloud.Device, from, to time.Time) ([]melcloud.HourBucket, error)
}

// Session is the authentication surface the loop keeps warm. Satisfied
// by *melcloud.SessionManager.
type Session interface {
	EnsureValid(ctx context.Context) error
	Invalidate()
}

// EnergyIngester receives hourly energy buckets from sub-polls.
// Satisfied by *energy.Accumulator.
type EnergyIngester interface {
	Ingest(ctx context.Context, device melcloud.Device, buckets []melcloud.HourBucket) error
}

// Default cadences used when the config leaves them unset.
const (
	DefaultInterval        = 60 * time.Second
	DefaultSubPollInterval = 30 * time.Minute
)

// Config holds the sync loop settings.
type Config struct {
	// Interval between full state polls.
	Interval time.Duration

	// SubPollInterval between per-device telemetry sub-polls.
	SubPollInterval time.Duration

	// EnergyWindow bounds how far back an energy report reaches.
	EnergyWindow time.Duration
}

// Snapshot is one immutable view of the fleet.
type Snapshot struct {
	// Devices is the full device list from the latest successful poll.
	Devices []melcloud.Device `json:"devices"`

	// FetchedAt is when the data was last fetched successfully.
	FetchedAt time.Time `json:"fetched_at"`

	// Stale is set when the most recent poll failed and Devices still
	// reflects an older fetch.
	Stale bool `json:"stale"`
}

// ambient probe outcome per device.
type probeResult int

const (
	probePending probeResult = iota
	probeSupported
	probeUnsupported
)

// SyncLoop polls the cloud and owns the device snapshot. See the
// package doc for the cadence model.
type SyncLoop struct {
	fetcher      Fetcher
	session      Session
	energy       EnergyIngester
	interval     time.Duration
	subInterval  time.Duration
	energyWindow time.Duration
	logger       Logger

	refreshCh chan string

	mu          sync.RWMutex
	snapshot    Snapshot
	probes      map[string]probeResult
	lastSubPoll map[string]time.Time
	onSnapshot  []func(Snapshot)
	onAmbient   []func(deviceID string, sample melcloud.Sample)
}

// NewSyncLoop creates a sync loop. energy may be nil when energy
// tracking is disabled.
func NewSyncLoop(cfg Config, fetcher Fetcher, session Session, energy EnergyIngester) *SyncLoop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	subInterval := cfg.SubPollInterval
	if subInterval <= 0 {
		subInterval = DefaultSubPollInterval
	}
	window := cfg.EnergyWindow
	if window <= 0 {
		window = 48 * time.Hour
	}
	return &SyncLoop{
		fetcher:      fetcher,
		session:      session,
		energy:       energy,
		interval:     interval,
		subInterval:  subInterval,
		energyWindow: window,
		logger:       noopLogger{},
		refreshCh:    make(chan string, 16),
		probes:       make(map[string]probeResult),
		lastSubPoll:  make(map[string]time.Time),
	}
}

// SetLogger sets the logger for the sync loop.
func (s *SyncLoop) SetLogger(logger Logger) {
	s.logger = logger
}

// OnSnapshot registers a callback invoked after every snapshot swap,
// including stale re-publishes. Register before Run.
func (s *SyncLoop) OnSnapshot(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSnapshot = append(s.onSnapshot, fn)
}

// OnAmbient registers a callback invoked for each fresh ambient
// temperature sample. Register before Run.
func (s *SyncLoop) OnAmbient(fn func(deviceID string, sample melcloud.Sample)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAmbient = append(s.onAmbient, fn)
}

// Snapshot returns the latest fleet view. The returned device slice is
// shared and must not be mutated.
func (s *SyncLoop) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// DeviceState looks up one device in the latest snapshot.
func (s *SyncLoop) DeviceState(deviceID string) (melcloud.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.snapshot.Devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return melcloud.Device{}, false
}

// RequestRefresh schedules an immediate state poll. Never blocks; when
// the queue is full the regular cadence covers the refresh anyway.
func (s *SyncLoop) RequestRefresh(deviceID string) {
	select {
	case s.refreshCh <- deviceID:
	default:
		s.logger.Debug("refresh queue full, relying on next poll",
			"device_id", deviceID,
		)
	}
}

// Run executes the polling loop until ctx is cancelled. The first cycle
// runs immediately.
func (s *SyncLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		case deviceID := <-s.refreshCh:
			s.drainRefreshQueue()
			s.logger.Debug("on-demand refresh", "device_id", deviceID)
			s.pollState(ctx)
		}
	}
}

// drainRefreshQueue collapses queued refresh requests into the poll
// about to run.
func (s *SyncLoop) drainRefreshQueue() {
	for {
		select {
		case <-s.refreshCh:
		default:
			return
		}
	}
}

// cycle runs one full iteration: state poll, then telemetry sub-polls
// for accessible devices.
func (s *SyncLoop) cycle(ctx context.Context) {
	if !s.pollState(ctx) {
		return
	}
	s.subPoll(ctx)
}

// pollState fetches the combined snapshot and swaps it wholesale.
// Returns false when the fetch failed; the previous snapshot stays
// visible with the stale flag set.
func (s *SyncLoop) pollState(ctx context.Context) bool {
	if err := s.session.EnsureValid(ctx); err != nil {
		s.logger.Error("authentication failed, keeping stale snapshot", "error", err)
		s.markStale()
		return false
	}

	uc, err := s.fetcher.FetchState(ctx)
	if err != nil {
		if errors.Is(err, melcloud.ErrSessionExpired) {
			s.session.Invalidate()
		}
		s.logger.Error("state poll failed, keeping stale snapshot", "error", err)
		s.markStale()
		return false
	}

	s.mu.Lock()
	s.snapshot = Snapshot{
		Devices:   uc.Devices,
		FetchedAt: uc.FetchedAt,
	}
	snap := s.snapshot
	subs := s.onSnapshot
	s.mu.Unlock()

	s.logger.Debug("snapshot swapped", "devices", len(snap.Devices))
	for _, fn := range subs {
		fn(snap)
	}
	return true
}

// markStale flags the current snapshot without discarding it, then
// re-publishes so consumers observe the flag.
func (s *SyncLoop) markStale() {
	s.mu.Lock()
	if s.snapshot.Stale {
		s.mu.Unlock()
		return
	}
	s.snapshot.Stale = true
	snap := s.snapshot
	subs := s.onSnapshot
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// subPoll runs per-device telemetry fetches concurrently. Individual
// failures are logged and never abort the cycle.
func (s *SyncLoop) subPoll(ctx context.Context) {
	s.mu.RLock()
	devices := s.snapshot.Devices
	s.mu.RUnlock()

	now := time.Now()
	var due []melcloud.Device
	s.mu.Lock()
	for _, d := range devices {
		last, seen := s.lastSubPoll[d.ID]
		if seen && now.Sub(last) < s.subInterval {
			continue
		}
		s.lastSubPoll[d.ID] = now
		due = append(due, d)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, dev := range due {
		wg.Add(1)
		go func(dev melcloud.Device) {
			defer wg.Done()
			s.pollDevice(ctx, dev, now)
		}(dev)
	}
	wg.Wait()
}

// pollDevice runs the telemetry sub-polls for one device.
func (s *SyncLoop) pollDevice(ctx context.Context, dev melcloud.Device, now time.Time) {
	s.pollAmbient(ctx, dev, now)

	if s.energy != nil && dev.HasCapability(melcloud.CapEnergyMeter) {
		buckets, err := s.fetcher.FetchEnergyReport(ctx, dev, now.Add(-s.energyWindow), now)
		if err != nil {
			s.logger.Warn("energy report failed",
				"device_id", dev.ID,
				"error", err,
			)
		} else if err := s.energy.Ingest(ctx, dev, buckets); err != nil {
			s.logger.Warn("energy ingest failed",
				"device_id", dev.ID,
				"error", err,
			)
		}
	}
}

// pollAmbient fetches the outdoor temperature series, probing the
// device's support for it on first contact.
func (s *SyncLoop) pollAmbient(ctx context.Context, dev melcloud.Device, now time.Time) {
	s.mu.RLock()
	probe := s.probes[dev.ID]
	s.mu.RUnlock()

	if probe == probeUnsupported {
		return
	}

	samples, err := s.fetcher.FetchTelemetry(ctx, dev.ID,
		melcloud.MeasureOutdoorTemperature, now.Add(-s.subInterval), now)
	if err != nil {
		if errors.Is(err, melcloud.ErrSeriesUnavailable) {
			s.mu.Lock()
			s.probes[dev.ID] = probeUnsupported
			s.mu.Unlock()
			s.logger.Info("ambient series unsupported, will not probe again",
				"device_id", dev.ID,
			)
			return
		}
		// Transient failure; the probe stays pending.
		s.logger.Warn("ambient telemetry failed",
			"device_id", dev.ID,
			"error", err,
		)
		return
	}

	if probe == probePending {
		s.mu.Lock()
		s.probes[dev.ID] = probeSupported
		s.mu.Unlock()
	}
	if len(samples) == 0 {
		return
	}

	s.mu.RLock()
	subs := s.onAmbient
	s.mu.RUnlock()
	latest := samples[len(samples)-1]
	for _, fn := range subs {
		fn(dev.ID, latest)
	}
}
