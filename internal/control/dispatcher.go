package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

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

// Writer sends sparse patches to the cloud. Satisfied by
// *melcloud.Client.
type Writer interface {
	SendUpdate(ctx context.Context, deviceID string, family melcloud.Family, changes map[string]any) error
}

// Session controls the authentication lifecycle, used for the single
// retry after a session expiry. Satisfied by *melcloud.SessionManager.
type Session interface {
	Invalidate()
	EnsureValid(ctx context.Context) error
}

// StateReader exposes the last known device snapshot. Satisfied by
// *poller.SyncLoop.
type StateReader interface {
	DeviceState(deviceID string) (melcloud.Device, bool)
}

// DefaultDebounceWindow is the trailing-edge refresh delay used when
// the config does not set one.
const DefaultDebounceWindow = 2 * time.Second

// Config holds the dispatcher settings.
type Config struct {
	// DebounceWindow is the quiet period after the last successful
	// write before the refresh callback fires.
	DebounceWindow time.Duration
}

// inflight tracks one command currently on the wire for a
// (device, field) pair. Later identical commands attach to it instead
// of issuing duplicate writes.
type inflight struct {
	value any
	done  chan struct{}
	err   error
}

// Dispatcher is the single funnel for device commands. See the package
// doc for the full pipeline.
type Dispatcher struct {
	writer  Writer
	session Session
	states  StateReader
	window  time.Duration
	logger  Logger

	mu       sync.Mutex
	inflight map[string]*inflight
	timers   map[string]*time.Timer
	refresh  func(deviceID string)
	closed   bool
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(cfg Config, writer Writer, session Session, states StateReader) *Dispatcher {
	window := cfg.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Dispatcher{
		writer:   writer,
		session:  session,
		states:   states,
		window:   window,
		logger:   noopLogger{},
		inflight: make(map[string]*inflight),
		timers:   make(map[string]*time.Timer),
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// OnRefresh registers the callback invoked when a device's debounce
// window elapses after its last successful write. Must be called before
// the first Apply.
func (d *Dispatcher) OnRefresh(fn func(deviceID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refresh = fn
}

// Apply sends one field change to a device.
//
// The change is dropped without a wire call when the last known state
// already holds the target value. Zero and false are ordinary target
// values; only an exact match against current state suppresses the
// write. Concurrent commands for the same (device, field) pair with the
// same target share a single wire call; a concurrent command with a
// different target waits for the in-flight one to settle, then issues
// its own.
func (d *Dispatcher) Apply(ctx context.Context, deviceID, field string, value any) error {
	commandID := uuid.NewString()
	key := deviceID + "/" + field

	var (
		dev melcloud.Device
		fl  *inflight
	)
	for {
		// Re-read on every pass: a refresh that landed while waiting
		// for an earlier write can make this command redundant.
		var ok bool
		dev, ok = d.states.DeviceState(deviceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		if current, known := dev.State[field]; known && valuesEqual(current, value) {
			d.logger.Debug("command matches last known state, dropped",
				"command_id", commandID,
				"device_id", deviceID,
				"field", field,
			)
			return nil
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return ErrClosed
		}
		existing, busy := d.inflight[key]
		if !busy {
			fl = &inflight{value: value, done: make(chan struct{})}
			d.inflight[key] = fl
			d.mu.Unlock()
			break
		}
		joins := valuesEqual(existing.value, value)
		d.mu.Unlock()

		select {
		case <-existing.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if joins {
			d.logger.Debug("command coalesced with in-flight duplicate",
				"command_id", commandID,
				"device_id", deviceID,
				"field", field,
			)
			return existing.err
		}
		// Different target for the same field: the earlier write has
		// settled, loop and claim the slot.
	}

	err := d.send(ctx, commandID, deviceID, dev.Family, field, value)

	d.mu.Lock()
	fl.err = err
	delete(d.inflight, key)
	close(fl.done)
	if err == nil && !d.closed {
		d.armDebounce(deviceID)
	}
	d.mu.Unlock()

	return err
}

// send issues the write, re-authenticating and retrying exactly once on
// session expiry.
func (d *Dispatcher) send(ctx context.Context, commandID, deviceID string, family melcloud.Family, field string, value any) error {
	changes := map[string]any{field: value}

	err := d.writer.SendUpdate(ctx, deviceID, family, changes)
	if err == nil {
		d.logger.Info("command applied",
			"command_id", commandID,
			"device_id", deviceID,
			"field", field,
		)
		return nil
	}
	if !errors.Is(err, melcloud.ErrSessionExpired) {
		return err
	}

	d.logger.Info("session expired mid-command, re-authenticating",
		"command_id", commandID,
		"device_id", deviceID,
	)
	d.session.Invalidate()
	if aerr := d.session.EnsureValid(ctx); aerr != nil {
		return fmt.Errorf("re-authentication failed: %w", aerr)
	}

	err = d.writer.SendUpdate(ctx, deviceID, family, changes)
	if err == nil {
		d.logger.Info("command applied after re-authentication",
			"command_id", commandID,
			"device_id", deviceID,
			"field", field,
		)
		return nil
	}
	if errors.Is(err, melcloud.ErrSessionExpired) {
		return fmt.Errorf("%w: session expired again after re-login", ErrRetryExhausted)
	}
	return err
}

// armDebounce starts or extends the per-device refresh timer. A timer
// already running is pushed out to now+window; it never stacks. Caller
// must hold d.mu.
func (d *Dispatcher) armDebounce(deviceID string) {
	if t, ok := d.timers[deviceID]; ok {
		t.Reset(d.window)
		return
	}
	d.timers[deviceID] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, deviceID)
		fn := d.refresh
		closed := d.closed
		d.mu.Unlock()
		if closed || fn == nil {
			return
		}
		fn(deviceID)
	})
}

// Close stops all pending debounce timers and rejects further commands.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// valuesEqual compares a target value against last known state.
// Numeric values compare by magnitude so an int 22 from a JSON command
// matches a float64 22.0 in the snapshot.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
