package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/energy"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/mqtt"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
	"github.com/andrew-blake/melcloudhome-sub002/internal/poller"
)

// fakeMQTT records publishes and captures subscriptions.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	published map[string][]byte
	retained  map[string]bool
	handlers  map[string]mqtt.MessageHandler
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		connected: true,
		published: make(map[string][]byte),
		retained:  make(map[string]bool),
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload
	f.retained[topic] = retained
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) payload(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.published[topic]
	return p, ok
}

// deliver simulates a broker message through the wildcard subscription.
func (f *fakeMQTT) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range f.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription matches %s", topic)
	}
	return handler(topic, payload)
}

// topicMatches supports the single-level wildcard used by the bridge.
func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

// fakeCommander records dispatched commands.
type fakeCommander struct {
	mu       sync.Mutex
	commands []appliedCommand
	err      error
}

type appliedCommand struct {
	deviceID string
	field    string
	value    any
}

func (c *fakeCommander) Apply(_ context.Context, deviceID, field string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, appliedCommand{deviceID, field, value})
	return c.err
}

func (c *fakeCommander) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands)
}

// fakeEnergy serves fixed totals.
type fakeEnergy struct {
	totals map[string]float64
}

func (e *fakeEnergy) Total(deviceID string) (float64, bool) {
	v, ok := e.totals[deviceID]
	return v, ok
}

func (e *fakeEnergy) Report() []energy.DeviceReport { return nil }

// fakeMetrics counts metric writes.
type fakeMetrics struct {
	mu      sync.Mutex
	climate map[string]float64 // deviceID/measurement → value
	totals  map[string]float64
	buckets int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		climate: make(map[string]float64),
		totals:  make(map[string]float64),
	}
}

func (m *fakeMetrics) WriteClimateMetric(deviceID, measurement string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.climate[deviceID+"/"+measurement] = value
}

func (m *fakeMetrics) WriteEnergyTotal(deviceID string, totalKWh float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[deviceID] = totalKWh
}

func (m *fakeMetrics) WriteEnergyBucket(string, time.Time, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets++
}

func testSnapshot(stale bool) poller.Snapshot {
	return poller.Snapshot{
		Devices: []melcloud.Device{
			{
				ID:     "dev-1",
				Name:   "Living Room",
				Family: melcloud.FamilyATA,
				State: map[string]any{
					melcloud.FieldPower:           true,
					melcloud.FieldRoomTemperature: 20.5,
					melcloud.FieldSetTemperature:  21.0,
				},
				Capabilities: map[string]bool{melcloud.CapEnergyMeter: true},
			},
		},
		FetchedAt: time.Now(),
		Stale:     stale,
	}
}

func newTestBridge(t *testing.T, m *fakeMQTT, c *fakeCommander, e EnergyReader, w MetricsWriter) *Bridge {
	t.Helper()
	b, err := New(Options{MQTT: m, Command: c, Energy: e, Metrics: w})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b
}

func TestBridge_CommandIntake(t *testing.T) {
	m := newFakeMQTT()
	c := &fakeCommander{}
	newTestBridge(t, m, c, nil, nil)

	payload := []byte(`{"field":"setTemperature","value":22.5}`)
	if err := m.deliver(t, "melbridge/device/dev-1/set", payload); err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	if c.count() != 1 {
		t.Fatalf("got %d commands, want 1", c.count())
	}
	cmd := c.commands[0]
	if cmd.deviceID != "dev-1" || cmd.field != "setTemperature" || cmd.value != 22.5 {
		t.Errorf("command = %+v, want dev-1/setTemperature/22.5", cmd)
	}
}

func TestBridge_CommandIntake_BooleanValue(t *testing.T) {
	m := newFakeMQTT()
	c := &fakeCommander{}
	newTestBridge(t, m, c, nil, nil)

	payload := []byte(`{"field":"power","value":false}`)
	if err := m.deliver(t, "melbridge/device/dev-1/set", payload); err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	if c.commands[0].value != false {
		t.Errorf("value = %v, want literal false", c.commands[0].value)
	}
}

func TestBridge_CommandIntake_Malformed(t *testing.T) {
	m := newFakeMQTT()
	c := &fakeCommander{}
	newTestBridge(t, m, c, nil, nil)

	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"value":22.5}`),
		[]byte(`{"field":"power"}`),
	}
	for _, payload := range cases {
		if err := m.deliver(t, "melbridge/device/dev-1/set", payload); err == nil {
			t.Errorf("payload %s accepted, want error", payload)
		}
	}
	if c.count() != 0 {
		t.Errorf("malformed payloads dispatched %d commands", c.count())
	}
}

func TestBridge_SnapshotPublishes(t *testing.T) {
	m := newFakeMQTT()
	e := &fakeEnergy{totals: map[string]float64{"dev-1": 42.5}}
	b := newTestBridge(t, m, &fakeCommander{}, e, nil)

	b.HandleSnapshot(testSnapshot(false))

	raw, ok := m.payload("melbridge/device/dev-1/state")
	if !ok {
		t.Fatal("device state not published")
	}
	if !m.retained["melbridge/device/dev-1/state"] {
		t.Error("device state not retained")
	}

	var state devicePayload
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decoding state payload: %v", err)
	}
	if state.ID != "dev-1" || state.Stale {
		t.Errorf("payload = %+v", state)
	}
	if state.State[melcloud.FieldRoomTemperature] != 20.5 {
		t.Errorf("room temperature = %v, want 20.5", state.State[melcloud.FieldRoomTemperature])
	}

	energyRaw, ok := m.payload("melbridge/device/dev-1/energy")
	if !ok {
		t.Fatal("energy total not published")
	}
	var ep energyPayload
	if err := json.Unmarshal(energyRaw, &ep); err != nil {
		t.Fatalf("decoding energy payload: %v", err)
	}
	if ep.TotalKWh != 42.5 {
		t.Errorf("energy total = %v, want 42.5", ep.TotalKWh)
	}

	if _, ok := m.payload("melbridge/devices/snapshot"); !ok {
		t.Error("fleet snapshot not published")
	}
}

func TestBridge_StaleSnapshotSkipsMetrics(t *testing.T) {
	m := newFakeMQTT()
	w := newFakeMetrics()
	b := newTestBridge(t, m, &fakeCommander{}, nil, w)

	b.HandleSnapshot(testSnapshot(true))

	// Stale data still reaches MQTT with the flag set.
	raw, ok := m.payload("melbridge/device/dev-1/state")
	if !ok {
		t.Fatal("stale state not published")
	}
	var state devicePayload
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decoding state payload: %v", err)
	}
	if !state.Stale {
		t.Error("stale flag lost in payload")
	}

	// But never the metrics store.
	if len(w.climate) != 0 {
		t.Errorf("stale snapshot wrote %d climate metrics", len(w.climate))
	}
}

func TestBridge_FreshSnapshotWritesMetrics(t *testing.T) {
	m := newFakeMQTT()
	w := newFakeMetrics()
	e := &fakeEnergy{totals: map[string]float64{"dev-1": 9.5}}
	b := newTestBridge(t, m, &fakeCommander{}, e, w)

	b.HandleSnapshot(testSnapshot(false))

	if got := w.climate["dev-1/room_temperature"]; got != 20.5 {
		t.Errorf("room_temperature metric = %v, want 20.5", got)
	}
	if got := w.totals["dev-1"]; got != 9.5 {
		t.Errorf("energy total metric = %v, want 9.5", got)
	}
}

func TestBridge_DisconnectedBrokerSkipsPublish(t *testing.T) {
	m := newFakeMQTT()
	m.connected = false
	b := newTestBridge(t, m, &fakeCommander{}, nil, nil)

	b.HandleSnapshot(testSnapshot(false))

	if len(m.published) != 0 {
		t.Errorf("published %d messages while disconnected", len(m.published))
	}
}

func TestBridge_AmbientSample(t *testing.T) {
	m := newFakeMQTT()
	w := newFakeMetrics()
	b := newTestBridge(t, m, &fakeCommander{}, nil, w)

	b.HandleAmbient("dev-1", melcloud.Sample{Time: time.Now(), Value: 3.5})

	if got := w.climate["dev-1/outdoor_temperature"]; got != 3.5 {
		t.Errorf("outdoor_temperature metric = %v, want 3.5", got)
	}
}
