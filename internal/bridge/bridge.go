package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/energy"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/mqtt"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
	"github.com/andrew-blake/melcloudhome-sub002/internal/poller"
)

// commandTimeout bounds the dispatch of one inbound MQTT command.
const commandTimeout = 30 * time.Second

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

// MQTTClient is the broker surface the bridge needs. Satisfied by
// *mqtt.Client; narrowed for tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Commander feeds commands into the control pipeline. Satisfied by
// *control.Dispatcher.
type Commander interface {
	Apply(ctx context.Context, deviceID, field string, value any) error
}

// EnergyReader exposes accumulated energy totals. Satisfied by
// *energy.Accumulator. Optional.
type EnergyReader interface {
	Total(deviceID string) (float64, bool)
	Report() []energy.DeviceReport
}

// MetricsWriter mirrors readings into the metrics store. Satisfied by
// *influxdb.Client. Optional.
type MetricsWriter interface {
	WriteClimateMetric(deviceID string, measurement string, value float64)
	WriteEnergyTotal(deviceID string, totalKWh float64)
	WriteEnergyBucket(deviceID string, bucket time.Time, kwh float64)
}

// Bridge wires the sync loop's events onto MQTT and the metrics store,
// and inbound MQTT commands onto the dispatcher.
type Bridge struct {
	mqtt    MQTTClient
	command Commander
	energy  EnergyReader
	metrics MetricsWriter
	logger  Logger
	topics  mqtt.Topics
}

// Options collects the bridge dependencies. EnergyReader and
// MetricsWriter may be nil when those features are disabled.
type Options struct {
	MQTT    MQTTClient
	Command Commander
	Energy  EnergyReader
	Metrics MetricsWriter
	Logger  Logger
}

// New creates a bridge.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Command == nil {
		return nil, fmt.Errorf("bridge: commander is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		mqtt:    opts.MQTT,
		command: opts.Command,
		energy:  opts.Energy,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// Start subscribes to the command intake topic. Snapshot and ambient
// hooks are registered by the caller via HandleSnapshot and
// HandleAmbient.
func (b *Bridge) Start() error {
	topic := b.topics.AllDeviceSets()
	if err := b.mqtt.Subscribe(topic, 1, b.handleSetMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("command intake subscribed", "topic", topic)
	return nil
}

// commandMessage is the payload accepted on device set topics.
type commandMessage struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// handleSetMessage parses one inbound command and dispatches it.
func (b *Bridge) handleSetMessage(topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("no device id in topic %s", topic)
	}

	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed command payload",
			"topic", topic,
			"error", err,
		)
		return fmt.Errorf("parsing command: %w", err)
	}
	if msg.Field == "" {
		b.logger.Warn("command without field", "topic", topic)
		return fmt.Errorf("command missing field")
	}

	var value any
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		b.logger.Warn("malformed command value",
			"topic", topic,
			"field", msg.Field,
			"error", err,
		)
		return fmt.Errorf("parsing command value: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.command.Apply(ctx, deviceID, msg.Field, value); err != nil {
		b.logger.Error("mqtt command failed",
			"device_id", deviceID,
			"field", msg.Field,
			"error", err,
		)
		return err
	}
	return nil
}

// devicePayload is the retained per-device state message.
type devicePayload struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Family            melcloud.Family `json:"family"`
	State             map[string]any  `json:"state"`
	Capabilities      map[string]bool `json:"capabilities"`
	LastCommunication time.Time       `json:"last_communication,omitzero"`
	Stale             bool            `json:"stale"`
	FetchedAt         time.Time       `json:"fetched_at"`
}

// energyPayload is the retained per-device energy message.
type energyPayload struct {
	DeviceID string  `json:"device_id"`
	TotalKWh float64 `json:"total_kwh"`
}

// HandleSnapshot publishes one snapshot swap to MQTT and the metrics
// store. Wire it to the sync loop with OnSnapshot.
func (b *Bridge) HandleSnapshot(snap poller.Snapshot) {
	if b.mqtt.IsConnected() {
		b.publishSnapshot(snap)
	}
	if b.metrics != nil && !snap.Stale {
		b.recordMetrics(snap)
	}
}

func (b *Bridge) publishSnapshot(snap poller.Snapshot) {
	for _, dev := range snap.Devices {
		payload, err := json.Marshal(devicePayload{
			ID:                dev.ID,
			Name:              dev.Name,
			Family:            dev.Family,
			State:             dev.State,
			Capabilities:      dev.Capabilities,
			LastCommunication: dev.LastCommunication,
			Stale:             snap.Stale,
			FetchedAt:         snap.FetchedAt,
		})
		if err != nil {
			b.logger.Error("encoding device payload", "device_id", dev.ID, "error", err)
			continue
		}
		if err := b.mqtt.Publish(b.topics.DeviceState(dev.ID), payload, 1, true); err != nil {
			b.logger.Warn("publishing device state",
				"device_id", dev.ID,
				"error", err,
			)
		}

		if b.energy == nil {
			continue
		}
		total, ok := b.energy.Total(dev.ID)
		if !ok {
			continue
		}
		ep, err := json.Marshal(energyPayload{DeviceID: dev.ID, TotalKWh: total})
		if err != nil {
			continue
		}
		if err := b.mqtt.Publish(b.topics.DeviceEnergy(dev.ID), ep, 1, true); err != nil {
			b.logger.Warn("publishing device energy",
				"device_id", dev.ID,
				"error", err,
			)
		}
	}

	fleet, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error("encoding fleet snapshot", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.FleetSnapshot(), fleet, 0, false); err != nil {
		b.logger.Warn("publishing fleet snapshot", "error", err)
	}
}

// climateMeasurements maps numeric state fields to metric names.
var climateMeasurements = map[string]string{
	melcloud.FieldRoomTemperature:     "room_temperature",
	melcloud.FieldRoomTemperatureZ1:   "room_temperature_zone1",
	melcloud.FieldRoomTemperatureZ2:   "room_temperature_zone2",
	melcloud.FieldTankTemperature:     "tank_temperature",
	melcloud.FieldSetTemperature:      "set_temperature",
	melcloud.FieldSetTemperatureZone1: "set_temperature_zone1",
	melcloud.FieldSetTemperatureZone2: "set_temperature_zone2",
	melcloud.FieldSetTankTemperature:  "set_tank_temperature",
	melcloud.FieldOutdoorTemperature:  "outdoor_temperature",
}

func (b *Bridge) recordMetrics(snap poller.Snapshot) {
	for _, dev := range snap.Devices {
		for field, measurement := range climateMeasurements {
			if v, ok := dev.State[field].(float64); ok {
				b.metrics.WriteClimateMetric(dev.ID, measurement, v)
			}
		}
		if b.energy != nil {
			if total, ok := b.energy.Total(dev.ID); ok {
				b.metrics.WriteEnergyTotal(dev.ID, total)
			}
		}
	}
}

// HandleAmbient mirrors one ambient temperature sample into the metrics
// store. Wire it to the sync loop with OnAmbient.
func (b *Bridge) HandleAmbient(deviceID string, sample melcloud.Sample) {
	if b.metrics == nil {
		return
	}
	b.metrics.WriteClimateMetric(deviceID, "outdoor_temperature", sample.Value)
}

// HandleEnergyBuckets mirrors retained hourly buckets into the metrics
// store after an ingest.
func (b *Bridge) HandleEnergyBuckets(deviceID string, buckets []melcloud.HourBucket) {
	if b.metrics == nil {
		return
	}
	for _, bucket := range buckets {
		b.metrics.WriteEnergyBucket(deviceID, bucket.Hour, bucket.KWh)
	}
}
