package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		actual   string
		expected string
	}{
		{
			name:     "device state",
			actual:   topics.DeviceState("8a3f0e2c"),
			expected: "melbridge/device/8a3f0e2c/state",
		},
		{
			name:     "device set",
			actual:   topics.DeviceSet("8a3f0e2c"),
			expected: "melbridge/device/8a3f0e2c/set",
		},
		{
			name:     "device energy",
			actual:   topics.DeviceEnergy("8a3f0e2c"),
			expected: "melbridge/device/8a3f0e2c/energy",
		},
		{
			name:     "fleet snapshot",
			actual:   topics.FleetSnapshot(),
			expected: "melbridge/devices/snapshot",
		},
		{
			name:     "all device sets wildcard",
			actual:   topics.AllDeviceSets(),
			expected: "melbridge/device/+/set",
		},
		{
			name:     "system status",
			actual:   topics.SystemStatus(),
			expected: "melbridge/system/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("got %q, want %q", tt.actual, tt.expected)
			}
		})
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		expected string
	}{
		{
			name:     "set topic",
			topic:    "melbridge/device/8a3f0e2c/set",
			expected: "8a3f0e2c",
		},
		{
			name:     "state topic",
			topic:    "melbridge/device/8a3f0e2c/state",
			expected: "8a3f0e2c",
		},
		{
			name:     "wrong prefix",
			topic:    "otherapp/device/8a3f0e2c/set",
			expected: "",
		},
		{
			name:     "too few parts",
			topic:    "melbridge/device/set",
			expected: "",
		},
		{
			name:     "system topic",
			topic:    "melbridge/system/status",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceIDFromTopic(tt.topic); got != tt.expected {
				t.Errorf("DeviceIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.expected)
			}
		})
	}
}

// Validation paths below run entirely offline against a disconnected
// client; none of them may reach the broker.

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"qos out of range", "melbridge/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "melbridge/test", []byte(strings.Repeat("a", maxPayloadSize+1)), 1, ErrPublishFailed},
		{"disconnected", "melbridge/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("melbridge/test", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("melbridge/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("melbridge/test", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: error = %v, want ErrNotConnected", err)
	}

	// Failed subscribes must not leave topics queued for reconnect
	// replay.
	if len(c.subscriptions) != 0 {
		t.Errorf("%d subscriptions tracked after failures, want 0", len(c.subscriptions))
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestStatusPayload(t *testing.T) {
	online := statusPayload("online", "bridge-1", "")
	if strings.Contains(online, "reason") {
		t.Errorf("online payload carries a reason: %s", online)
	}

	lwt := statusPayload("offline", "bridge-1", "unexpected_disconnect")
	var decoded struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(lwt), &decoded); err != nil {
		t.Fatalf("status payload is not valid JSON: %v", err)
	}
	if decoded.Status != "offline" || decoded.Reason != "unexpected_disconnect" {
		t.Errorf("payload = %+v, want offline/unexpected_disconnect", decoded)
	}
}
