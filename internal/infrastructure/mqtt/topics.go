package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the bridge's MQTT surface.
//
// The bridge publishes device state and energy totals, and accepts
// control commands from the host automation platform:
//
//	melbridge/system/status             bridge online/offline (retained, LWT)
//	melbridge/device/{id}/state         merged device snapshot (retained)
//	melbridge/device/{id}/set           inbound command {field, value}
//	melbridge/device/{id}/energy        cumulative energy total (retained)
//	melbridge/devices/snapshot          full fleet snapshot after each sync cycle
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "melbridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "melbridge/system"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceState returns the retained per-device state topic.
//
// Example: melbridge/device/8a3f.../state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceSet returns the inbound command topic for a device.
//
// Example: melbridge/device/8a3f.../set
func (Topics) DeviceSet(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/set", TopicPrefix, deviceID)
}

// DeviceEnergy returns the retained cumulative energy topic for a device.
//
// Example: melbridge/device/8a3f.../energy
func (Topics) DeviceEnergy(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/energy", TopicPrefix, deviceID)
}

// FleetSnapshot returns the topic carrying the full merged snapshot
// published after every sync cycle.
func (Topics) FleetSnapshot() string {
	return TopicPrefix + "/devices/snapshot"
}

// AllDeviceSets returns the wildcard pattern matching every device's
// command topic. Subscribe to this to route inbound commands.
func (Topics) AllDeviceSets() string {
	return TopicPrefix + "/device/+/set"
}

// SystemStatus returns the bridge online/offline status topic.
// Also used as the LWT topic for crash detection.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceIDFromTopic extracts the device ID from a per-device topic
// (state, set, or energy). Returns "" if the topic does not match the
// expected shape.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "device" {
		return ""
	}
	return parts[2]
}
