// Package mqtt provides MQTT client connectivity for the MELCloud bridge.
//
// This package manages:
//   - Connection to the host's broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge uses MQTT as an optional integration surface towards the host
// automation platform: merged device snapshots and energy totals are
// published retained, and control commands are accepted on per-device
// set topics.
//
//	Host Platform ↔ MQTT Broker ↔ MELCloud Bridge ↔ MELCloud API
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Route inbound device commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceSets(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceID := mqtt.DeviceIDFromTopic(topic)
//	        return handleCommand(deviceID, payload)
//	    })
//
//	// Publish a device snapshot, retained for late subscribers
//	client.Publish(mqtt.Topics{}.DeviceState(deviceID), payload, 1, true)
package mqtt
