// Package mqtt provides MQTT client infrastructure for the Shelly bridge.
//
// This package wraps the Eclipse Paho MQTT client with bridge-specific
// functionality for reliable broker communication.
//
// # Features
//
//   - Connection management with automatic reconnection
//   - Last Will and Testament (LWT) on the bridge health topic
//   - Topic builders following the Gray Logic flat scheme
//   - Subscription tracking with automatic re-subscription on reconnect
//   - Panic recovery in message handlers
//
// # Topic Hierarchy
//
// The bridge publishes under graylogic/{category}/shelly/...:
//
//	graylogic/state/shelly/{device}     - Availability and state snapshots (retained)
//	graylogic/event/shelly/{device}     - Button click events (not retained)
//	graylogic/alert/shelly/{alert_id}   - Repair issues and reauth prompts (retained)
//	graylogic/health/shelly             - Bridge health + LWT (retained)
//	graylogic/request/shelly/{device}   - Inbound refresh/reload requests
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return fmt.Errorf("mqtt connect: %w", err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("plug-kitchen")
//	err = client.Publish(topic, payload, 1, true)
//
// # Thread Safety
//
// All client methods are safe for concurrent use.
package mqtt
