package mqtt

import "fmt"

// Topic prefixes per Gray Logic MQTT specification.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{address}
// The Shelly bridge publishes under protocol "shelly".
const (
	// TopicPrefix is the base for all Gray Logic topics.
	TopicPrefix = "graylogic"

	// TopicProtocol identifies this bridge in the topic hierarchy.
	TopicProtocol = "shelly"
)

// Topics provides builders for the Shelly bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("plug-kitchen")
//	// Returns: "graylogic/state/shelly/plug-kitchen"
type Topics struct{}

// DeviceState returns the topic for a device's availability/state snapshot.
//
// Example: graylogic/state/shelly/plug-kitchen
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, TopicProtocol, deviceID)
}

// DeviceEvent returns the topic for button click events from a device.
//
// Example: graylogic/event/shelly/plug-kitchen
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, TopicProtocol, deviceID)
}

// DeviceRequest returns the topic for requests to a specific device's coordinator.
//
// Example: graylogic/request/shelly/plug-kitchen
func (Topics) DeviceRequest(deviceID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, TopicProtocol, deviceID)
}

// Alert returns the topic for bridge alerts (repair issues, reauth prompts).
//
// Example: graylogic/alert/shelly/push_update_AABBCCDDEEFF
func (Topics) Alert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s/%s", TopicPrefix, TopicProtocol, alertID)
}

// BridgeHealth returns the topic for bridge health status.
// Also used as the LWT topic for crash detection.
//
// Example: graylogic/health/shelly
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, TopicProtocol)
}

// AllDeviceRequests returns a pattern matching requests to any device.
//
// Pattern: graylogic/request/shelly/+
func (Topics) AllDeviceRequests() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, TopicProtocol)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: graylogic/state/shelly/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, TopicProtocol)
}
