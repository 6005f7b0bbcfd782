package shelly

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
)

// topics is the single source of the Gray Logic topic scheme; the bus
// adapters never build topic strings themselves.
var topics mqtt.Topics

// Publisher is the interface the bus adapters publish through.
// Satisfied by *mqtt.Client; by fakes in tests.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateMessage is the retained per-device state publication.
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Available bool           `json:"available"`
	State     map[string]any `json:"state,omitempty"`
	Firmware  string         `json:"firmware,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertMessage is the retained repair notice publication.
// Active false withdraws the notice while leaving the tombstone
// readable for late subscribers.
type AlertMessage struct {
	IssueID   string    `json:"issue_id"`
	Device    string    `json:"device,omitempty"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// BusEventSink publishes click events onto the MQTT bus.
// Events are QoS 1 and never retained.
type BusEventSink struct {
	publisher Publisher
}

// NewBusEventSink creates an event sink over the given publisher.
func NewBusEventSink(publisher Publisher) *BusEventSink {
	return &BusEventSink{publisher: publisher}
}

// PublishEvent publishes one click event.
func (s *BusEventSink) PublishEvent(ev ClickEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling click event: %w", err)
	}
	if err := s.publisher.Publish(topics.DeviceEvent(ev.DeviceID), payload, 1, false); err != nil {
		return fmt.Errorf("publishing click event: %w", err)
	}
	return nil
}

// BusIssueRegistry manages repair notices as retained MQTT alerts.
type BusIssueRegistry struct {
	publisher Publisher
}

// NewBusIssueRegistry creates an issue registry over the given publisher.
func NewBusIssueRegistry(publisher Publisher) *BusIssueRegistry {
	return &BusIssueRegistry{publisher: publisher}
}

// RaiseIssue publishes an active notice, retained so new subscribers
// see standing issues immediately.
func (r *BusIssueRegistry) RaiseIssue(issueID, deviceName string) error {
	return r.publish(AlertMessage{
		IssueID:   issueID,
		Device:    deviceName,
		Active:    true,
		Timestamp: time.Now().UTC(),
	})
}

// ClearIssue publishes an inactive notice over the retained slot.
func (r *BusIssueRegistry) ClearIssue(issueID string) error {
	return r.publish(AlertMessage{
		IssueID:   issueID,
		Active:    false,
		Timestamp: time.Now().UTC(),
	})
}

func (r *BusIssueRegistry) publish(msg AlertMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling alert: %w", err)
	}
	if err := r.publisher.Publish(topics.Alert(msg.IssueID), payload, 1, true); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}

// BusStatePublisher publishes device state and availability, retained.
//
// Wire it as a coordinator listener:
//
//	pub := shelly.NewBusStatePublisher(mqttClient)
//	remove := coord.AddListener(func() { pub.PublishState(coord) })
type BusStatePublisher struct {
	publisher Publisher

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBusStatePublisher creates a state publisher over the given publisher.
func NewBusStatePublisher(publisher Publisher) *BusStatePublisher {
	return &BusStatePublisher{publisher: publisher}
}

// SetLogger sets the logger for the publisher.
func (p *BusStatePublisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// PublishState publishes the coordinator's current snapshot and
// availability. Publish errors are logged, not returned - listeners
// have nowhere to put an error.
func (p *BusStatePublisher) PublishState(c *Coordinator) {
	msg := StateMessage{
		DeviceID:  c.EntryID(),
		Available: c.Available(),
		Timestamp: time.Now().UTC(),
	}
	if snap := c.Snapshot(); snap != nil {
		msg.State = snap.Payload
		msg.Firmware = snap.Firmware
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logError("failed to marshal state message", err)
		return
	}

	if err := p.publisher.Publish(topics.DeviceState(msg.DeviceID), payload, 1, true); err != nil {
		p.logError("failed to publish state message", err)
	}
}

// logError logs an error if a logger is set.
func (p *BusStatePublisher) logError(msg string, err error) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
