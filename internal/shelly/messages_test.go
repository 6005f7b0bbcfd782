package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// fakePublisher records published messages.
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (p *fakePublisher) last(t *testing.T) publishedMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		t.Fatal("no messages published")
	}
	return p.messages[len(p.messages)-1]
}

func TestBusEventSink_PublishEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewBusEventSink(pub)

	err := sink.PublishEvent(ClickEvent{
		DeviceID:   "button-hall",
		Device:     "Hall Button",
		Channel:    0,
		ClickType:  "single",
		Generation: 1,
	})
	if err != nil {
		t.Fatalf("PublishEvent() error: %v", err)
	}

	msg := pub.last(t)
	if msg.topic != "graylogic/event/shelly/button-hall" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.qos != 1 || msg.retained {
		t.Errorf("qos=%d retained=%v, want qos=1 retained=false", msg.qos, msg.retained)
	}

	var ev ClickEvent
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.ClickType != "single" || ev.DeviceID != "button-hall" {
		t.Errorf("decoded event = %+v", ev)
	}
}

func TestBusEventSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewBusEventSink(pub)

	if err := sink.PublishEvent(ClickEvent{DeviceID: "button-hall"}); err == nil {
		t.Error("PublishEvent() succeeded, want error")
	}
}

func TestBusIssueRegistry_RaiseAndClear(t *testing.T) {
	pub := &fakePublisher{}
	reg := NewBusIssueRegistry(pub)

	if err := reg.RaiseIssue("push_update_AABBCCDDEEFF", "Hall Button"); err != nil {
		t.Fatalf("RaiseIssue() error: %v", err)
	}

	msg := pub.last(t)
	if msg.topic != "graylogic/alert/shelly/push_update_AABBCCDDEEFF" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Error("alert not retained")
	}

	var alert AlertMessage
	if err := json.Unmarshal(msg.payload, &alert); err != nil {
		t.Fatalf("unmarshal alert: %v", err)
	}
	if !alert.Active || alert.Device != "Hall Button" {
		t.Errorf("raise alert = %+v", alert)
	}

	if err := reg.ClearIssue("push_update_AABBCCDDEEFF"); err != nil {
		t.Fatalf("ClearIssue() error: %v", err)
	}

	msg = pub.last(t)
	if err := json.Unmarshal(msg.payload, &alert); err != nil {
		t.Fatalf("unmarshal alert: %v", err)
	}
	if alert.Active {
		t.Error("cleared alert still active")
	}
	if !msg.retained {
		t.Error("clear tombstone not retained")
	}
}

func TestBusStatePublisher_PublishState(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	pub := &fakePublisher{}
	sp := NewBusStatePublisher(pub)
	sp.PublishState(c)

	msg := pub.last(t)
	if msg.topic != "graylogic/state/shelly/plug-kitchen" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Error("state not retained")
	}

	var state StateMessage
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !state.Available {
		t.Error("state.Available = false")
	}
	if state.DeviceID != "plug-kitchen" {
		t.Errorf("state.DeviceID = %q", state.DeviceID)
	}
	if state.State == nil {
		t.Error("state.State is empty")
	}
	if state.Firmware != "1.0.0" {
		t.Errorf("state.Firmware = %q", state.Firmware)
	}
}

func TestBusStatePublisher_BeforeFirstSnapshot(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorOptions{})

	pub := &fakePublisher{}
	sp := NewBusStatePublisher(pub)
	sp.PublishState(c)

	var state StateMessage
	if err := json.Unmarshal(pub.last(t).payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Available {
		t.Error("state.Available = true before first refresh")
	}
	if state.State != nil {
		t.Errorf("state.State = %v, want empty", state.State)
	}
}

func TestBusStatePublisher_PublishErrorIsSwallowed(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorOptions{})

	pub := &fakePublisher{err: errors.New("not connected")}
	sp := NewBusStatePublisher(pub)

	// Listener path has no error return; must not panic.
	sp.PublishState(c)
}
