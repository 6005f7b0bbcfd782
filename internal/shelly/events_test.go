package shelly

import (
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
)

// fakeEventSink records published click events.
type fakeEventSink struct {
	mu     sync.Mutex
	events []ClickEvent
	err    error
}

func (s *fakeEventSink) PublishEvent(ev ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventSink) published() []ClickEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClickEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestHandleCounter_Dispatch(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "S", 1)

	got := sink.published()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}

	ev := got[0]
	if ev.DeviceID != "button-hall" {
		t.Errorf("DeviceID = %q, want %q", ev.DeviceID, "button-hall")
	}
	if ev.Device != "Hall Button" {
		t.Errorf("Device = %q, want %q", ev.Device, "Hall Button")
	}
	if ev.Channel != 0 {
		t.Errorf("Channel = %d, want 0", ev.Channel)
	}
	if ev.ClickType != "single" {
		t.Errorf("ClickType = %q, want %q", ev.ClickType, "single")
	}
	if ev.Generation != 1 {
		t.Errorf("Generation = %d, want 1", ev.Generation)
	}
}

func TestHandleCounter_RepeatedCountSuppressed(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	// Gen1 devices repeat the last event on every poll; only a counter
	// increase means a new press.
	d.HandleCounter(0, "S", 1)
	d.HandleCounter(0, "S", 1)
	d.HandleCounter(0, "S", 1)

	if got := sink.published(); len(got) != 1 {
		t.Errorf("published %d events, want 1", len(got))
	}
}

func TestHandleCounter_IncreasedCountDispatches(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "S", 1)
	d.HandleCounter(0, "SS", 2)

	got := sink.published()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2", len(got))
	}
	if got[1].ClickType != "double" {
		t.Errorf("second ClickType = %q, want %q", got[1].ClickType, "double")
	}
}

func TestHandleCounter_StaleCountSuppressed(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "S", 5)
	d.HandleCounter(0, "S", 3) // device rebooted or replayed old state

	if got := sink.published(); len(got) != 1 {
		t.Errorf("published %d events, want 1", len(got))
	}
}

func TestHandleCounter_EmptyTypeSuppressed(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "", 1)

	if got := sink.published(); len(got) != 0 {
		t.Errorf("published %d events, want 0", len(got))
	}

	// The counter still advanced; the same count must not dispatch later.
	d.HandleCounter(0, "S", 1)
	if got := sink.published(); len(got) != 0 {
		t.Errorf("published %d events after stale count, want 0", len(got))
	}
}

func TestHandleCounter_PerChannelCounters(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "S", 1)
	d.HandleCounter(1, "L", 1) // independent channel, same count

	got := sink.published()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2", len(got))
	}
	if got[1].Channel != 1 || got[1].ClickType != "long" {
		t.Errorf("second event = channel %d type %q, want channel 1 type long",
			got[1].Channel, got[1].ClickType)
	}
}

func TestHandleCounter_UnknownTypeDropped(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	d.HandleCounter(0, "XYZ", 1)

	if got := sink.published(); len(got) != 0 {
		t.Errorf("published %d events, want 0", len(got))
	}
}

func TestHandleCounter_Counterless(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

	// Devices without a counter report -1; every non-empty type
	// dispatches, empty reports are suppressed.
	d.HandleCounter(0, "S", -1)
	d.HandleCounter(0, "", -1)
	d.HandleCounter(0, "S", -1)

	if got := sink.published(); len(got) != 2 {
		t.Errorf("published %d events, want 2", len(got))
	}
}

func TestHandleCounter_TypeMappings(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"S", "single"},
		{"SS", "double"},
		{"SSS", "triple"},
		{"L", "long"},
		{"SL", "single_long"},
		{"LS", "long_single"},
	}

	for i, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sink := &fakeEventSink{}
			d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, sink)

			d.HandleCounter(0, tt.raw, i+1)

			got := sink.published()
			if len(got) != 1 {
				t.Fatalf("published %d events, want 1", len(got))
			}
			if got[0].ClickType != tt.expected {
				t.Errorf("ClickType = %q, want %q", got[0].ClickType, tt.expected)
			}
		})
	}
}

func TestHandleBatch_InOrder(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("plug-kitchen", "Kitchen Plug", entry.Gen2, sink)

	d.HandleBatch([]InputEvent{
		{Channel: 0, Type: "btn_down", Count: -1},
		{Channel: 0, Type: "btn_up", Count: -1},
		{Channel: 0, Type: "single_push", Count: -1},
	})

	got := sink.published()
	if len(got) != 3 {
		t.Fatalf("published %d events, want 3", len(got))
	}

	expected := []string{"btn_down", "btn_up", "single_push"}
	for i, want := range expected {
		if got[i].ClickType != want {
			t.Errorf("event %d ClickType = %q, want %q", i, got[i].ClickType, want)
		}
	}
	if got[0].Generation != 2 {
		t.Errorf("Generation = %d, want 2", got[0].Generation)
	}
}

func TestHandleBatch_UnknownAndEmptySkipped(t *testing.T) {
	sink := &fakeEventSink{}
	d := NewDispatcher("plug-kitchen", "Kitchen Plug", entry.Gen2, sink)

	d.HandleBatch([]InputEvent{
		{Channel: 0, Type: "single_push", Count: -1},
		{Channel: 0, Type: "mystery_event", Count: -1},
		{Channel: 0, Type: "", Count: -1},
		{Channel: 0, Type: "double_push", Count: -1},
	})

	got := sink.published()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2", len(got))
	}
	if got[0].ClickType != "single_push" || got[1].ClickType != "double_push" {
		t.Errorf("events = %q, %q", got[0].ClickType, got[1].ClickType)
	}
}

func TestDispatcher_NilSink(t *testing.T) {
	d := NewDispatcher("button-hall", "Hall Button", entry.Gen1, nil)

	// Must not panic.
	d.HandleCounter(0, "S", 1)
	d.HandleBatch([]InputEvent{{Channel: 0, Type: "single_push", Count: -1}})
}
