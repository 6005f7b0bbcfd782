package shelly

import (
	"errors"
	"sync"
	"testing"
)

// fakeIssueRegistry records raise/clear calls.
type fakeIssueRegistry struct {
	mu       sync.Mutex
	raised   []string
	cleared  []string
	raiseErr error
}

func (r *fakeIssueRegistry) RaiseIssue(issueID, deviceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raiseErr != nil {
		return r.raiseErr
	}
	r.raised = append(r.raised, issueID)
	return nil
}

func (r *fakeIssueRegistry) ClearIssue(issueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, issueID)
	return nil
}

func (r *fakeIssueRegistry) raiseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.raised)
}

func (r *fakeIssueRegistry) clearCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cleared)
}

func TestIssueID(t *testing.T) {
	if got := IssueID("AABBCCDDEEFF"); got != "push_update_AABBCCDDEEFF" {
		t.Errorf("IssueID() = %q, want %q", got, "push_update_AABBCCDDEEFF")
	}
}

func TestTracker_RaisesAtCeiling(t *testing.T) {
	reg := &fakeIssueRegistry{}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 3, reg)

	tr.RecordReplay()
	tr.RecordReplay()
	if reg.raiseCount() != 0 {
		t.Fatalf("notice raised before ceiling, failures=%d", tr.Failures())
	}

	tr.RecordReplay()
	if reg.raiseCount() != 1 {
		t.Errorf("raiseCount = %d, want 1", reg.raiseCount())
	}
	if !tr.Raised() {
		t.Error("Raised() = false after ceiling")
	}

	reg.mu.Lock()
	id := reg.raised[0]
	reg.mu.Unlock()
	if id != "push_update_AABBCCDDEEFF" {
		t.Errorf("raised issue ID = %q", id)
	}
}

func TestTracker_RaiseIsIdempotent(t *testing.T) {
	reg := &fakeIssueRegistry{}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 2, reg)

	for i := 0; i < 10; i++ {
		tr.RecordReplay()
	}

	if reg.raiseCount() != 1 {
		t.Errorf("raiseCount = %d, want 1", reg.raiseCount())
	}
}

func TestTracker_CounterSaturates(t *testing.T) {
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 3, nil)

	for i := 0; i < 10; i++ {
		tr.RecordReplay()
	}

	if got := tr.Failures(); got != 3 {
		t.Errorf("Failures() = %d, want 3 (saturated at ceiling)", got)
	}
}

func TestTracker_PeriodicResetsAndClears(t *testing.T) {
	reg := &fakeIssueRegistry{}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 2, reg)

	tr.RecordReplay()
	tr.RecordReplay()
	if !tr.Raised() {
		t.Fatal("notice not raised at ceiling")
	}

	tr.RecordPeriodic()

	if tr.Failures() != 0 {
		t.Errorf("Failures() = %d after periodic, want 0", tr.Failures())
	}
	if tr.Raised() {
		t.Error("Raised() = true after periodic")
	}
	if reg.clearCount() != 1 {
		t.Errorf("clearCount = %d, want 1", reg.clearCount())
	}
}

func TestTracker_PeriodicWithoutNoticeSkipsClear(t *testing.T) {
	reg := &fakeIssueRegistry{}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 5, reg)

	tr.RecordReplay()
	tr.RecordPeriodic()

	if reg.clearCount() != 0 {
		t.Errorf("clearCount = %d, want 0 (notice never raised)", reg.clearCount())
	}
}

func TestTracker_NewEpisodeRaisesAgain(t *testing.T) {
	reg := &fakeIssueRegistry{}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 2, reg)

	tr.RecordReplay()
	tr.RecordReplay()
	tr.RecordPeriodic()
	tr.RecordReplay()
	tr.RecordReplay()

	if reg.raiseCount() != 2 {
		t.Errorf("raiseCount = %d, want 2", reg.raiseCount())
	}
	if reg.clearCount() != 1 {
		t.Errorf("clearCount = %d, want 1", reg.clearCount())
	}
}

func TestTracker_NilRegistry(t *testing.T) {
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 2, nil)

	// Must not panic; counting still works.
	tr.RecordReplay()
	tr.RecordReplay()
	tr.RecordPeriodic()

	if tr.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", tr.Failures())
	}
}

func TestTracker_RaiseErrorKeepsRaisedFlag(t *testing.T) {
	reg := &fakeIssueRegistry{raiseErr: errors.New("bus down")}
	tr := NewPushFailureTracker("AABBCCDDEEFF", "Hall Button", 1, reg)

	tr.RecordReplay()

	// The flag stays set so the ceiling does not hammer the registry;
	// the next episode retries.
	if !tr.Raised() {
		t.Error("Raised() = false after failed raise")
	}
	tr.RecordReplay()
	if reg.raiseCount() != 0 {
		t.Errorf("raiseCount = %d, want 0", reg.raiseCount())
	}
}
