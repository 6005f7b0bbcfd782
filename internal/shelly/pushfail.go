package shelly

import "sync"

// issuePrefix namespaces the standing repair notice for missed pushes.
const issuePrefix = "push_update_"

// IssueID returns the repair notice identifier for a device.
// The identifier is MAC-derived so it stays stable across renames.
//
// Example: push_update_AABBCCDDEEFF
func IssueID(mac string) string {
	return issuePrefix + mac
}

// IssueRegistry manages standing repair notices.
// Implemented by BusIssueRegistry over MQTT; by fakes in tests.
type IssueRegistry interface {
	// RaiseIssue creates or refreshes a standing notice.
	RaiseIssue(issueID, deviceName string) error

	// ClearIssue withdraws a standing notice. Clearing an absent notice
	// is a no-op.
	ClearIssue(issueID string) error
}

// PushFailureTracker counts consecutive replay-variant updates.
//
// A replay means the device failed to push state on its own and the
// coordinator had to fetch it. When the consecutive count reaches the
// ceiling, a standing repair notice is raised. The next periodic-variant
// update resets the counter and clears the notice.
//
// Thread Safety: all methods are safe for concurrent use.
type PushFailureTracker struct {
	issueID    string
	deviceName string
	ceiling    int
	registry   IssueRegistry

	mu       sync.Mutex
	failures int
	raised   bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPushFailureTracker creates a tracker for one device.
// The registry may be nil, in which case failures are counted but no
// notice is raised.
func NewPushFailureTracker(mac, deviceName string, ceiling int, registry IssueRegistry) *PushFailureTracker {
	return &PushFailureTracker{
		issueID:    IssueID(mac),
		deviceName: deviceName,
		ceiling:    ceiling,
		registry:   registry,
	}
}

// SetLogger sets the logger for the tracker.
func (t *PushFailureTracker) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// RecordReplay counts one replay-variant update.
// The counter saturates at the ceiling; the notice is raised exactly
// once per episode, when the ceiling is first reached.
func (t *PushFailureTracker) RecordReplay() {
	t.mu.Lock()

	if t.failures < t.ceiling {
		t.failures++
	}

	shouldRaise := t.failures >= t.ceiling && !t.raised
	if shouldRaise {
		t.raised = true
	}
	t.mu.Unlock()

	if !shouldRaise || t.registry == nil {
		return
	}

	if err := t.registry.RaiseIssue(t.issueID, t.deviceName); err != nil {
		t.logError("failed to raise push update notice", err)
		// Leave raised set; the notice retries on the next episode.
	}
}

// RecordPeriodic counts one periodic-variant update: the counter resets
// and any standing notice is cleared.
func (t *PushFailureTracker) RecordPeriodic() {
	t.mu.Lock()
	t.failures = 0
	wasRaised := t.raised
	t.raised = false
	t.mu.Unlock()

	if !wasRaised || t.registry == nil {
		return
	}

	if err := t.registry.ClearIssue(t.issueID); err != nil {
		t.logError("failed to clear push update notice", err)
	}
}

// Failures returns the current consecutive replay count.
func (t *PushFailureTracker) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

// Raised reports whether the repair notice is currently standing.
func (t *PushFailureTracker) Raised() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raised
}

// logError logs an error if a logger is set.
func (t *PushFailureTracker) logError(msg string, err error) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
