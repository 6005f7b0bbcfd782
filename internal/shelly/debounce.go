package shelly

import (
	"sync"
	"time"
)

// ReloadDebouncer collapses bursts of reload requests into one execution.
//
// Each Request resets the cooldown timer, so the action fires once per
// burst, after the last request. At most one execution runs at a time;
// a request arriving mid-execution queues exactly one re-run, no matter
// how many requests arrive while running.
//
// Thread Safety: all methods are safe for concurrent use.
type ReloadDebouncer struct {
	cooldown time.Duration
	action   func()

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	queued  bool
	stopped bool

	wg sync.WaitGroup
}

// NewReloadDebouncer creates a debouncer with the given cooldown.
// The action is invoked on its own goroutine after the cooldown elapses
// without further requests.
func NewReloadDebouncer(cooldown time.Duration, action func()) *ReloadDebouncer {
	return &ReloadDebouncer{
		cooldown: cooldown,
		action:   action,
	}
}

// Request schedules (or reschedules) the action.
// Calling Request again before the cooldown elapses restarts the timer.
// Requests after Stop are ignored.
func (d *ReloadDebouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.cooldown, d.fire)
}

// fire runs when the cooldown elapses. If an execution is already in
// flight, it queues a single re-run instead of starting a second one.
func (d *ReloadDebouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.queued = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run()
}

// run executes the action, then once more if a re-run was queued.
func (d *ReloadDebouncer) run() {
	defer d.wg.Done()

	for {
		d.action()

		d.mu.Lock()
		if d.queued && !d.stopped {
			d.queued = false
			d.mu.Unlock()
			continue
		}
		d.running = false
		d.mu.Unlock()
		return
	}
}

// Stop cancels any pending timer and waits for an in-flight execution
// to finish. Safe to call multiple times; Request after Stop is a no-op.
func (d *ReloadDebouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.wg.Wait()
}
