package shelly

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_SingleRequest(t *testing.T) {
	var runs atomic.Int32
	d := NewReloadDebouncer(20*time.Millisecond, func() {
		runs.Add(1)
	})
	defer d.Stop()

	d.Request()

	waitFor(t, 500*time.Millisecond, func() bool { return runs.Load() == 1 })
}

func TestDebouncer_BurstCollapses(t *testing.T) {
	var runs atomic.Int32
	d := NewReloadDebouncer(30*time.Millisecond, func() {
		runs.Add(1)
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Request()
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, 500*time.Millisecond, func() bool { return runs.Load() == 1 })

	// Settle: no additional runs fire after the burst.
	time.Sleep(100 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
}

func TestDebouncer_RequestResetsTimer(t *testing.T) {
	var runs atomic.Int32
	d := NewReloadDebouncer(50*time.Millisecond, func() {
		runs.Add(1)
	})
	defer d.Stop()

	d.Request()
	time.Sleep(30 * time.Millisecond)
	d.Request() // restarts the 50ms window
	time.Sleep(30 * time.Millisecond)

	// 60ms since the first request, but only 30ms since the second.
	if runs.Load() != 0 {
		t.Errorf("runs = %d before cooldown elapsed, want 0", runs.Load())
	}

	waitFor(t, 500*time.Millisecond, func() bool { return runs.Load() == 1 })
}

func TestDebouncer_QueuesOneRerunWhileRunning(t *testing.T) {
	var runs atomic.Int32
	block := make(chan struct{})
	var once sync.Once

	d := NewReloadDebouncer(10*time.Millisecond, func() {
		if runs.Add(1) == 1 {
			<-block // hold the first execution open
		}
	})

	d.Request()
	waitFor(t, 500*time.Millisecond, func() bool { return runs.Load() == 1 })

	// Several requests while the action runs queue exactly one re-run.
	for i := 0; i < 5; i++ {
		d.Request()
		time.Sleep(15 * time.Millisecond)
	}

	once.Do(func() { close(block) })

	waitFor(t, 500*time.Millisecond, func() bool { return runs.Load() == 2 })

	time.Sleep(100 * time.Millisecond)
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}

	d.Stop()
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var runs atomic.Int32
	d := NewReloadDebouncer(50*time.Millisecond, func() {
		runs.Add(1)
	})

	d.Request()
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("runs = %d after Stop, want 0", runs.Load())
	}

	// Requests after Stop are ignored.
	d.Request()
	time.Sleep(100 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("runs = %d after post-Stop request, want 0", runs.Load())
	}
}

func TestDebouncer_StopWaitsForExecution(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	d := NewReloadDebouncer(5*time.Millisecond, func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		close(finished)
	})

	d.Request()
	<-started

	d.Stop()

	select {
	case <-finished:
	default:
		t.Error("Stop() returned before the in-flight execution finished")
	}
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
