package shelly

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMaybeReconnect_ConnectedIsNoOp(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot(), connected: true}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})

	c.maybeReconnect()

	if dev.initCount() != 0 {
		t.Errorf("initCount = %d for connected device, want 0", dev.initCount())
	}
}

func TestMaybeReconnect_SuccessResyncsState(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})

	c.maybeReconnect()

	if dev.initCount() != 1 {
		t.Errorf("initCount = %d, want 1", dev.initCount())
	}
	if dev.refreshCount() != 1 {
		t.Errorf("refreshCount = %d, want 1 (post-reconnect resync)", dev.refreshCount())
	}
	if !c.Available() {
		t.Error("Available() = false after successful reconnect")
	}
}

func TestMaybeReconnect_TransientFailureMarksUnavailable(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	host := &fakeHost{}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev, Host: host})

	// Establish availability, then drop the session.
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	dev.initErr = fmt.Errorf("dial: %w", ErrConnection)

	c.maybeReconnect()

	if c.Available() {
		t.Error("Available() = true after failed reconnect")
	}
	if host.reauthCount() != 0 {
		t.Errorf("reauthCount = %d, want 0", host.reauthCount())
	}
}

func TestMaybeReconnect_TransientFailureNotifiesListeners(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})

	var notified int
	c.AddListener(func() { notified++ })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if notified != 1 {
		t.Fatalf("listener notified %d times after refresh, want 1", notified)
	}

	dev.initErr = fmt.Errorf("dial: %w", ErrConnection)

	c.maybeReconnect()

	if c.Available() {
		t.Fatal("Available() = true after failed reconnect")
	}
	// The availability transition must reach listeners so the retained
	// state reflects the device going offline before the next poll tick.
	if notified != 2 {
		t.Errorf("listener notified %d times after failed reconnect, want 2", notified)
	}
}

func TestMaybeReconnect_ExclusiveWithRefresh(t *testing.T) {
	dev := &fakeDevice{
		snap:        testSnapshot(),
		initStarted: make(chan struct{}),
		initBlock:   make(chan struct{}),
	}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})

	reconnectDone := make(chan struct{})
	go func() {
		c.maybeReconnect()
		close(reconnectDone)
	}()
	<-dev.initStarted

	refreshDone := make(chan error, 1)
	go func() { refreshDone <- c.Refresh(context.Background()) }()

	// A refresh arriving mid-attempt waits its turn; the device handle
	// never sees Refresh and Initialize concurrently.
	select {
	case <-refreshDone:
		t.Fatal("Refresh() completed while a reconnect attempt was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(dev.initBlock)
	<-reconnectDone

	if err := <-refreshDone; err != nil {
		t.Fatalf("Refresh() error after reconnect completed: %v", err)
	}
}

func TestMaybeReconnect_AuthFailureRequestsReauth(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	host := &fakeHost{}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev, Host: host})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	dev.initErr = fmt.Errorf("handshake: %w", ErrInvalidAuth)

	c.maybeReconnect()
	c.maybeReconnect()

	if host.reauthCount() != 1 {
		t.Errorf("reauthCount = %d, want 1 (once per episode)", host.reauthCount())
	}

	// Auth rejection during reconnect leaves availability alone; the
	// refresh that observed the disconnect already settled it.
	if !c.Available() {
		t.Error("Available() = false, auth rejection should not flap availability")
	}
}

func TestMaybeReconnect_PreConnectAuthFailure(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	host := &fakeHost{}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev, Host: host})

	c.SetPreConnect(func(ctx context.Context) error {
		return fmt.Errorf("scanner release: %w", ErrInvalidAuth)
	})

	c.maybeReconnect()

	if host.reauthCount() != 1 {
		t.Errorf("reauthCount = %d, want 1", host.reauthCount())
	}
	if dev.initCount() != 0 {
		t.Errorf("initCount = %d after hook failure, want 0", dev.initCount())
	}
}

func TestMaybeReconnect_PreConnectTransientFailureSkipsAttempt(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	host := &fakeHost{}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev, Host: host})

	c.SetPreConnect(func(ctx context.Context) error {
		return errors.New("scanner busy")
	})

	c.maybeReconnect()

	if dev.initCount() != 0 {
		t.Errorf("initCount = %d after hook failure, want 0", dev.initCount())
	}
	if host.reauthCount() != 0 {
		t.Errorf("reauthCount = %d, want 0", host.reauthCount())
	}
}

func TestMaybeReconnect_PreConnectSuccessProceeds(t *testing.T) {
	dev := &fakeDevice{snap: testSnapshot()}
	c := newTestCoordinator(t, CoordinatorOptions{Device: dev})

	var hookCalls int
	c.SetPreConnect(func(ctx context.Context) error {
		hookCalls++
		return nil
	})

	c.maybeReconnect()

	if hookCalls != 1 {
		t.Errorf("hookCalls = %d, want 1", hookCalls)
	}
	if dev.initCount() != 1 {
		t.Errorf("initCount = %d, want 1", dev.initCount())
	}
}
