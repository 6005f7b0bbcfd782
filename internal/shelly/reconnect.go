package shelly

import (
	"context"
	"time"
)

// reconnectLoop retries the device session for persistent-connection
// (RPC) devices. The ticker re-arms unconditionally; connected devices
// make each tick a cheap no-op.
func (c *Coordinator) reconnectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.maybeReconnect()
		}
	}
}

// maybeReconnect attempts to re-establish the device session.
//
// Attempts are single-flight: a tick arriving while an attempt is in
// progress is dropped, not queued. Failure routing mirrors refresh:
// transient failures mark the device unavailable, notify listeners of
// the transition, and wait for the next tick; auth rejection requests
// reauth once per episode without touching availability (the episode's
// availability was already settled by the refresh that observed the
// disconnect).
func (c *Coordinator) maybeReconnect() {
	if c.device.Connected() {
		return
	}

	c.connectMu.Lock()
	if c.connecting {
		c.connectMu.Unlock()
		return
	}
	c.connecting = true
	hook := c.preConnect
	c.connectMu.Unlock()

	defer func() {
		c.connectMu.Lock()
		c.connecting = false
		c.connectMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, connectTimeout)
	defer cancel()

	// The attempt shares the refresh single-flight guard: the device
	// handle must never see Initialize concurrently with a poll refresh
	// or push handling.
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// The pre-connect hook releases whatever else may hold the device's
	// socket. Its auth failures route to reauth like any other.
	if hook != nil {
		if err := hook(ctx); err != nil {
			if Classify(err) == FailureAuthInvalid {
				c.requestReauthOnce()
			} else {
				c.logDebug("pre-connect hook failed",
					"entry", c.entry.ID, "error", err)
			}
			return
		}
	}

	if err := c.device.Initialize(ctx); err != nil {
		switch Classify(err) {
		case FailureAuthInvalid:
			c.requestReauthOnce()
		default:
			c.markUnavailable("reconnect failed")
			c.notifyListeners()
			c.logDebug("reconnect attempt failed",
				"entry", c.entry.ID, "error", err)
		}
		return
	}

	c.logInfo("device reconnected", "entry", c.entry.ID)

	// Resync state now rather than waiting for the next poll tick.
	if err := c.refreshLocked(ctx); err != nil {
		c.logDebug("post-reconnect refresh failed",
			"entry", c.entry.ID, "error", err)
	}
}
