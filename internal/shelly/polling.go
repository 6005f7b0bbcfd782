package shelly

import (
	"context"
	"time"
)

// pollLoop drives the per-device schedule.
//
// The interval is recomputed before every arm, so sleep period updates
// and config changes take effect on the next cycle. Rearm is
// unconditional: success, failure, and liveness timeout all schedule
// the next tick.
func (c *Coordinator) pollLoop() {
	defer c.wg.Done()

	// Always-on devices get an immediate first refresh so state is
	// populated before the first full interval elapses. Sleeping
	// devices wait for their first wakeup push instead.
	if !c.sleeps() {
		c.refreshOnce()
	}

	for {
		timer := time.NewTimer(c.nextInterval())

		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		if c.sleeps() {
			c.checkLiveness()
			continue
		}

		c.refreshOnce()
	}
}

// nextInterval computes the current tick interval.
//
// Always-on devices poll at base interval x update multiplier. Sleeping
// devices are checked at sleep period x sleep multiplier - not to poll
// them, but to bound how long a missed wakeup goes unnoticed.
func (c *Coordinator) nextInterval() time.Duration {
	if sleep := c.sleepPeriod(); sleep > 0 {
		return time.Duration(float64(sleep) * c.sleepMultiplier * float64(time.Second))
	}
	return time.Duration(float64(c.basePollInterval) * c.updateMultiplier)
}

// refreshOnce runs a single bounded refresh. Failures are already
// handled inside Refresh; the error is only for trace logging here.
func (c *Coordinator) refreshOnce() {
	ctx, cancel := context.WithTimeout(c.ctx, refreshTimeout)
	defer cancel()

	if err := c.Refresh(ctx); err != nil {
		c.logDebug("scheduled refresh failed", "entry", c.entry.ID, "error", err)
	}
}

// checkLiveness marks a sleeping device unavailable when no update has
// arrived within its window. This is a timeout, not an error path: the
// device is never contacted.
func (c *Coordinator) checkLiveness() {
	window := c.nextInterval()

	c.mu.RLock()
	last := c.lastSuccess
	c.mu.RUnlock()

	if last.IsZero() || time.Since(last) > window {
		c.markUnavailable("sleep window elapsed")
		c.notifyListeners()
	}
}
