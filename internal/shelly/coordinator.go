package shelly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
)

// Coordinator timing defaults. All of these are externally configurable;
// the defaults apply when an option is left zero.
const (
	// defaultBasePollInterval is the poll period before the update
	// multiplier is applied.
	defaultBasePollInterval = 15 * time.Second

	// defaultUpdateMultiplier scales the base poll interval for
	// always-on devices.
	defaultUpdateMultiplier = 2.2

	// defaultSleepMultiplier scales the device sleep period into the
	// liveness window for battery devices.
	defaultSleepMultiplier = 1.2

	// defaultReconnectInterval is how often disconnected RPC devices
	// are retried.
	defaultReconnectInterval = 60 * time.Second

	// defaultReloadCooldown is the reload debounce window.
	defaultReloadCooldown = 60 * time.Second

	// defaultPushFailureCeiling is how many consecutive replays raise
	// the repair notice.
	defaultPushFailureCeiling = 5

	// refreshTimeout bounds a single device refresh.
	refreshTimeout = 15 * time.Second

	// connectTimeout bounds a reconnect attempt.
	connectTimeout = 15 * time.Second
)

// Host is the surface the coordinator uses to reach back into the
// bridge runtime. Implemented in main; by fakes in tests.
type Host interface {
	// RequestReload asks the runtime to tear down and rebuild this
	// entry's coordinator. Requests are debounced by the coordinator.
	RequestReload(entryID string)

	// RequestReauth signals that the entry needs fresh credentials.
	// Called at most once per failure episode.
	RequestReauth(entryID string)
}

// EntryStore is the subset of entry persistence the coordinator needs.
// Satisfied by *entry.SQLiteStore.
type EntryStore interface {
	UpdateSleepPeriod(ctx context.Context, id string, seconds int) error
	UpdateFirmware(ctx context.Context, id string, version string) error
}

// Telemetry receives coordinator metrics. Satisfied by *influxdb.Client.
// Optional - a nil Telemetry disables metric recording.
type Telemetry interface {
	WriteRefreshMetric(deviceID string, durationMs float64, success bool)
	WriteAvailability(deviceID string, available bool)
	WritePushFailures(deviceID string, count int)
}

// CoordinatorOptions holds configuration for creating a coordinator.
type CoordinatorOptions struct {
	// Entry is the persisted device entry. Required.
	Entry *entry.Entry

	// Device is the device client handle. Required.
	Device Device

	// Host is the bridge runtime callback surface. Required.
	Host Host

	// Store persists entry updates. Required.
	Store EntryStore

	// BasePollInterval, UpdateMultiplier, SleepMultiplier,
	// ReconnectInterval, ReloadCooldown, and PushFailureCeiling are the
	// externally supplied scheduling parameters. Zero values take the
	// package defaults.
	BasePollInterval   time.Duration
	UpdateMultiplier   float64
	SleepMultiplier    float64
	ReconnectInterval  time.Duration
	ReloadCooldown     time.Duration
	PushFailureCeiling int

	// Events receives outward click events. Optional.
	Events EventSink

	// Issues manages standing repair notices. Optional.
	Issues IssueRegistry

	// Telemetry records coordinator metrics. Optional.
	Telemetry Telemetry

	// Logger is an optional structured logger.
	Logger Logger
}

// Coordinator keeps one device's local cache synchronized.
//
// It owns the device handle and serializes all state transitions -
// scheduled polls, device-initiated pushes, and reconnect-triggered
// refreshes - through a single-flight mutex, so listeners always observe
// a consistent snapshot/availability pair.
//
// Thread Safety: all methods are safe for concurrent use.
type Coordinator struct {
	entry  *entry.Entry
	device Device
	host   Host
	store  EntryStore

	basePollInterval  time.Duration
	updateMultiplier  float64
	sleepMultiplier   float64
	reconnectInterval time.Duration

	pushFail   *PushFailureTracker
	dispatcher *Dispatcher
	debouncer  *ReloadDebouncer
	telemetry  Telemetry

	// refreshMu serializes poll refresh, push handling, and
	// reconnect-triggered refresh.
	refreshMu sync.Mutex

	// State guarded by mu.
	mu                  sync.RWMutex
	snapshot            *Snapshot
	lastSuccess         time.Time
	available           bool
	reauthPending       bool
	fwUnsupportedLogged bool
	haveCfgRevision     bool
	lastCfgRevision     int64
	lastDeviceClass     string
	lastColorMode       string
	lastEffect          int

	// Listeners notified after every completed refresh cycle.
	listeners    map[int]func()
	nextListener int
	listenerMu   sync.Mutex

	// Reconnect single-flight flag.
	connecting bool
	connectMu  sync.Mutex

	// preConnect runs before each reconnect attempt (e.g. stopping a
	// discovery scanner that holds the device's socket). Optional.
	preConnect func(ctx context.Context) error

	// Shutdown coordination.
	started   bool
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewCoordinator creates a coordinator instance.
// Call Start() to begin operation.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Entry == nil {
		return nil, fmt.Errorf("entry is required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("entry store is required")
	}

	if opts.BasePollInterval <= 0 {
		opts.BasePollInterval = defaultBasePollInterval
	}
	if opts.UpdateMultiplier <= 0 {
		opts.UpdateMultiplier = defaultUpdateMultiplier
	}
	if opts.SleepMultiplier <= 0 {
		opts.SleepMultiplier = defaultSleepMultiplier
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.ReloadCooldown <= 0 {
		opts.ReloadCooldown = defaultReloadCooldown
	}
	if opts.PushFailureCeiling <= 0 {
		opts.PushFailureCeiling = defaultPushFailureCeiling
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	c := &Coordinator{
		entry:             opts.Entry,
		device:            opts.Device,
		host:              opts.Host,
		store:             opts.Store,
		basePollInterval:  opts.BasePollInterval,
		updateMultiplier:  opts.UpdateMultiplier,
		sleepMultiplier:   opts.SleepMultiplier,
		reconnectInterval: opts.ReconnectInterval,
		telemetry:         opts.Telemetry,
		listeners:         make(map[int]func()),
		done:              make(chan struct{}),
		ctx:               ctx,
		ctxCancel:         ctxCancel,
		logger:            opts.Logger,
	}

	c.pushFail = NewPushFailureTracker(
		opts.Entry.MAC, opts.Entry.Name, opts.PushFailureCeiling, opts.Issues)
	c.dispatcher = NewDispatcher(
		opts.Entry.ID, opts.Entry.Name, opts.Entry.Generation, opts.Events)
	c.debouncer = NewReloadDebouncer(opts.ReloadCooldown, func() {
		c.logInfo("requesting entry reload", "entry", c.entry.ID)
		c.host.RequestReload(c.entry.ID)
	})

	if opts.Logger != nil {
		c.pushFail.SetLogger(opts.Logger)
		c.dispatcher.SetLogger(opts.Logger)
	}

	return c, nil
}

// Start begins coordinator operation: device callbacks are registered,
// the polling loop starts, and RPC devices get a reconnect loop.
// Always-on devices are refreshed immediately; sleeping devices are
// never actively polled and wait for their first wakeup push.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.device.SetOnUpdate(c.handleUpdate)
	c.device.SetOnEvent(c.handleEvents)

	c.wg.Add(1)
	go c.pollLoop()

	if c.entry.Generation >= entry.Gen2 && !c.sleeps() {
		c.wg.Add(1)
		go c.reconnectLoop()
	}

	c.logInfo("coordinator started",
		"entry", c.entry.ID,
		"generation", int(c.entry.Generation),
		"sleeps", c.sleeps())
}

// Stop gracefully shuts down the coordinator.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.ctxCancel()
		c.debouncer.Stop()
		c.wg.Wait()
		c.logInfo("coordinator stopped", "entry", c.entry.ID)
	})
}

// SetPreConnect registers a hook that runs before each reconnect
// attempt. An ErrInvalidAuth from the hook routes to reauthentication
// like any other auth failure.
func (c *Coordinator) SetPreConnect(hook func(ctx context.Context) error) {
	c.connectMu.Lock()
	c.preConnect = hook
	c.connectMu.Unlock()
}

// Refresh performs one synchronous device refresh.
//
// Refreshes are single-flight: concurrent calls (poll tick, manual
// request, reconnect resync) serialize, and push updates arriving
// mid-refresh wait their turn. Listener notification completes before
// Refresh returns.
//
// Returns the classified error on failure; the coordinator has already
// reacted to it (availability, reauth, notice) by the time it returns.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked performs one device refresh. Caller holds refreshMu.
func (c *Coordinator) refreshLocked(ctx context.Context) error {
	start := time.Now()
	snap, err := c.device.Refresh(ctx)
	elapsed := time.Since(start)

	if c.telemetry != nil {
		c.telemetry.WriteRefreshMetric(
			c.entry.ID, float64(elapsed.Microseconds())/1000.0, err == nil)
	}

	if err != nil {
		c.handleFailure(err)
		c.notifyListeners()
		return err
	}

	c.recordSuccess(snap)
	c.notifyListeners()
	return nil
}

// handleUpdate processes a device-initiated state update.
func (c *Coordinator) handleUpdate(kind UpdateKind, snap *Snapshot) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	switch kind {
	case UpdateReplay:
		c.pushFail.RecordReplay()
	case UpdatePeriodic:
		c.pushFail.RecordPeriodic()
	}
	if c.telemetry != nil {
		c.telemetry.WritePushFailures(c.entry.ID, c.pushFail.Failures())
	}

	c.recordSuccess(snap)
	c.notifyListeners()
}

// handleEvents routes raw input events to the dispatcher.
func (c *Coordinator) handleEvents(events []InputEvent) {
	if c.entry.Generation == entry.Gen1 {
		for _, ev := range events {
			c.dispatcher.HandleCounter(ev.Channel, ev.Type, ev.Count)
		}
		return
	}
	c.dispatcher.HandleBatch(events)
}

// recordSuccess applies a successful snapshot. Caller holds refreshMu.
func (c *Coordinator) recordSuccess(snap *Snapshot) {
	now := time.Now()

	c.mu.Lock()
	wasAvailable := c.available
	c.available = true
	c.snapshot = snap
	c.lastSuccess = now

	// A successful refresh ends the current failure episode.
	c.reauthPending = false
	c.fwUnsupportedLogged = false

	// Structural-change detection against the previous snapshot.
	reload := false
	if c.haveCfgRevision && snap.CfgRevision != c.lastCfgRevision {
		reload = c.isStructuralLocked(snap)
	}
	c.haveCfgRevision = true
	c.lastCfgRevision = snap.CfgRevision
	c.lastDeviceClass = snap.DeviceClass
	c.lastColorMode = snap.ColorMode
	c.lastEffect = snap.Effect

	// Entry bookkeeping deltas, computed under lock, persisted outside.
	sleepChanged := snap.WakeupPeriod > 0 && snap.WakeupPeriod != c.entry.SleepPeriod
	if sleepChanged {
		c.entry.SleepPeriod = snap.WakeupPeriod
	}
	fwChanged := snap.Firmware != "" && snap.Firmware != c.entry.Firmware
	if fwChanged {
		c.entry.Firmware = snap.Firmware
	}
	c.mu.Unlock()

	if sleepChanged {
		if err := c.store.UpdateSleepPeriod(c.ctx, c.entry.ID, snap.WakeupPeriod); err != nil {
			c.logError("failed to persist sleep period", err)
		} else {
			c.logInfo("sleep period updated",
				"entry", c.entry.ID, "seconds", snap.WakeupPeriod)
		}
	}
	if fwChanged {
		if err := c.store.UpdateFirmware(c.ctx, c.entry.ID, snap.Firmware); err != nil {
			c.logError("failed to persist firmware version", err)
		}
	}

	if !wasAvailable {
		c.logInfo("device available", "entry", c.entry.ID)
		if c.telemetry != nil {
			c.telemetry.WriteAvailability(c.entry.ID, true)
		}
	}

	if reload {
		c.logInfo("structural config change detected", "entry", c.entry.ID)
		c.debouncer.Request()
	}
}

// isStructuralLocked decides whether a config revision change requires
// an entry reload. Caller holds mu.
//
// A device class change always does. If the class is unchanged and only
// the cosmetic light attributes (colour mode, effect) moved, the change
// is absorbed without a reload. Any other config edit reloads.
func (c *Coordinator) isStructuralLocked(snap *Snapshot) bool {
	if snap.DeviceClass != c.lastDeviceClass {
		return true
	}
	cosmetic := snap.ColorMode != c.lastColorMode || snap.Effect != c.lastEffect
	return !cosmetic
}

// handleFailure routes a classified refresh failure. Caller holds refreshMu.
func (c *Coordinator) handleFailure(err error) {
	class := Classify(err)

	switch class {
	case FailureFirmwareUnsupported:
		// No availability flap: the device is reachable, just too old.
		c.mu.Lock()
		logged := c.fwUnsupportedLogged
		c.fwUnsupportedLogged = true
		c.mu.Unlock()
		if !logged {
			c.logError("device firmware unsupported", err,
				"entry", c.entry.ID, "firmware", c.device.FirmwareVersion())
		}

	case FailureAuthInvalid:
		c.markUnavailable("auth rejected")
		c.requestReauthOnce()

	case FailureTransient:
		c.markUnavailable("connection failed")
		c.logDebug("refresh failed", "entry", c.entry.ID, "error", err)

	default:
		c.markUnavailable("unrecognized failure")
		c.logError("refresh failed with unrecognized error", err,
			"entry", c.entry.ID)
	}
}

// markUnavailable transitions to unavailable, once per episode.
func (c *Coordinator) markUnavailable(reason string) {
	c.mu.Lock()
	was := c.available
	c.available = false
	c.mu.Unlock()

	if was {
		c.logInfo("device unavailable", "entry", c.entry.ID, "reason", reason)
		if c.telemetry != nil {
			c.telemetry.WriteAvailability(c.entry.ID, false)
		}
	}
}

// requestReauthOnce asks the host for reauthentication, at most once per
// episode. The episode ends on the next successful refresh.
func (c *Coordinator) requestReauthOnce() {
	c.mu.Lock()
	if c.reauthPending {
		c.mu.Unlock()
		return
	}
	c.reauthPending = true
	c.mu.Unlock()

	c.logWarn("authentication rejected, requesting reauth", "entry", c.entry.ID)
	c.host.RequestReauth(c.entry.ID)
}

// AddListener registers a callback invoked after every completed
// refresh cycle. The returned function removes the listener; removal is
// safe at any time, including from within a listener.
func (c *Coordinator) AddListener(fn func()) (remove func()) {
	c.listenerMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

// notifyListeners invokes every registered listener. The listener set
// is snapshotted first so listeners may add or remove during delivery.
func (c *Coordinator) notifyListeners() {
	c.listenerMu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// sleeps reports whether the entry currently describes a sleeping device.
func (c *Coordinator) sleeps() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry.SleepPeriod > 0
}

// sleepPeriod returns the current sleep period in seconds.
func (c *Coordinator) sleepPeriod() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry.SleepPeriod
}

// Snapshot returns the most recent successful snapshot, or nil before
// the first success.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Available reports the device availability.
func (c *Coordinator) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// LastSuccess returns when the last successful refresh completed.
// Zero before the first success.
func (c *Coordinator) LastSuccess() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// PushFailures returns the current consecutive replay count.
func (c *Coordinator) PushFailures() int {
	return c.pushFail.Failures()
}

// ReauthPending reports whether a reauthentication request is
// outstanding for the current episode.
func (c *Coordinator) ReauthPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reauthPending
}

// EntryID returns the coordinator's entry identifier.
func (c *Coordinator) EntryID() string {
	return c.entry.ID
}

// SetLogger sets the logger for the coordinator and its components.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()

	c.pushFail.SetLogger(logger)
	c.dispatcher.SetLogger(logger)
}

// logInfo logs an info message if logger is set.
func (c *Coordinator) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (c *Coordinator) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (c *Coordinator) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Coordinator) logError(msg string, err error, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		args := append([]any{"error", err}, keysAndValues...)
		logger.Error(msg, args...)
	}
}
