package shellyhttp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// defaultTimeout bounds a single device HTTP request when the caller's
// context carries no deadline of its own.
const defaultTimeout = 10 * time.Second

// Options holds configuration for creating a device client.
type Options struct {
	// Host is the device network address (IP or hostname). Required.
	Host string

	// MAC is the device MAC address without separators. Required.
	MAC string

	// Generation selects the device protocol. Required.
	Generation entry.Generation

	// Username and Password are the device credentials. Optional;
	// Gen1 devices use them as HTTP basic auth, RPC devices send them
	// in the auth challenge response.
	Username string
	Password string

	// HTTPClient overrides the default HTTP client. Optional.
	HTTPClient *http.Client

	// Logger is an optional structured logger.
	Logger shelly.Logger
}

// Client is an HTTP polling implementation of shelly.Device.
//
// It covers both device generations over plain request/response HTTP:
// Gen1 devices expose REST endpoints, RPC devices answer JSON-RPC posts.
// There is no persistent connection, so Connected reports true once the
// first Initialize probe succeeds, and device-initiated pushes never
// arrive on this transport - every update flows through Refresh.
type Client struct {
	host       string
	mac        string
	generation entry.Generation
	username   string
	password   string
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
	firmware    string

	onUpdate func(shelly.UpdateKind, *shelly.Snapshot)
	onEvent  func([]shelly.InputEvent)

	logger   shelly.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a device client.
//
// Parameters:
//   - opts: Client configuration (Host, MAC, and Generation are required)
//
// Returns:
//   - *Client: Ready to use (call Initialize to probe connectivity)
//   - error: Validation failure
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if opts.MAC == "" {
		return nil, fmt.Errorf("mac is required")
	}
	if opts.Generation < entry.Gen1 {
		return nil, fmt.Errorf("generation is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		host:       opts.Host,
		mac:        opts.MAC,
		generation: opts.Generation,
		username:   opts.Username,
		password:   opts.Password,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Refresh fetches the current device state.
func (c *Client) Refresh(ctx context.Context) (*shelly.Snapshot, error) {
	var (
		snap *shelly.Snapshot
		err  error
	)
	if c.generation == entry.Gen1 {
		snap, err = c.refreshGen1(ctx)
	} else {
		snap, err = c.refreshRPC(ctx)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if snap.Firmware != "" {
		c.firmware = snap.Firmware
	}
	c.mu.Unlock()

	return snap, nil
}

// Initialize probes device connectivity. For a polling transport this is
// a single status fetch; there is no session to establish.
func (c *Client) Initialize(ctx context.Context) error {
	if _, err := c.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.logDebug("device probe succeeded", "host", c.host)
	return nil
}

// Connected reports whether the initial probe has succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Generation returns the device protocol generation.
func (c *Client) Generation() entry.Generation {
	return c.generation
}

// MAC returns the device MAC address without separators.
func (c *Client) MAC() string {
	return c.mac
}

// Host returns the device network address.
func (c *Client) Host() string {
	return c.host
}

// FirmwareVersion returns the last observed firmware version.
func (c *Client) FirmwareVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firmware
}

// SetOnUpdate registers the push update callback. A polling transport
// never invokes it; registration is kept so the device handle can be
// swapped for a push-capable one without touching the coordinator.
func (c *Client) SetOnUpdate(fn func(kind shelly.UpdateKind, snap *shelly.Snapshot)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// SetOnEvent registers the raw input event callback.
func (c *Client) SetOnEvent(fn func(events []shelly.InputEvent)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger shelly.Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
