// Gray Logic Shelly Bridge
//
// This is the main entry point for the Shelly protocol bridge. The
// bridge keeps a local state cache for each configured Shelly device
// and publishes state, click events, repair alerts, and bridge health
// onto the Gray Logic MQTT bus.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/entry"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
	"github.com/nerrad567/gray-logic-shelly/internal/shellyhttp"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// requestTimeout bounds a manually requested device refresh.
const requestTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Shelly bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Initialise entry store (creates schema on first run)
	store, err := entry.NewSQLiteStore(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("initialising entry store: %w", err)
	}

	// Seed entries from config. The store is authoritative after seeding:
	// entries already present keep their persisted sleep period, firmware,
	// and auth flag.
	if err := seedEntries(ctx, cfg, store, log); err != nil {
		return fmt.Errorf("seeding entries: %w", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	log.Info("entry store initialised", "entries", len(entries))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		if influxClient != nil {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the coordinator runtime
	rt := newRuntime(cfg, store, mqttClient, influxClient, log)
	for i := range entries {
		if err := rt.startEntry(ctx, entries[i]); err != nil {
			log.Error("failed to start coordinator", "error", err, "entry", entries[i].ID)
		}
	}
	defer rt.stopAll()
	log.Info("coordinators started", "count", len(rt.Coordinators()))

	// Inbound manual refresh requests: graylogic/request/shelly/{id}
	topics := mqtt.Topics{}
	if err := mqttClient.Subscribe(topics.AllDeviceRequests(), byte(cfg.MQTT.QoS), rt.handleRequest); err != nil {
		return fmt.Errorf("subscribing to device requests: %w", err)
	}
	defer func() {
		// Stop accepting requests before the coordinators tear down.
		if err := mqttClient.Unsubscribe(topics.AllDeviceRequests()); err != nil {
			log.Warn("failed to unsubscribe from device requests", "error", err)
		}
	}()

	// Start health reporting
	health := shelly.NewHealthReporter(shelly.HealthReporterConfig{
		BridgeID:     cfg.Bridge.ID,
		Version:      version,
		Interval:     cfg.GetHealthInterval(),
		Publisher:    mqttClient,
		Coordinators: rt,
	})
	health.SetLogger(log)
	if err := health.PublishStarting(); err != nil {
		log.Warn("failed to publish starting status", "error", err)
	}
	health.Start(ctx)
	defer health.Stop()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if influxClient != nil {
		influxClient.WritePoint("bridge",
			map[string]string{"bridge_id": cfg.Bridge.ID},
			map[string]interface{}{
				"started":      true,
				"coordinators": len(rt.Coordinators()),
				"version":      version,
			})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHELLYBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHELLYBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedEntries creates store entries for configured devices that do not
// exist yet.
func seedEntries(ctx context.Context, cfg *config.Config, store *entry.SQLiteStore, log *logging.Logger) error {
	for _, dev := range cfg.Devices {
		e := &entry.Entry{
			ID:          dev.ID,
			Name:        dev.Name,
			Host:        dev.Host,
			MAC:         strings.ToUpper(dev.MAC),
			Generation:  entry.Generation(dev.Generation),
			SleepPeriod: dev.SleepPeriod,
		}
		if err := store.Create(ctx, e); err != nil {
			if errors.Is(err, entry.ErrExists) {
				continue
			}
			return fmt.Errorf("creating entry %q: %w", dev.ID, err)
		}
		log.Info("entry seeded", "entry", dev.ID, "host", dev.Host)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// runtime owns the running coordinators and implements the callback
// surfaces the domain needs from the binary: shelly.Host (reload and
// reauth requests) and shelly.CoordinatorSet (health counts).
type runtime struct {
	cfg      *config.Config
	store    *entry.SQLiteStore
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	log      *logging.Logger
	events   *shelly.BusEventSink
	issues   *shelly.BusIssueRegistry
	statePub *shelly.BusStatePublisher

	mu     sync.Mutex
	coords map[string]*coordinatorHandle
}

// coordinatorHandle bundles a coordinator with its listener teardown.
type coordinatorHandle struct {
	coord          *shelly.Coordinator
	removeListener func()
}

func newRuntime(cfg *config.Config, store *entry.SQLiteStore, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) *runtime {
	statePub := shelly.NewBusStatePublisher(mqttClient)
	statePub.SetLogger(log)

	return &runtime{
		cfg:      cfg,
		store:    store,
		mqtt:     mqttClient,
		influx:   influxClient,
		log:      log,
		events:   shelly.NewBusEventSink(mqttClient),
		issues:   shelly.NewBusIssueRegistry(mqttClient),
		statePub: statePub,
		coords:   make(map[string]*coordinatorHandle),
	}
}

// startEntry builds the device client and coordinator for one entry and
// starts it. Replaces any coordinator already running for the entry.
func (r *runtime) startEntry(ctx context.Context, e entry.Entry) error {
	username, password := r.deviceCredentials(e.ID)

	device, err := shellyhttp.NewClient(shellyhttp.Options{
		Host:       e.Host,
		MAC:        e.MAC,
		Generation: e.Generation,
		Username:   username,
		Password:   password,
		Logger:     r.log,
	})
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}

	opts := shelly.CoordinatorOptions{
		Entry:              &e,
		Device:             device,
		Host:               r,
		Store:              r.store,
		BasePollInterval:   r.cfg.GetBasePollInterval(),
		UpdateMultiplier:   r.cfg.Coordinator.UpdateMultiplier,
		SleepMultiplier:    r.cfg.Coordinator.SleepMultiplier,
		ReconnectInterval:  r.cfg.GetReconnectInterval(),
		ReloadCooldown:     r.cfg.GetReloadCooldown(),
		PushFailureCeiling: r.cfg.Coordinator.PushFailureCeiling,
		Events:             r.events,
		Issues:             r.issues,
		Logger:             r.log,
	}
	if r.influx != nil {
		opts.Telemetry = r.influx
	}

	coord, err := shelly.NewCoordinator(opts)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	remove := coord.AddListener(func() {
		r.statePub.PublishState(coord)
	})

	r.mu.Lock()
	old := r.coords[e.ID]
	r.coords[e.ID] = &coordinatorHandle{coord: coord, removeListener: remove}
	r.mu.Unlock()

	if old != nil {
		old.removeListener()
		old.coord.Stop()
	}

	coord.Start()
	return nil
}

// RequestReload implements shelly.Host. The rebuild runs asynchronously:
// it is invoked from the coordinator's own debounce goroutine, and
// stopping the old coordinator from there would deadlock.
func (r *runtime) RequestReload(entryID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		e, err := r.store.GetByID(ctx, entryID)
		if err != nil {
			r.log.Error("reload failed to load entry", "error", err, "entry", entryID)
			return
		}
		if err := r.startEntry(ctx, *e); err != nil {
			r.log.Error("reload failed", "error", err, "entry", entryID)
			return
		}
		r.log.Info("entry reloaded", "entry", entryID)
	}()
}

// RequestReauth implements shelly.Host. The entry is flagged as needing
// credentials and a standing alert is raised for the operator.
func (r *runtime) RequestReauth(entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := r.store.SetAuthRequired(ctx, entryID, true); err != nil {
		r.log.Error("failed to flag entry for reauth", "error", err, "entry", entryID)
	}
	if err := r.issues.RaiseIssue("reauth_"+entryID, entryID); err != nil {
		r.log.Error("failed to raise reauth alert", "error", err, "entry", entryID)
	}
	r.log.Warn("device requires reauthentication", "entry", entryID)
}

// Coordinators implements shelly.CoordinatorSet.
func (r *runtime) Coordinators() []*shelly.Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*shelly.Coordinator, 0, len(r.coords))
	for _, h := range r.coords {
		out = append(out, h.coord)
	}
	return out
}

// requestMessage is the inbound device request payload.
type requestMessage struct {
	Action string `json:"action"`
}

// handleRequest processes graylogic/request/shelly/{id} messages.
func (r *runtime) handleRequest(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	entryID := parts[len(parts)-1]

	var req requestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}

	r.mu.Lock()
	h := r.coords[entryID]
	r.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no coordinator for entry %q", entryID)
	}

	switch req.Action {
	case "refresh":
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := h.coord.Refresh(ctx); err != nil {
			return fmt.Errorf("refreshing %q: %w", entryID, err)
		}
	case "reload":
		r.RequestReload(entryID)
	default:
		return fmt.Errorf("unknown action %q", req.Action)
	}
	return nil
}

// stopAll tears down every running coordinator.
func (r *runtime) stopAll() {
	r.mu.Lock()
	handles := make([]*coordinatorHandle, 0, len(r.coords))
	for _, h := range r.coords {
		handles = append(handles, h)
	}
	r.coords = make(map[string]*coordinatorHandle)
	r.mu.Unlock()

	for _, h := range handles {
		h.removeListener()
		h.coord.Stop()
	}
	r.log.Info("all coordinators stopped")
}

// deviceCredentials returns the configured credentials for a device.
func (r *runtime) deviceCredentials(entryID string) (username, password string) {
	for _, dev := range r.cfg.Devices {
		if dev.ID == entryID {
			return dev.Username, dev.Password
		}
	}
	return "", ""
}
