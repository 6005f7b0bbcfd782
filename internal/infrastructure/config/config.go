package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Shelly bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Devices     []DeviceConfig    `yaml:"devices"`
}

// BridgeConfig contains bridge identity settings.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	HealthInterval int    `yaml:"health_interval"` // seconds between health reports
}

// DatabaseConfig contains SQLite database settings for the entry store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for coordinator telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// CoordinatorConfig contains the externally supplied timing and threshold
// parameters for device update coordinators. The coordinator consumes these
// values; it never computes them itself.
type CoordinatorConfig struct {
	// BasePollInterval is the device poll period in seconds before the
	// update multiplier is applied.
	BasePollInterval int `yaml:"base_poll_interval"`

	// UpdateMultiplier scales BasePollInterval for always-on devices.
	UpdateMultiplier float64 `yaml:"update_multiplier"`

	// SleepMultiplier scales a sleeping device's sleep period to obtain
	// its liveness window.
	SleepMultiplier float64 `yaml:"sleep_multiplier"`

	// ReconnectInterval is the seconds between reconnect attempts for
	// persistent-connection devices.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// ReloadCooldown is the debounce window in seconds for entry reloads
	// triggered by device configuration changes.
	ReloadCooldown int `yaml:"reload_cooldown"`

	// PushFailureCeiling is the number of consecutive missed push updates
	// before a repair notice is raised.
	PushFailureCeiling int `yaml:"push_failure_ceiling"`
}

// DeviceConfig seeds a device entry on first start. Entries already present
// in the store are not overwritten; the store is authoritative after seeding.
type DeviceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	MAC         string `yaml:"mac"`
	Generation  int    `yaml:"generation"`
	SleepPeriod int    `yaml:"sleep_period"` // seconds; 0 for always-on
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHELLYBRIDGE_SECTION_KEY
// For example: SHELLYBRIDGE_DATABASE_PATH, SHELLYBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The coordinator defaults mirror the cadence Shelly devices expect: a poll
// period slightly longer than twice the device's own report period, a
// liveness window slightly longer than a sleeper's wake schedule, and a one
// minute cadence for reconnects and reload debouncing.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "shelly-bridge-01",
			HealthInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/shelly-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shelly-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Coordinator: CoordinatorConfig{
			BasePollInterval:   15,
			UpdateMultiplier:   2.2,
			SleepMultiplier:    1.2,
			ReconnectInterval:  60,
			ReloadCooldown:     60,
			PushFailureCeiling: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHELLYBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SHELLYBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SHELLYBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHELLYBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHELLYBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SHELLYBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Coordinator.BasePollInterval <= 0 {
		errs = append(errs, "coordinator.base_poll_interval must be positive")
	}
	if c.Coordinator.UpdateMultiplier <= 0 {
		errs = append(errs, "coordinator.update_multiplier must be positive")
	}
	if c.Coordinator.SleepMultiplier < 1 {
		errs = append(errs, "coordinator.sleep_multiplier must be at least 1")
	}
	if c.Coordinator.ReconnectInterval <= 0 {
		errs = append(errs, "coordinator.reconnect_interval must be positive")
	}
	if c.Coordinator.ReloadCooldown <= 0 {
		errs = append(errs, "coordinator.reload_cooldown must be positive")
	}
	if c.Coordinator.PushFailureCeiling <= 0 {
		errs = append(errs, "coordinator.push_failure_ceiling must be positive")
	}

	for i, dev := range c.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		}
		if dev.Host == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].host is required", i))
		}
		if dev.Generation != 1 && dev.Generation != 2 {
			errs = append(errs, fmt.Sprintf("devices[%d].generation must be 1 or 2", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHealthInterval returns the bridge health report interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetBasePollInterval returns the coordinator base poll interval as a Duration.
func (c *Config) GetBasePollInterval() time.Duration {
	return time.Duration(c.Coordinator.BasePollInterval) * time.Second
}

// GetReconnectInterval returns the reconnect interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Coordinator.ReconnectInterval) * time.Second
}

// GetReloadCooldown returns the reload debounce cooldown as a Duration.
func (c *Config) GetReloadCooldown() time.Duration {
	return time.Duration(c.Coordinator.ReloadCooldown) * time.Second
}
