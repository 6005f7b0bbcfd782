// Package config loads and validates the Shelly bridge configuration.
//
// Configuration is read from a YAML file with three layers of precedence:
// hardcoded defaults, file values, and SHELLYBRIDGE_* environment variable
// overrides (highest). The coordinator timing parameters (poll multipliers,
// reconnect interval, reload cooldown, push-failure ceiling) live here so
// the coordinator package consumes them rather than computing its own.
package config
