package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("SHELLYBRIDGE_CONFIG")
	defer os.Setenv("SHELLYBRIDGE_CONFIG", originalEnv)

	os.Setenv("SHELLYBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidDatabasePath verifies run fails when the database path
// fails validation.
func TestRun_InvalidDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
bridge:
  id: test-bridge

database:
  path: ""

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

logging:
  level: error
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	originalEnv := os.Getenv("SHELLYBRIDGE_CONFIG")
	defer os.Setenv("SHELLYBRIDGE_CONFIG", originalEnv)
	os.Setenv("SHELLYBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("SHELLYBRIDGE_CONFIG")
	defer os.Setenv("SHELLYBRIDGE_CONFIG", originalEnv)

	os.Unsetenv("SHELLYBRIDGE_CONFIG")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	os.Setenv("SHELLYBRIDGE_CONFIG", "/etc/shelly/config.yaml")
	if got := getConfigPath(); got != "/etc/shelly/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}
