package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "rigd-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
rig:
  backend: "ft817"
  device: "/dev/ttyUSB0"
  baud_rate: 38400
  power_on_start: true
  initial_freq: 14070000
  initial_mode: "USB"

listener:
  port: 14290
  bind_address: "127.0.0.1"

web:
  port: 8080
  bind_address: "0.0.0.0"
  auth_secret: "hunter2"

storage:
  database_path: "/tmp/rigd.db"
  max_events: 5000

logging:
  level: "debug"
  console: true
`
		configPath := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}

		if cfg.Rig.Backend != "ft817" {
			t.Errorf("Expected backend ft817, got %s", cfg.Rig.Backend)
		}
		if cfg.Rig.Device != "/dev/ttyUSB0" {
			t.Errorf("Expected device /dev/ttyUSB0, got %s", cfg.Rig.Device)
		}
		if cfg.Rig.BaudRate != 38400 {
			t.Errorf("Expected baud rate 38400, got %d", cfg.Rig.BaudRate)
		}
		if cfg.Rig.InitialFreq != 14070000 {
			t.Errorf("Expected initial frequency 14070000, got %d", cfg.Rig.InitialFreq)
		}
		if cfg.Web.AuthSecret != "hunter2" {
			t.Errorf("Expected auth secret set, got %q", cfg.Web.AuthSecret)
		}
		if cfg.Storage.MaxEvents != 5000 {
			t.Errorf("Expected max events 5000, got %d", cfg.Storage.MaxEvents)
		}

		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected valid config, got %v", err)
		}
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "minimal.yaml")
		if err := os.WriteFile(configPath, []byte("rig:\n  backend: dummy\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}

		if cfg.Rig.QueueSize != 16 {
			t.Errorf("Expected default queue size 16, got %d", cfg.Rig.QueueSize)
		}
		if cfg.Rig.PollActiveMs != 250 || cfg.Rig.PollIdleMs != 5000 {
			t.Errorf("Expected default poll intervals, got %d/%d", cfg.Rig.PollActiveMs, cfg.Rig.PollIdleMs)
		}
		if cfg.Rig.RetryMaxAttempts != 3 {
			t.Errorf("Expected default retry attempts 3, got %d", cfg.Rig.RetryMaxAttempts)
		}
		if cfg.Listener.Port != 14290 {
			t.Errorf("Expected default listener port 14290, got %d", cfg.Listener.Port)
		}
		if cfg.Web.Port != 8080 {
			t.Errorf("Expected default web port 8080, got %d", cfg.Web.Port)
		}
		if cfg.MQTT.Topic != "rigd/state" {
			t.Errorf("Expected default mqtt topic, got %s", cfg.MQTT.Topic)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("Expected default log level info, got %s", cfg.Logging.Level)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(tempDir, "nope.yaml"))
		if err == nil {
			t.Fatal("Expected error for missing file")
		}
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "broken.yaml")
		if err := os.WriteFile(configPath, []byte("rig: [unclosed"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Fatal("Expected error for malformed YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("FT817 Needs Transport", func(t *testing.T) {
		cfg := Default()
		cfg.Rig.Backend = "ft817"
		cfg.Rig.Device = ""
		cfg.Rig.Address = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Expected validation error")
		}
		if !strings.Contains(err.Error(), "device or address") {
			t.Errorf("Unexpected error message: %v", err)
		}

		cfg.Rig.Address = "rig-bridge:4532"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected TCP address to satisfy ft817, got %v", err)
		}
	})

	t.Run("MQTT Needs Broker", func(t *testing.T) {
		cfg := Default()
		cfg.MQTT.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Fatal("Expected validation error without broker")
		}
		cfg.MQTT.Broker = "tcp://localhost:1883"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected valid config, got %v", err)
		}
	})

	t.Run("Port Ranges", func(t *testing.T) {
		cfg := Default()
		cfg.Web.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Fatal("Expected validation error for bad port")
		}
	})
}
