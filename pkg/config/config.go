package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the rigd configuration
type Config struct {
	Rig struct {
		// Backend selection
		Backend string `yaml:"backend"`

		// CAT transport parameters
		Device   string `yaml:"device"`
		BaudRate int    `yaml:"baud_rate"`
		Address  string `yaml:"address"`

		// Startup state
		PowerOnStart bool   `yaml:"power_on_start"`
		InitialFreq  uint64 `yaml:"initial_freq"`
		InitialMode  string `yaml:"initial_mode"`

		// Control task tuning
		QueueSize        int `yaml:"queue_size"`
		EventBuffer      int `yaml:"event_buffer"`
		PollActiveMs     int `yaml:"poll_active_ms"`
		PollIdleMs       int `yaml:"poll_idle_ms"`
		PollIdleAfter    int `yaml:"poll_idle_after"`
		RetryInitialMs   int `yaml:"retry_initial_ms"`
		RetryMaxMs       int `yaml:"retry_max_ms"`
		RetryMaxAttempts int `yaml:"retry_max_attempts"`
	} `yaml:"rig"`

	Listener struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"listener"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
		AuthSecret  string `yaml:"auth_secret"`
		TokenTTLMin int    `yaml:"token_ttl_min"`
	} `yaml:"web"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		Topic    string `yaml:"topic"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"mqtt"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxEvents    int    `yaml:"max_events"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with every default applied, for
// running without a config file.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Rig.Backend == "" {
		c.Rig.Backend = "dummy"
	}
	if c.Rig.BaudRate == 0 {
		c.Rig.BaudRate = 4800
	}
	if c.Rig.QueueSize == 0 {
		c.Rig.QueueSize = 16
	}
	if c.Rig.EventBuffer == 0 {
		c.Rig.EventBuffer = 32
	}
	if c.Rig.PollActiveMs == 0 {
		c.Rig.PollActiveMs = 250
	}
	if c.Rig.PollIdleMs == 0 {
		c.Rig.PollIdleMs = 5000
	}
	if c.Rig.PollIdleAfter == 0 {
		c.Rig.PollIdleAfter = 4
	}
	if c.Rig.RetryInitialMs == 0 {
		c.Rig.RetryInitialMs = 100
	}
	if c.Rig.RetryMaxMs == 0 {
		c.Rig.RetryMaxMs = 2000
	}
	if c.Rig.RetryMaxAttempts == 0 {
		c.Rig.RetryMaxAttempts = 3
	}
	if c.Listener.Port == 0 {
		c.Listener.Port = 14290
	}
	if c.Listener.BindAddress == "" {
		c.Listener.BindAddress = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "0.0.0.0"
	}
	if c.Web.TokenTTLMin == 0 {
		c.Web.TokenTTLMin = 480
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "rigd/state"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rigd"
	}
	if c.Storage.MaxEvents == 0 {
		c.Storage.MaxEvents = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Rig.Backend == "" {
		return fmt.Errorf("rig backend is required")
	}
	if c.Rig.Backend == "ft817" && c.Rig.Device == "" && c.Rig.Address == "" {
		return fmt.Errorf("ft817 backend requires a device or address")
	}
	if c.Rig.Device != "" && c.Rig.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive for serial devices")
	}
	if c.Listener.Port < 0 || c.Listener.Port > 65535 {
		return fmt.Errorf("listener port %d out of range", c.Listener.Port)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	return nil
}
