package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the twin simulator
type Config struct {
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Stream   StreamConfig   `yaml:"stream"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// VehicleConfig identifies the simulated vehicle
type VehicleConfig struct {
	ID    string `yaml:"id"`
	Model string `yaml:"model"`
	Seed  int64  `yaml:"seed"` // 0 = time-seeded read-out noise
}

// ScenarioConfig sets the scripted suite's durations and tick cadence
type ScenarioConfig struct {
	IdleTicks         int           `yaml:"idle_ticks"`
	AccelerationTicks int           `yaml:"acceleration_ticks"`
	CruiseTicks       int           `yaml:"cruise_ticks"`
	HighLoadTicks     int           `yaml:"high_load_ticks"`
	TickInterval      time.Duration `yaml:"tick_interval"`
}

// StreamConfig contains connection settings for the remote twin consumer
type StreamConfig struct {
	Enabled              bool          `yaml:"enabled"`
	URL                  string        `yaml:"url"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
	DropOldest           bool          `yaml:"drop_oldest"`
}

// ExportConfig controls the one-shot JSON export
type ExportConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	// Only set defaults if fields are zero values
	if c.Vehicle.ID == "" {
		c.Vehicle.ID = "TEST_VEHICLE_001"
	}
	if c.Vehicle.Model == "" {
		c.Vehicle.Model = "virtual-inline4"
	}
	if c.Scenario.IdleTicks == 0 {
		c.Scenario.IdleTicks = 5
	}
	if c.Scenario.AccelerationTicks == 0 {
		c.Scenario.AccelerationTicks = 10
	}
	if c.Scenario.CruiseTicks == 0 {
		c.Scenario.CruiseTicks = 10
	}
	if c.Scenario.HighLoadTicks == 0 {
		c.Scenario.HighLoadTicks = 8
	}
	if c.Scenario.TickInterval == 0 {
		c.Scenario.TickInterval = 1 * time.Second
	}
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = 10 * time.Second
	}
	if c.Stream.ReconnectInterval == 0 {
		c.Stream.ReconnectInterval = 1 * time.Second
	}
	if c.Stream.MaxReconnectInterval == 0 {
		c.Stream.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = 30 * time.Second
	}
	if c.Stream.PongTimeout == 0 {
		c.Stream.PongTimeout = 10 * time.Second
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = 1000
		c.Stream.DropOldest = true
	}
	if c.Export.Path == "" {
		c.Export.Path = "digital_twin_test_data.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	// Only override if environment variable is set (non-empty)
	if v := os.Getenv("VEHICLE_ID"); v != "" {
		c.Vehicle.ID = v
	}
	if v := os.Getenv("VEHICLE_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Vehicle.Seed = seed
		}
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Stream.AuthToken = v
	}
	if v := os.Getenv("EXPORT_PATH"); v != "" {
		c.Export.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Vehicle.ID == "" {
		return fmt.Errorf("vehicle ID is required")
	}
	if c.Scenario.IdleTicks < 0 || c.Scenario.AccelerationTicks < 0 ||
		c.Scenario.CruiseTicks < 0 || c.Scenario.HighLoadTicks < 0 {
		return fmt.Errorf("scenario tick counts must not be negative")
	}
	if c.Scenario.TickInterval < 0 {
		return fmt.Errorf("tick interval must not be negative")
	}
	if c.Export.Path == "" {
		return fmt.Errorf("export path is required")
	}
	if c.Stream.Enabled {
		if c.Stream.URL == "" {
			return fmt.Errorf("stream URL is required when streaming is enabled")
		}
		if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
			return fmt.Errorf("stream URL must start with ws:// or wss://")
		}
		if c.Stream.AuthToken == "" {
			return fmt.Errorf("stream auth token is required when streaming is enabled")
		}
		if c.Stream.BufferSize < 10 || c.Stream.BufferSize > 100000 {
			return fmt.Errorf("stream buffer size must be between 10 and 100000")
		}
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Vehicle: %+v, Scenario: %+v, Stream: [enabled=%t URL=%s Token=%s], Export: %+v, Logging: %+v}",
		c.Vehicle,
		c.Scenario,
		c.Stream.Enabled,
		c.Stream.URL,
		maskToken(c.Stream.AuthToken),
		c.Export,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
