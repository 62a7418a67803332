package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	CMS       CMSConfig       `yaml:"cms"`
	Live      LiveConfig      `yaml:"live"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodySize  int    `yaml:"max_body_size"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// NotifierConfig contains streaming endpoint settings
type NotifierConfig struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	ClientBufferSize         int `yaml:"client_buffer_size"`
}

// WebhookConfig contains CMS webhook ingress settings.
// The shared secrets themselves are read from the named environment
// variables at request time so they can be rotated without a restart.
type WebhookConfig struct {
	SecretEnv        string `yaml:"secret_env"`
	SecretNextEnv    string `yaml:"secret_next_env"`
	FullPayloadDelay int    `yaml:"full_payload_delay_ms"`
}

// CMSConfig contains headless CMS client settings
type CMSConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LiveConfig contains live snapshot cache settings
type LiveConfig struct {
	SnapshotCacheSize int `yaml:"snapshot_cache_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodySize:  1048576, // 1MB
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Notifier: NotifierConfig{
			HeartbeatIntervalSeconds: 30,
			ClientBufferSize:         64,
		},
		Webhook: WebhookConfig{
			SecretEnv:        "LIVEWIRE_WEBHOOK_SECRET",
			SecretNextEnv:    "LIVEWIRE_WEBHOOK_SECRET_NEXT",
			FullPayloadDelay: 100,
		},
		CMS: CMSConfig{
			BaseURL:        "http://localhost:1337",
			TimeoutSeconds: 10,
		},
		Live: LiveConfig{
			SnapshotCacheSize: 256,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "livewire",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, serverAddr string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	// Load from file if specified
	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Override with command line flags (highest priority)
	if serverAddr != "" {
		config.Server.Addr = serverAddr
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("LIVEWIRE_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}

	if url := os.Getenv("LIVEWIRE_CMS_BASE_URL"); url != "" {
		config.CMS.BaseURL = url
	}
	if token := os.Getenv("LIVEWIRE_CMS_TOKEN"); token != "" {
		config.CMS.Token = token
	}

	if intervalStr := os.Getenv("LIVEWIRE_HEARTBEAT_INTERVAL_SECONDS"); intervalStr != "" {
		if val, err := strconv.Atoi(intervalStr); err == nil {
			config.Notifier.HeartbeatIntervalSeconds = val
		}
	}

	if level := os.Getenv("LIVEWIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LIVEWIRE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if endpoint := os.Getenv("LIVEWIRE_OTLP_ENDPOINT"); endpoint != "" {
		config.Telemetry.Endpoint = endpoint
	}
}
