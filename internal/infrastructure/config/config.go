package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device channel types.
const (
	ChannelIntiface = "intiface"
	ChannelMQTT     = "mqtt"
)

// Signal source types.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Config is the root configuration structure for FeedSync Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Signal    SignalConfig    `yaml:"signal"`
	Channel   ChannelConfig   `yaml:"channel"`
	Security  SecurityConfig  `yaml:"security"`
}

// InstanceConfig identifies this FeedSync instance.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes and ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// EngineConfig controls the mapping engine timing.
type EngineConfig struct {
	// TickInterval is the signal ingestion period. Default: 2s
	TickInterval time.Duration `yaml:"tick_interval"`

	// OscillationInterval is the per-row oscillation update period. Default: 175ms
	OscillationInterval time.Duration `yaml:"oscillation_interval"`

	// Frequency is the oscillation frequency in Hz. Default: 0.5
	Frequency float64 `yaml:"frequency"`

	// MaxDevices caps how many devices get mapping rows. Default: 4
	MaxDevices int `yaml:"max_devices"`

	// SendTimeout bounds a single command delivery. Default: 2s
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// SignalConfig controls where feed text comes from and how it is tokenized.
type SignalConfig struct {
	// Source is "http" (text pushed to the API) or "mqtt" (text read from Topic).
	Source string `yaml:"source"`
	Topic  string `yaml:"topic"`

	// MarkerMode only accepts numbers immediately preceded by Marker, e.g. "v42".
	MarkerMode bool   `yaml:"marker_mode"`
	Marker     string `yaml:"marker"`

	// Phrases enables phrase levels when the text carries no numbers.
	// PhrasesFile may point to a YAML or JSON file of phrase -> level (0-100).
	Phrases     bool   `yaml:"phrases"`
	PhrasesFile string `yaml:"phrases_file"`
}

// ChannelConfig selects and configures the device control channel.
type ChannelConfig struct {
	Type     string             `yaml:"type"`
	Intiface IntifaceConfig     `yaml:"intiface"`
	Devices  []MQTTDeviceConfig `yaml:"devices"`
}

// IntifaceConfig contains Intiface (Buttplug protocol) server settings.
type IntifaceConfig struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`

	// ScanWait is how long to scan for devices before listing them. Default: 4s
	ScanWait time.Duration `yaml:"scan_wait"`

	// HealthInterval is the connection check period. Default: 10s
	HealthInterval time.Duration `yaml:"health_interval"`

	// RequestTimeout bounds a single request/response exchange. Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LinearDuration is the move duration sent with linear commands. Default: 500ms
	LinearDuration time.Duration `yaml:"linear_duration"`

	// Engine optionally launches a local Intiface Engine binary.
	Engine IntifaceEngineConfig `yaml:"engine"`
}

// IntifaceEngineConfig describes a locally supervised Intiface Engine process.
type IntifaceEngineConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	// RestartDelay is the pause before relaunching after a crash. Default: 5s
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestarts limits relaunches; 0 means unlimited. Default: 10
	MaxRestarts int `yaml:"max_restarts"`

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL. Default: 5s
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// StartupWait is the pause after launch before the first connect. Default: 1s
	StartupWait time.Duration `yaml:"startup_wait"`
}

// MQTTDeviceConfig declares a device driven over MQTT.
type MQTTDeviceConfig struct {
	ID        string               `yaml:"id"`
	Name      string               `yaml:"name"`
	Actuators []MQTTActuatorConfig `yaml:"actuators"`
}

// MQTTActuatorConfig declares one actuator of an MQTT device.
type MQTTActuatorConfig struct {
	Class      string `yaml:"class"`
	Descriptor string `yaml:"descriptor"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains settings for bearer-token protection of the control API.
type JWTConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FEEDSYNC_SECTION_KEY
// For example: FEEDSYNC_DATABASE_PATH, FEEDSYNC_INTIFACE_URL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, used when no file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Instance: InstanceConfig{
			ID:   "feedsync-001",
			Name: "FeedSync",
		},
		Database: DatabaseConfig{
			Path:        "./data/feedsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "feedsync-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/feedsync.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Engine: EngineConfig{
			TickInterval:        2 * time.Second,
			OscillationInterval: 175 * time.Millisecond,
			Frequency:           0.5,
			MaxDevices:          4,
			SendTimeout:         2 * time.Second,
		},
		Signal: SignalConfig{
			Source: SourceHTTP,
			Topic:  "feedsync/feed/text",
			Marker: "v",
		},
		Channel: ChannelConfig{
			Type: ChannelIntiface,
			Intiface: IntifaceConfig{
				URL:            "ws://localhost:12345",
				ClientName:     "FeedSync",
				ScanWait:       4 * time.Second,
				HealthInterval: 10 * time.Second,
				RequestTimeout: 5 * time.Second,
				LinearDuration: 500 * time.Millisecond,
				Engine: IntifaceEngineConfig{
					Binary:          "intiface-engine",
					Args:            []string{"--websocket-port", "12345", "--use-bluetooth-le"},
					RestartDelay:    5 * time.Second,
					MaxRestarts:     10,
					GracefulTimeout: 5 * time.Second,
					StartupWait:     time.Second,
				},
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FEEDSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FEEDSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FEEDSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FEEDSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FEEDSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Intiface
	if v := os.Getenv("FEEDSYNC_INTIFACE_URL"); v != "" {
		cfg.Channel.Intiface.URL = v
	}

	// InfluxDB
	if v := os.Getenv("FEEDSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("FEEDSYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Instance.ID == "" {
		errs = append(errs, "instance.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.Engine.validate()...)
	errs = append(errs, c.Signal.validate()...)
	errs = append(errs, c.Channel.validate()...)

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters (set FEEDSYNC_JWT_SECRET)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (e EngineConfig) validate() []string {
	var errs []string
	if e.TickInterval <= 0 {
		errs = append(errs, "engine.tick_interval must be positive")
	}
	if e.OscillationInterval <= 0 {
		errs = append(errs, "engine.oscillation_interval must be positive")
	}
	if e.Frequency <= 0 {
		errs = append(errs, "engine.frequency must be positive")
	}
	if e.MaxDevices < 1 {
		errs = append(errs, "engine.max_devices must be at least 1")
	}
	if e.SendTimeout <= 0 {
		errs = append(errs, "engine.send_timeout must be positive")
	}
	return errs
}

func (s SignalConfig) validate() []string {
	var errs []string
	switch s.Source {
	case SourceHTTP:
	case SourceMQTT:
		if s.Topic == "" {
			errs = append(errs, "signal.topic is required when signal.source is mqtt")
		}
	default:
		errs = append(errs, fmt.Sprintf("signal.source %q must be %q or %q", s.Source, SourceHTTP, SourceMQTT))
	}
	if s.MarkerMode && s.Marker == "" {
		errs = append(errs, "signal.marker is required when signal.marker_mode is set")
	}
	return errs
}

func (ch ChannelConfig) validate() []string {
	var errs []string
	switch ch.Type {
	case ChannelIntiface:
		if ch.Intiface.URL == "" {
			errs = append(errs, "channel.intiface.url is required")
		}
		if e := ch.Intiface.Engine; e.Enabled {
			if e.Binary == "" {
				errs = append(errs, "channel.intiface.engine.binary is required when the engine is enabled")
			}
			if e.MaxRestarts < 0 {
				errs = append(errs, "channel.intiface.engine.max_restarts must not be negative")
			}
		}
	case ChannelMQTT:
		if len(ch.Devices) == 0 {
			errs = append(errs, "channel.devices must declare at least one device for the mqtt channel")
		}
		seen := make(map[string]bool, len(ch.Devices))
		for i, d := range ch.Devices {
			if d.ID == "" {
				errs = append(errs, fmt.Sprintf("channel.devices[%d].id is required", i))
				continue
			}
			if seen[d.ID] {
				errs = append(errs, fmt.Sprintf("channel.devices[%d].id %q is duplicated", i, d.ID))
			}
			seen[d.ID] = true
		}
	default:
		errs = append(errs, fmt.Sprintf("channel.type %q must be %q or %q", ch.Type, ChannelIntiface, ChannelMQTT))
	}
	return errs
}

// NeedsMQTT reports whether any configured component uses the MQTT broker.
func (c *Config) NeedsMQTT() bool {
	return c.Channel.Type == ChannelMQTT || c.Signal.Source == SourceMQTT
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
