package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: "test-instance"
database:
  path: "/tmp/test.db"
engine:
  tick_interval: 1500ms
  oscillation_interval: 100ms
  max_devices: 2
signal:
  source: mqtt
  topic: "chat/out"
  marker_mode: true
channel:
  type: intiface
  intiface:
    url: "ws://10.0.0.5:12345"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "test-instance" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-instance")
	}
	if cfg.Engine.TickInterval != 1500*time.Millisecond {
		t.Errorf("Engine.TickInterval = %v, want 1.5s", cfg.Engine.TickInterval)
	}
	if cfg.Engine.OscillationInterval != 100*time.Millisecond {
		t.Errorf("Engine.OscillationInterval = %v, want 100ms", cfg.Engine.OscillationInterval)
	}
	if cfg.Engine.MaxDevices != 2 {
		t.Errorf("Engine.MaxDevices = %d, want 2", cfg.Engine.MaxDevices)
	}
	// Unset fields keep their defaults.
	if cfg.Engine.Frequency != 0.5 {
		t.Errorf("Engine.Frequency = %v, want 0.5", cfg.Engine.Frequency)
	}
	if cfg.Signal.Marker != "v" {
		t.Errorf("Signal.Marker = %q, want %q", cfg.Signal.Marker, "v")
	}
	if cfg.Channel.Intiface.URL != "ws://10.0.0.5:12345" {
		t.Errorf("Channel.Intiface.URL = %q", cfg.Channel.Intiface.URL)
	}
	if !cfg.NeedsMQTT() {
		t.Error("NeedsMQTT() = false, want true for mqtt signal source")
	}
}

func TestLoad_MQTTDevices(t *testing.T) {
	path := writeConfig(t, `
channel:
  type: mqtt
  devices:
    - id: "pump-1"
      name: "Pump"
      actuators:
        - class: vibrate
        - class: rotate
          descriptor: "spindle"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Channel.Devices) != 1 {
		t.Fatalf("len(Channel.Devices) = %d, want 1", len(cfg.Channel.Devices))
	}
	d := cfg.Channel.Devices[0]
	if d.ID != "pump-1" || len(d.Actuators) != 2 {
		t.Errorf("device = %+v", d)
	}
	if d.Actuators[1].Descriptor != "spindle" {
		t.Errorf("Actuators[1].Descriptor = %q, want spindle", d.Actuators[1].Descriptor)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty instance.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing instance ID",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Engine.TickInterval = 0 },
			wantErr: "engine.tick_interval",
		},
		{
			name:    "zero frequency",
			mutate:  func(c *Config) { c.Engine.Frequency = 0 },
			wantErr: "engine.frequency",
		},
		{
			name:    "no devices allowed",
			mutate:  func(c *Config) { c.Engine.MaxDevices = 0 },
			wantErr: "engine.max_devices",
		},
		{
			name:    "unknown signal source",
			mutate:  func(c *Config) { c.Signal.Source = "carrier-pigeon" },
			wantErr: "signal.source",
		},
		{
			name:    "marker mode without marker",
			mutate:  func(c *Config) { c.Signal.MarkerMode = true; c.Signal.Marker = "" },
			wantErr: "signal.marker",
		},
		{
			name:    "unknown channel",
			mutate:  func(c *Config) { c.Channel.Type = "serial" },
			wantErr: "channel.type",
		},
		{
			name:    "mqtt channel without devices",
			mutate:  func(c *Config) { c.Channel.Type = ChannelMQTT },
			wantErr: "channel.devices",
		},
		{
			name: "mqtt channel duplicate device",
			mutate: func(c *Config) {
				c.Channel.Type = ChannelMQTT
				c.Channel.Devices = []MQTTDeviceConfig{{ID: "a"}, {ID: "a"}}
			},
			wantErr: "duplicated",
		},
		{
			name: "intiface engine without binary",
			mutate: func(c *Config) {
				c.Channel.Intiface.Engine.Enabled = true
				c.Channel.Intiface.Engine.Binary = ""
			},
			wantErr: "channel.intiface.engine.binary",
		},
		{
			name:   "intiface engine with default binary",
			mutate: func(c *Config) { c.Channel.Intiface.Engine.Enabled = true },
		},
		{
			name:    "influx enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "jwt enabled with short secret",
			mutate:  func(c *Config) { c.Security.JWT.Enabled = true; c.Security.JWT.Secret = "short" },
			wantErr: "security.jwt.secret",
		},
		{
			name: "jwt enabled with valid secret",
			mutate: func(c *Config) {
				c.Security.JWT.Enabled = true
				c.Security.JWT.Secret = validJWTSecret
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FEEDSYNC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FEEDSYNC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FEEDSYNC_MQTT_USERNAME", "testuser")
	t.Setenv("FEEDSYNC_MQTT_PASSWORD", "testpass")
	t.Setenv("FEEDSYNC_API_HOST", "192.168.1.1")
	t.Setenv("FEEDSYNC_INTIFACE_URL", "ws://intiface:12345")
	t.Setenv("FEEDSYNC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FEEDSYNC_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"Channel.Intiface.URL", cfg.Channel.Intiface.URL, "ws://intiface:12345"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Engine.TickInterval != 2*time.Second {
		t.Errorf("Engine.TickInterval = %v, want 2s", cfg.Engine.TickInterval)
	}
	if cfg.Engine.OscillationInterval != 175*time.Millisecond {
		t.Errorf("Engine.OscillationInterval = %v, want 175ms", cfg.Engine.OscillationInterval)
	}
	if cfg.Engine.MaxDevices != 4 {
		t.Errorf("Engine.MaxDevices = %d, want 4", cfg.Engine.MaxDevices)
	}
	if cfg.Channel.Intiface.URL != "ws://localhost:12345" {
		t.Errorf("Channel.Intiface.URL = %q", cfg.Channel.Intiface.URL)
	}
	if cfg.Channel.Intiface.ScanWait != 4*time.Second {
		t.Errorf("Channel.Intiface.ScanWait = %v, want 4s", cfg.Channel.Intiface.ScanWait)
	}
	if cfg.NeedsMQTT() {
		t.Error("NeedsMQTT() = true for defaults, want false")
	}
}
