package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
device:
  name: "NeoBin"
  credential: "NeoBin"
  settings_file: "/tmp/settings.json"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: false
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Credential != "NeoBin" {
		t.Errorf("Device.Credential = %q, want %q", cfg.Device.Credential, "NeoBin")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Defaults survive a partial file
	if cfg.Hardware.ServoPin != 18 {
		t.Errorf("Hardware.ServoPin = %d, want 18", cfg.Hardware.ServoPin)
	}
	if cfg.Bluetooth.UUIDs.Inform != "00002a39-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Bluetooth.UUIDs.Inform = %q", cfg.Bluetooth.UUIDs.Inform)
	}
	if cfg.MQTT.TopicPrefix != "neobin" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "neobin")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingCredential(t *testing.T) {
	content := strings.Replace(validConfig, `credential: "NeoBin"`, `credential: ""`, 1)
	configPath := writeConfig(t, t.TempDir(), content)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "device.credential") {
		t.Errorf("error = %v, want mention of device.credential", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), validConfig)

	t.Setenv("NEOBIN_DATABASE_PATH", "/override/neobin.db")
	t.Setenv("NEOBIN_DEVICE_CREDENTIAL", "s3cret")
	t.Setenv("NEOBIN_MQTT_HOST", "broker.local")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/override/neobin.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Device.Credential != "s3cret" {
		t.Errorf("Device.Credential = %q, want env override", cfg.Device.Credential)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Replace(validConfig, `credential: "NeoBin"`, `credential: ""`, 1)
	configPath := writeConfig(t, dir, content)

	// Variable unset before load so godotenv can populate it.
	t.Setenv("NEOBIN_DEVICE_CREDENTIAL", "")
	os.Unsetenv("NEOBIN_DEVICE_CREDENTIAL")

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("NEOBIN_DEVICE_CREDENTIAL=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("NEOBIN_DEVICE_CREDENTIAL") })

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Credential != "from-dotenv" {
		t.Errorf("Device.Credential = %q, want %q", cfg.Device.Credential, "from-dotenv")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with credential",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "shared gpio",
			modify:  func(c *Config) { c.Hardware.EchoPin = c.Hardware.TrigPin },
			wantErr: "share GPIO",
		},
		{
			name:    "pin out of range",
			modify:  func(c *Config) { c.Hardware.ServoPin = 60 },
			wantErr: "hardware.servo_pin",
		},
		{
			name:    "zero dwell",
			modify:  func(c *Config) { c.Sensor.DwellMS = 0 },
			wantErr: "sensor.dwell_ms",
		},
		{
			name:    "api enabled without secret",
			modify:  func(c *Config) { c.API.Enabled = true },
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "api enabled with short secret",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "short"
				c.Security.APIPasswordHash = "$argon2id$..."
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "api enabled fully configured",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
				c.Security.APIPasswordHash = "$argon2id$..."
			},
		},
		{
			name:    "bad manufacturer id",
			modify:  func(c *Config) { c.Bluetooth.ManufacturerID = 0x1FFFF },
			wantErr: "manufacturer_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Device.Credential = "NeoBin"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Sensor.Dwell(); got != 3*time.Second {
		t.Errorf("Dwell() = %v, want 3s", got)
	}
	if got := cfg.Sensor.Cooldown(); got != 500*time.Millisecond {
		t.Errorf("Cooldown() = %v, want 500ms", got)
	}
	if got := cfg.Sensor.PollInterval(); got != 0 {
		t.Errorf("PollInterval() = %v, want 0", got)
	}
	if got := cfg.Hardware.EdgeTimeout(); got != 100*time.Millisecond {
		t.Errorf("EdgeTimeout() = %v, want 100ms", got)
	}
	if got := cfg.Hardware.Pigpiod.Address(); got != "localhost:8888" {
		t.Errorf("Address() = %q, want localhost:8888", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.Security.JWT.AccessTokenDuration(); got != 15*time.Minute {
		t.Errorf("AccessTokenDuration() = %v, want 15m", got)
	}
}
