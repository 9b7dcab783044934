package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for NeoBin Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Network   NetworkConfig   `yaml:"network"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig identifies the bin and where its lid settings are persisted.
type DeviceConfig struct {
	Name string `yaml:"name"`

	// Credential is the shared secret a client writes to the auth
	// characteristic. Set it with NEOBIN_DEVICE_CREDENTIAL.
	Credential string `yaml:"credential"`

	// SettingsFile holds the live lid settings (minAngle, maxAngle, detectDistance).
	SettingsFile string `yaml:"settings_file"`

	// DefaultsFile is read when SettingsFile does not exist yet.
	DefaultsFile string `yaml:"defaults_file"`
}

// BluetoothConfig contains BlueZ GATT peripheral settings.
type BluetoothConfig struct {
	Enabled bool `yaml:"enabled"`

	// Adapter is the BlueZ adapter name (e.g. "hci0"). Empty selects the
	// first adapter that supports LE advertising.
	Adapter string `yaml:"adapter"`

	LocalName        string `yaml:"local_name"`
	ManufacturerID   int    `yaml:"manufacturer_id"`
	ManufacturerData string `yaml:"manufacturer_data"`

	// AppPath is the D-Bus object path root the GATT application is exported under.
	AppPath string `yaml:"app_path"`

	UUIDs BluetoothUUIDConfig `yaml:"uuids"`
}

// BluetoothUUIDConfig contains the GATT service and characteristic UUIDs.
type BluetoothUUIDConfig struct {
	Service string `yaml:"service"`
	Auth    string `yaml:"auth"`
	Command string `yaml:"command"`
	Inform  string `yaml:"inform"`
}

// HardwareConfig contains GPIO wiring and pigpio daemon settings.
type HardwareConfig struct {
	Pigpiod PigpiodConfig `yaml:"pigpiod"`

	ServoPin int `yaml:"servo_pin"`
	TrigPin  int `yaml:"trig_pin"`
	EchoPin  int `yaml:"echo_pin"`

	// EdgeTimeoutMS bounds each echo edge wait of the ultrasonic sensor.
	EdgeTimeoutMS int `yaml:"edge_timeout_ms"`

	// CommandTimeoutMS is the socket deadline for a single pigpiod command.
	CommandTimeoutMS int `yaml:"command_timeout_ms"`
}

// PigpiodConfig contains settings for reaching (and optionally managing) pigpiod.
type PigpiodConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Managed indicates whether NeoBin should start and supervise pigpiod.
	// If false, pigpiod is expected to run externally (e.g. as a systemd service).
	Managed bool `yaml:"managed"`

	// Binary is the path to the pigpiod executable.
	// Default: "/usr/bin/pigpiod"
	Binary string `yaml:"binary"`

	// RestartOnFailure enables automatic restart if pigpiod exits.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// StartTimeout is how long to wait for the pigpiod socket (in seconds).
	// Default: 10
	StartTimeout int `yaml:"start_timeout"`
}

// SensorConfig contains proximity monitor loop settings.
type SensorConfig struct {
	Enabled bool `yaml:"enabled"`

	// PollIntervalMS is the delay between non-triggering reads.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// DwellMS is how long the lid stays open after a proximity trigger.
	DwellMS int `yaml:"dwell_ms"`

	// CooldownMS is the pause after an autonomous close.
	CooldownMS int `yaml:"cooldown_ms"`

	// MaxDistance is the upper bound (cm) of a valid echo reading.
	MaxDistance float64 `yaml:"max_distance"`
}

// NetworkConfig contains WiFi management settings.
type NetworkConfig struct {
	Interface      string `yaml:"interface"`
	NmcliPath      string `yaml:"nmcli_path"`
	IwPath         string `yaml:"iw_path"`
	IPPath         string `yaml:"ip_path"`
	CommandTimeout int    `yaml:"command_timeout"`

	// UseSudo prefixes connect/disconnect with sudo when the service
	// does not run as root.
	UseSudo bool `yaml:"use_sudo"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays prunes state history older than this. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// APIConfig contains maintenance HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket notification mirror settings.
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains maintenance API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// APIPasswordHash is the Argon2id PHC hash of the maintenance password.
	// Generate one with `neobin hash-password <password>`.
	APIPasswordHash string `yaml:"api_password_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the YAML file (never overrides variables already set)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: NEOBIN_SECTION_KEY
// For example: NEOBIN_DATABASE_PATH, NEOBIN_DEVICE_CREDENTIAL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from an optional .env file.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:         "NeoBin",
			SettingsFile: "./data/settings.json",
			DefaultsFile: "./configs/default.json",
		},
		Bluetooth: BluetoothConfig{
			Enabled:          true,
			LocalName:        "NeoBin",
			ManufacturerID:   0xABCD,
			ManufacturerData: "HeralNeoBin",
			AppPath:          "/com/heral/neobin",
			UUIDs: BluetoothUUIDConfig{
				Service: "0000180d-0000-1000-8000-00805f9b34fb",
				Auth:    "00002a37-0000-1000-8000-00805f9b34fb",
				Command: "00002a38-0000-1000-8000-00805f9b34fb",
				Inform:  "00002a39-0000-1000-8000-00805f9b34fb",
			},
		},
		Hardware: HardwareConfig{
			Pigpiod: PigpiodConfig{
				Host:             "localhost",
				Port:             8888,
				Binary:           "/usr/bin/pigpiod",
				RestartOnFailure: true,
				StartTimeout:     10,
			},
			ServoPin:         18,
			TrigPin:          17,
			EchoPin:          27,
			EdgeTimeoutMS:    100,
			CommandTimeoutMS: 1000,
		},
		Sensor: SensorConfig{
			Enabled:        true,
			PollIntervalMS: 0,
			DwellMS:        3000,
			CooldownMS:     500,
			MaxDistance:    300,
		},
		Network: NetworkConfig{
			Interface:      "wlan0",
			NmcliPath:      "nmcli",
			IwPath:         "iw",
			IPPath:         "ip",
			CommandTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:                 "./data/neobin.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "neobin-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "neobin",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
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
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEOBIN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device credential (IMPORTANT: never commit it to config.yaml)
	if v := os.Getenv("NEOBIN_DEVICE_CREDENTIAL"); v != "" {
		cfg.Device.Credential = v
	}
	if v := os.Getenv("NEOBIN_SETTINGS_FILE"); v != "" {
		cfg.Device.SettingsFile = v
	}

	// Bluetooth
	if v := os.Getenv("NEOBIN_BLUETOOTH_ADAPTER"); v != "" {
		cfg.Bluetooth.Adapter = v
	}

	// Hardware
	if v := os.Getenv("NEOBIN_PIGPIOD_HOST"); v != "" {
		cfg.Hardware.Pigpiod.Host = v
	}

	// Database
	if v := os.Getenv("NEOBIN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NEOBIN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NEOBIN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NEOBIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NEOBIN_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("NEOBIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("NEOBIN_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("NEOBIN_API_PASSWORD_HASH"); v != "" {
		cfg.Security.APIPasswordHash = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.Credential == "" {
		errs = append(errs, "device.credential is required (set NEOBIN_DEVICE_CREDENTIAL environment variable)")
	}
	if c.Device.SettingsFile == "" {
		errs = append(errs, "device.settings_file is required")
	}

	// Bluetooth validation
	if c.Bluetooth.Enabled {
		if c.Bluetooth.ManufacturerID < 0 || c.Bluetooth.ManufacturerID > 0xFFFF {
			errs = append(errs, "bluetooth.manufacturer_id must fit in 16 bits")
		}
		if !strings.HasPrefix(c.Bluetooth.AppPath, "/") {
			errs = append(errs, "bluetooth.app_path must be an absolute D-Bus object path")
		}
	}

	// Hardware validation
	pins := map[string]int{
		"hardware.servo_pin": c.Hardware.ServoPin,
		"hardware.trig_pin":  c.Hardware.TrigPin,
		"hardware.echo_pin":  c.Hardware.EchoPin,
	}
	seen := make(map[int]string, len(pins))
	for _, name := range []string{"hardware.servo_pin", "hardware.trig_pin", "hardware.echo_pin"} {
		pin := pins[name]
		if pin < 0 || pin > 53 {
			errs = append(errs, name+" must be a BCM GPIO number between 0 and 53")
			continue
		}
		if other, dup := seen[pin]; dup {
			errs = append(errs, fmt.Sprintf("%s and %s share GPIO %d", other, name, pin))
		}
		seen[pin] = name
	}
	if c.Hardware.Pigpiod.Port < 1 || c.Hardware.Pigpiod.Port > 65535 {
		errs = append(errs, "hardware.pigpiod.port must be between 1 and 65535")
	}
	if c.Hardware.EdgeTimeoutMS <= 0 {
		errs = append(errs, "hardware.edge_timeout_ms must be positive")
	}

	// Sensor validation
	if c.Sensor.PollIntervalMS < 0 || c.Sensor.CooldownMS < 0 {
		errs = append(errs, "sensor.poll_interval_ms and sensor.cooldown_ms must not be negative")
	}
	if c.Sensor.DwellMS <= 0 {
		errs = append(errs, "sensor.dwell_ms must be positive")
	}
	if c.Sensor.MaxDistance <= 0 {
		errs = append(errs, "sensor.max_distance must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation - the maintenance API is read-only but still exposes
	// device history, so it needs a real secret and password.
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set NEOBIN_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
		if c.Security.APIPasswordHash == "" {
			errs = append(errs, "security.api_password_hash is required when api is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// PollInterval returns the sensor poll interval as a Duration.
func (s SensorConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// Dwell returns the open-hold duration after a proximity trigger.
func (s SensorConfig) Dwell() time.Duration {
	return time.Duration(s.DwellMS) * time.Millisecond
}

// Cooldown returns the pause after an autonomous close.
func (s SensorConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMS) * time.Millisecond
}

// EdgeTimeout returns the per-edge echo wait bound.
func (h HardwareConfig) EdgeTimeout() time.Duration {
	return time.Duration(h.EdgeTimeoutMS) * time.Millisecond
}

// CommandTimeout returns the pigpiod socket deadline.
func (h HardwareConfig) CommandTimeout() time.Duration {
	return time.Duration(h.CommandTimeoutMS) * time.Millisecond
}

// Address returns the pigpiod host:port.
func (p PigpiodConfig) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Timeout returns the network command timeout as a Duration.
func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.CommandTimeout) * time.Second
}

// AccessTokenDuration returns the JWT access token lifetime.
func (j JWTConfig) AccessTokenDuration() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}
