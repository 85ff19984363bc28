package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the shell updater.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Releases  ReleasesConfig  `yaml:"releases"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig identifies the shell on the USB bus and controls how sessions
// are opened.
type DeviceConfig struct {
	// VendorID and ProductID narrow HID enumeration. 0 matches any.
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	// ProductName is matched against the HID product string when set.
	// Default: "Keycard Shell"
	ProductName string `yaml:"product_name"`

	// UsagePage filters HID interfaces (0 matches any).
	UsagePage uint16 `yaml:"usage_page"`

	// PollInterval is how often the hotplug watcher enumerates the bus.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// ConnectRetryDelay is the fixed wait between failed open attempts.
	// Default: 1s
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay"`

	// ConnectMaxAttempts bounds open attempts. 0 means unlimited.
	ConnectMaxAttempts int `yaml:"connect_max_attempts"`

	// ExchangeTimeout bounds a single command/response exchange with the device.
	// Default: 30s
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`
}

// ReleasesConfig contains the release metadata service endpoints.
type ReleasesConfig struct {
	Enabled      bool          `yaml:"enabled"`
	FirmwareURL  string        `yaml:"firmware_url"`
	DatabaseURL  string        `yaml:"database_url"`
	DownloadBase string        `yaml:"download_base"`
	Timeout      time.Duration `yaml:"timeout"`
	// MaxPayloadSize caps downloaded images, in bytes.
	MaxPayloadSize int64 `yaml:"max_payload_size"`
	// VerifyHash checks the firmware image against the descriptor's SHA-256.
	VerifyHash bool `yaml:"verify_hash"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// APIConfig contains local control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// MaxUploadSize caps local firmware/database uploads, in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// WebSocketConfig contains WebSocket event stream settings.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains API token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the lifetime of issued tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHELLUPDATER_SECTION_KEY
// For example: SHELLUPDATER_DATABASE_PATH, SHELLUPDATER_API_PORT
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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ProductName:       "Keycard Shell",
			PollInterval:      time.Second,
			ConnectRetryDelay: time.Second,
			ExchangeTimeout:   30 * time.Second,
		},
		Releases: ReleasesConfig{
			Enabled:        true,
			FirmwareURL:    "https://shell.keycard.tech/firmware/get-firmware",
			DatabaseURL:    "https://shell.keycard.tech/update/get-db",
			DownloadBase:   "https://shell.keycard.tech/uploads/",
			Timeout:        30 * time.Second,
			MaxPayloadSize: 32 << 20,
		},
		Database: DatabaseConfig{
			Path:        "./data/shellupdater.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shellupdater",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 300,
				Idle:  60,
			},
			MaxUploadSize: 32 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHELLUPDATER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("SHELLUPDATER_DEVICE_VENDOR_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.Device.VendorID = uint16(id)
		}
	}
	if v := os.Getenv("SHELLUPDATER_DEVICE_PRODUCT_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.Device.ProductID = uint16(id)
		}
	}

	// Releases
	if v := os.Getenv("SHELLUPDATER_RELEASES_FIRMWARE_URL"); v != "" {
		cfg.Releases.FirmwareURL = v
	}
	if v := os.Getenv("SHELLUPDATER_RELEASES_DATABASE_URL"); v != "" {
		cfg.Releases.DatabaseURL = v
	}
	if v := os.Getenv("SHELLUPDATER_RELEASES_DOWNLOAD_BASE"); v != "" {
		cfg.Releases.DownloadBase = v
	}

	// Database
	if v := os.Getenv("SHELLUPDATER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SHELLUPDATER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHELLUPDATER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHELLUPDATER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SHELLUPDATER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SHELLUPDATER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SHELLUPDATER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret should never live in the config file
	if v := os.Getenv("SHELLUPDATER_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.VendorID == 0 && c.Device.ProductID == 0 && c.Device.ProductName == "" {
		errs = append(errs, "device: one of vendor_id, product_id or product_name is required")
	}
	if c.Device.PollInterval <= 0 {
		errs = append(errs, "device.poll_interval must be positive")
	}
	if c.Device.ConnectRetryDelay <= 0 {
		errs = append(errs, "device.connect_retry_delay must be positive")
	}
	if c.Device.ConnectMaxAttempts < 0 {
		errs = append(errs, "device.connect_max_attempts must not be negative")
	}

	// Releases validation
	if c.Releases.Enabled {
		if c.Releases.FirmwareURL == "" {
			errs = append(errs, "releases.firmware_url is required")
		}
		if c.Releases.DatabaseURL == "" {
			errs = append(errs, "releases.database_url is required")
		}
		if c.Releases.DownloadBase == "" {
			errs = append(errs, "releases.download_base is required")
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The API drives firmware writes to a hardware wallet, so an
		// unauthenticated or weakly keyed endpoint is not accepted.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set SHELLUPDATER_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
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

// GetTokenTTL returns the API token lifetime as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
