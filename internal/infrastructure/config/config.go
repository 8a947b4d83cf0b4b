package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MELCloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MELCloud  MELCloudConfig  `yaml:"melcloud"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// MELCloudConfig contains vendor cloud credentials and polling cadence.
type MELCloudConfig struct {
	// Email and Password are the MELCloud account credentials.
	// Always set MELBRIDGE_MELCLOUD_PASSWORD in production rather than
	// storing the password in the YAML file.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// BaseURL is the MELCloud API root. Overridable for testing against
	// a local fake server.
	BaseURL string `yaml:"base_url"`

	// AppVersion is sent with login requests; MELCloud rejects versions
	// it considers too old.
	AppVersion string `yaml:"app_version"`

	// Language is the MELCloud numeric language code sent at login.
	Language int `yaml:"language"`

	// PollInterval is the cadence of the main state poll (seconds).
	PollInterval int `yaml:"poll_interval"`

	// SubPollInterval is the cadence of the capability-gated telemetry
	// sub-poll for devices that support it (seconds).
	SubPollInterval int `yaml:"sub_poll_interval"`

	// DebounceWindow is the quiet period after a successful command before
	// a confirmatory refresh is triggered (milliseconds).
	DebounceWindow int `yaml:"debounce_window"`

	// EnergyRetention is how long per-hour energy buckets are kept before
	// pruning (hours).
	EnergyRetention int `yaml:"energy_retention"`

	// RequestTimeout bounds each outbound HTTP call (seconds).
	RequestTimeout int `yaml:"request_timeout"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the local API.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MELBRIDGE_SECTION_KEY
// For example: MELBRIDGE_MELCLOUD_EMAIL, MELBRIDGE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Reference cadences for the synchronization core. These are the fallbacks
// used when the host supplies no override.
const (
	defaultPollInterval    = 60      // seconds
	defaultSubPollInterval = 30 * 60 // seconds (30 minutes)
	defaultDebounceWindow  = 2000    // milliseconds
	defaultEnergyRetention = 48      // hours
	defaultRequestTimeout  = 15      // seconds
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MELCloud: MELCloudConfig{
			BaseURL:         "https://app.melcloud.com/Mitsubishi.Wifi.Client",
			AppVersion:      "1.19.1.1",
			Language:        0,
			PollInterval:    defaultPollInterval,
			SubPollInterval: defaultSubPollInterval,
			DebounceWindow:  defaultDebounceWindow,
			EnergyRetention: defaultEnergyRetention,
			RequestTimeout:  defaultRequestTimeout,
		},
		Database: DatabaseConfig{
			Path:        "./data/melbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "melbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
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
// Environment variables follow the pattern: MELBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MELCloud credentials
	if v := os.Getenv("MELBRIDGE_MELCLOUD_EMAIL"); v != "" {
		cfg.MELCloud.Email = v
	}
	if v := os.Getenv("MELBRIDGE_MELCLOUD_PASSWORD"); v != "" {
		cfg.MELCloud.Password = v
	}
	if v := os.Getenv("MELBRIDGE_MELCLOUD_BASE_URL"); v != "" {
		cfg.MELCloud.BaseURL = v
	}

	// Database
	if v := os.Getenv("MELBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MELBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MELBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MELBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MELBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MELBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("MELBRIDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MELCloud validation
	if c.MELCloud.Email == "" {
		errs = append(errs, "melcloud.email is required (set MELBRIDGE_MELCLOUD_EMAIL environment variable)")
	}
	if c.MELCloud.Password == "" {
		errs = append(errs, "melcloud.password is required (set MELBRIDGE_MELCLOUD_PASSWORD environment variable)")
	}
	if c.MELCloud.PollInterval < 1 {
		errs = append(errs, "melcloud.poll_interval must be at least 1 second")
	}
	if c.MELCloud.SubPollInterval < c.MELCloud.PollInterval {
		errs = append(errs, "melcloud.sub_poll_interval must not be shorter than melcloud.poll_interval")
	}
	if c.MELCloud.DebounceWindow < 0 {
		errs = append(errs, "melcloud.debounce_window must not be negative")
	}
	if c.MELCloud.EnergyRetention < 1 {
		errs = append(errs, "melcloud.energy_retention must be at least 1 hour")
	}
	if c.MELCloud.RequestTimeout < 1 {
		errs = append(errs, "melcloud.request_timeout must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - JWT secret is REQUIRED
	// The API can issue control commands to heating hardware, so a weak
	// secret would let an attacker on the LAN forge tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set MELBRIDGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the main poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.MELCloud.PollInterval) * time.Second
}

// GetSubPollInterval returns the telemetry sub-poll interval as a Duration.
func (c *Config) GetSubPollInterval() time.Duration {
	return time.Duration(c.MELCloud.SubPollInterval) * time.Second
}

// GetDebounceWindow returns the command debounce window as a Duration.
func (c *Config) GetDebounceWindow() time.Duration {
	return time.Duration(c.MELCloud.DebounceWindow) * time.Millisecond
}

// GetEnergyRetention returns the energy bucket retention horizon as a Duration.
func (c *Config) GetEnergyRetention() time.Duration {
	return time.Duration(c.MELCloud.EnergyRetention) * time.Hour
}

// GetRequestTimeout returns the outbound HTTP request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.MELCloud.RequestTimeout) * time.Second
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
