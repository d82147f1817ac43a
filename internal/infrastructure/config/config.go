package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the root configuration structure for Graychat Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Environment string          `yaml:"environment" validate:"oneof=development production test"`
	Database    DatabaseConfig  `yaml:"database"`
	API         APIConfig       `yaml:"api"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Logging     LoggingConfig   `yaml:"logging"`
	Security    SecurityConfig  `yaml:"security"`
	Rooms       RoomsConfig     `yaml:"rooms"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" validate:"required"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" validate:"gte=0"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port" validate:"min=1,max=65535"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `yaml:"key_file" validate:"required_if=Enabled true"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" validate:"gte=0"`
	Write int `yaml:"write" validate:"gte=0"`
	Idle  int `yaml:"idle" validate:"gte=0"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Listed origins get credentialed access. "*" allows any other origin
	// without credentials. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains realtime connection settings.
type WebSocketConfig struct {
	Path           string `yaml:"path" validate:"required,startswith=/"`
	MaxMessageSize int    `yaml:"max_message_size" validate:"gt=0"`
	PingInterval   int    `yaml:"ping_interval" validate:"gt=0"`
	PongTimeout    int    `yaml:"pong_timeout" validate:"gt=0"`

	// HandshakeTimeout bounds the whole connection gate (seconds).
	HandshakeTimeout int `yaml:"handshake_timeout" validate:"gt=0"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	Output string `yaml:"output" validate:"omitempty,oneof=stdout stderr"`
}

// SecurityConfig contains credential and session settings.
type SecurityConfig struct {
	JWT      JWTConfig     `yaml:"jwt"`
	Sessions SessionConfig `yaml:"sessions"`
}

// JWTConfig contains session credential settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// SessionTTL is the credential and cookie lifetime in hours.
	SessionTTL int `yaml:"session_ttl" validate:"gt=0"`
}

// SessionConfig controls the server-side session records.
type SessionConfig struct {
	// Strict requires a live session record in addition to a valid signature.
	Strict bool `yaml:"strict"`

	// CleanupInterval is how often expired session records are purged (minutes).
	CleanupInterval int `yaml:"cleanup_interval" validate:"gt=0"`
}

// RoomsConfig contains room behaviour switches.
type RoomsConfig struct {
	// EnforceDeleteOwnership restricts room deletion to the owner.
	// Off by default: the service has always allowed any authenticated caller to delete.
	EnforceDeleteOwnership bool `yaml:"enforce_delete_ownership"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// minJWTSecretLength is the shortest signing secret accepted.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYCHAT_SECTION_KEY
// For example: GRAYCHAT_DATABASE_PATH, GRAYCHAT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults. The JWT secret is left empty
// and must come from the file or GRAYCHAT_JWT_SECRET.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Database: DatabaseConfig{
			Path:        "./data/graychat.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:             "/ws",
			MaxMessageSize:   8192,
			PingInterval:     30,
			PongTimeout:      10,
			HandshakeTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				SessionTTL: 7 * 24,
			},
			Sessions: SessionConfig{
				Strict:          true,
				CleanupInterval: 60,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYCHAT_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("GRAYCHAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GRAYCHAT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYCHAT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("GRAYCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Always override the secret from the environment in production.
	if v := os.Getenv("GRAYCHAT_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks struct-tag rules first, then the rules tags cannot express.
// All problems are reported together.
//
// Returns:
//   - error: nil if valid, otherwise one error listing every problem
func (c *Config) Validate() error {
	var errs []string

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("configuration errors: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q", fieldPath(fe), fe.Tag()))
		}
	}

	// An empty or short secret would let anyone forge session credentials.
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYCHAT_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		errs = append(errs, "metrics.path is required when metrics are enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Path == c.WebSocket.Path {
		errs = append(errs, "metrics.path and websocket.path must differ")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// fieldPath turns "Config.Security.JWT.SessionTTL" into "security.jwt.sessionttl".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// IsProduction reports whether the service runs in production mode.
// Production turns on the Secure flag for session cookies.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SessionTTL returns the credential lifetime as a Duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.JWT.SessionTTL) * time.Hour
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
