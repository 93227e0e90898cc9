// Package config provides configuration loading and validation for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultTCPHost      = "0.0.0.0"
	DefaultTCPPort      = 9090
	DefaultGatewayHost  = "0.0.0.0"
	DefaultGatewayPort  = 8080
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	DefaultShutdownTimeout = 10 * time.Second

	DefaultTokenTTL = 12 * time.Hour

	DefaultSendBufferSize      = 64
	DefaultBroadcastBufferSize = 256
)

// Configuration errors.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrInvalidDuration = errors.New("invalid duration value")
)

// PersistenceBackend selects how state survives restarts.
type PersistenceBackend string

// Persistence backends.
const (
	// BackendNone keeps all state in memory only.
	BackendNone PersistenceBackend = "none"

	// BackendFile uses the plain-text task and chat log files.
	BackendFile PersistenceBackend = "file"

	// BackendSQLite stores state in a single SQLite database file.
	BackendSQLite PersistenceBackend = "sqlite"
)

// Config holds the complete application configuration.
type Config struct {
	App         AppConfig         `yaml:"app"`
	TCP         TCPConfig         `yaml:"tcp"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Auth        AuthConfig        `yaml:"auth"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Hub         HubConfig         `yaml:"hub"`
	Log         LogConfig         `yaml:"log"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Name is the application name used in logs and metrics.
	Name string `yaml:"name" env:"APP_NAME"`

	// ShutdownTimeout bounds graceful shutdown of both servers.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"APP_SHUTDOWN_TIMEOUT"`
}

// TCPConfig holds the command-protocol listener configuration.
type TCPConfig struct {
	Host string `yaml:"host" env:"TCP_HOST"`
	Port int    `yaml:"port" env:"TCP_PORT"`
}

// Addr returns the listen address in host:port form.
func (c TCPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GatewayConfig holds the HTTP gateway configuration.
type GatewayConfig struct {
	Host         string        `yaml:"host" env:"GATEWAY_HOST"`
	Port         int           `yaml:"port" env:"GATEWAY_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"GATEWAY_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"GATEWAY_WRITE_TIMEOUT"`
}

// Addr returns the listen address in host:port form.
func (c GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds token signing configuration for the HTTP gateway.
type AuthConfig struct {
	// JWTSecret signs gateway access tokens (HMAC).
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`

	// TokenTTL is the gateway access token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL"`
}

// PersistenceConfig selects and locates the persistence backend.
type PersistenceConfig struct {
	Backend PersistenceBackend `yaml:"backend" env:"PERSIST_BACKEND"`

	// Dir holds the task and chat log files for the file backend.
	Dir string `yaml:"dir" env:"PERSIST_DIR"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" env:"PERSIST_SQLITE_PATH"`
}

// HubConfig tunes the fan-out buffers.
type HubConfig struct {
	// SendBufferSize is the per-connection outbound queue length. A full
	// queue drops the delivery rather than blocking the hub.
	SendBufferSize int `yaml:"send_buffer_size" env:"HUB_SEND_BUFFER_SIZE"`

	// BroadcastBufferSize is the shared broadcast queue length.
	BroadcastBufferSize int `yaml:"broadcast_buffer_size" env:"HUB_BROADCAST_BUFFER_SIZE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LOG_LEVEL"`

	// Format is "json" or "text".
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DefaultConfig returns a configuration with sane development defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "teamboard",
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		TCP: TCPConfig{
			Host: DefaultTCPHost,
			Port: DefaultTCPPort,
		},
		Gateway: GatewayConfig{
			Host:         DefaultGatewayHost,
			Port:         DefaultGatewayPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-in-production",
			TokenTTL:  DefaultTokenTTL,
		},
		Persistence: PersistenceConfig{
			Backend:    BackendNone,
			Dir:        "data",
			SQLitePath: "data/teamboard.db",
		},
		Hub: HubConfig{
			SendBufferSize:      DefaultSendBufferSize,
			BroadcastBufferSize: DefaultBroadcastBufferSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.TCP.Port <= 0 || c.TCP.Port > 65535 {
		errs = append(errs, errors.New("tcp.port must be between 1 and 65535"))
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, errors.New("gateway.port must be between 1 and 65535"))
	}
	if c.TCP.Port == c.Gateway.Port {
		errs = append(errs, errors.New("tcp.port and gateway.port must differ"))
	}
	if c.Gateway.ReadTimeout <= 0 {
		errs = append(errs, errors.New("gateway.read_timeout must be positive"))
	}
	if c.Gateway.WriteTimeout <= 0 {
		errs = append(errs, errors.New("gateway.write_timeout must be positive"))
	}
	if c.App.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("app.shutdown_timeout must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret must not be empty"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Hub.SendBufferSize <= 0 {
		errs = append(errs, errors.New("hub.send_buffer_size must be positive"))
	}
	if c.Hub.BroadcastBufferSize <= 0 {
		errs = append(errs, errors.New("hub.broadcast_buffer_size must be positive"))
	}

	switch c.Persistence.Backend {
	case BackendNone:
	case BackendFile:
		if c.Persistence.Dir == "" {
			errs = append(errs, errors.New("persistence.dir must be set for the file backend"))
		}
	case BackendSQLite:
		if c.Persistence.SQLitePath == "" {
			errs = append(errs, errors.New("persistence.sqlite_path must be set for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.backend must be one of none, file, sqlite (got %q)", c.Persistence.Backend))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}

// IsProduction returns true if authentication appears configured for production.
func (c *Config) IsProduction() bool {
	return c.Auth.JWTSecret != "dev-secret-change-in-production" &&
		c.Auth.JWTSecret != ""
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/teamboard/config.yaml",
		},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := path
	if configPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only return error if path was explicitly specified
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, continue with defaults + env vars
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeFor[time.Duration]() {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
