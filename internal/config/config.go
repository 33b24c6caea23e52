package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/retention"
)

// Config represents the main configuration
type Config struct {
	Version   string           `yaml:"version"`
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Auth      *AuthConfig      `yaml:"auth"`
	Redis     *RedisConfig     `yaml:"redis"`
	Retention *RetentionConfig `yaml:"retention"`
	Logging   *logging.Config  `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// Addr returns host:port for net.Listen.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the store driver
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite, sqlite3, pgx
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// DB converts the section into the db package's Config.
func (d *DatabaseConfig) DB() db.Config {
	return db.Config{Driver: d.Driver, DSN: d.DSN, MaxOpenConns: d.MaxOpenConns}
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	SecretKey      string        `yaml:"secret_key"`
	Issuer         string        `yaml:"issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// RedisConfig enables token revocation when URL is set
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (r *RedisConfig) Enabled() bool {
	return r != nil && r.URL != ""
}

// RetentionConfig controls the scheduled purge of trashed rows. It is off
// unless enabled, and "deeppomo purge" runs it by hand either way.
type RetentionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	Days     int    `yaml:"days"`
}

// Scheduler converts the section into the retention package's Config.
func (r *RetentionConfig) Scheduler() retention.Config {
	return retention.Config{Schedule: r.Schedule, Days: r.Days}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		Server: &ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Database: &DatabaseConfig{
			Driver: db.DriverSQLite,
			DSN:    filepath.Join(homeDir, ".deeppomo", "deeppomo.db"),
		},
		Auth: &AuthConfig{
			Issuer:         "deeppomo",
			AccessTokenTTL: 8 * 24 * time.Hour,
		},
		Redis: &RedisConfig{},
		Retention: &RetentionConfig{
			Schedule: "@daily",
			Days:     30,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Database != nil && config.Database.Driver != db.DriverPgx {
		config.Database.DSN = expandPath(config.Database.DSN)
	}
	if config.Logging != nil {
		config.Logging.Output = expandPath(config.Logging.Output)
	}

	return config, nil
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the token signing secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".deeppomo", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database == nil || c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch c.Database.Driver {
	case db.DriverSQLite, db.DriverSQLite3, db.DriverPgx:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Auth == nil || c.Auth.SecretKey == "" {
		return fmt.Errorf("auth secret_key is required")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth access_token_ttl must be positive")
	}
	if c.Retention != nil && c.Retention.Enabled {
		if err := c.Retention.Scheduler().Validate(); err != nil {
			return err
		}
	}
	return nil
}
