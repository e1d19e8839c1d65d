// Package config loads deltakey configuration from defaults, an optional
// config file, DELTAKEY_* environment variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. DELTAKEY_DATABASE_PATH
const EnvPrefix = "DELTAKEY"

// Config is the full configuration tree
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Key      KeyConfig      `mapstructure:"key"`
}

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SessionConfig controls the session used when none is named
type SessionConfig struct {
	DefaultID string `mapstructure:"default_id"`
}

// ServerConfig holds listener ports and API rate limits
type ServerConfig struct {
	GrpcPort    int     `mapstructure:"grpc_port"`
	HTTPPort    int     `mapstructure:"http_port"`
	MetricsPort int     `mapstructure:"metrics_port"`
	RateLimit   float64 `mapstructure:"rate_limit"` // Requests per second
	RateBurst   int     `mapstructure:"rate_burst"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// KeyConfig bounds automatic key generation
type KeyConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

// SetDefaults registers the default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "delta.db")
	v.SetDefault("session.default_id", "default")
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 5001)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("key.max_steps", 10)
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configFile (if set) or looks for deltakey.{yaml,toml,json} in
// the working directory, then unmarshals the merged configuration.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("deltakey")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the servers and engine cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("config: database.path must not be empty")
	}
	if strings.TrimSpace(c.Session.DefaultID) == "" {
		return errors.New("config: session.default_id must not be empty")
	}
	for name, port := range map[string]int{
		"server.grpc_port":    c.Server.GrpcPort,
		"server.http_port":    c.Server.HTTPPort,
		"server.metrics_port": c.Server.MetricsPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("config: %s out of range: %d", name, port)
		}
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("config: rate limit %.2f/s with burst %d must be positive", c.Server.RateLimit, c.Server.RateBurst)
	}
	if c.Key.MaxSteps <= 0 {
		return fmt.Errorf("config: key.max_steps must be positive, got %d", c.Key.MaxSteps)
	}
	return nil
}
