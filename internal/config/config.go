// Package config loads service settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Backend Backend       `mapstructure:"backend"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// Backend selects and parameterizes the refinement backend.
type Backend struct {
	Provider string        `mapstructure:"provider"` // echo or gemini
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Providers lists the backend provider names Validate accepts.
var Providers = []string{"echo", "gemini"}

// Load reads configuration from path, or from config.yaml in the working
// directory or configs/ when path is empty. A missing default file is not an
// error. A .env file is loaded first, and FLUXDIFF_ prefixed variables
// override file values with dots replaced by underscores.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLUXDIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.read_header_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("backend.provider", "echo")
	v.SetDefault("backend.model", "gemini-2.5-flash")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 2*time.Minute)
}

// Validate ensures mandatory fields are present and consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of console, json", c.Logging.Format)
	}

	known := false
	for _, p := range Providers {
		if strings.EqualFold(c.Backend.Provider, p) {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("backend.provider %q is not one of %s", c.Backend.Provider, strings.Join(Providers, ", "))
	}
	if strings.EqualFold(c.Backend.Provider, "gemini") && c.Backend.APIKey == "" {
		return errors.New("backend.api_key is required for the gemini provider")
	}
	if c.Backend.Timeout < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	return nil
}
