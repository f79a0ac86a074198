// Package config provides runtime configuration values for the exporter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the Square connection settings and exporter knobs.
type Config struct {
	AccessToken     string        `mapstructure:"square_access_token"`
	LocationID      string        `mapstructure:"square_location_id"`
	Port            int           `mapstructure:"exporter_port"`
	WindowHours     int           `mapstructure:"scrape_window_h"`
	APIBase         string        `mapstructure:"square_api_base"`
	APIVersion      string        `mapstructure:"square_api_version"`
	RequestTimeout  time.Duration `mapstructure:"square_request_timeout"`
	APIRPS          float64       `mapstructure:"square_api_rps"`
	APIBurst        int           `mapstructure:"square_api_burst"`
	OrderCacheSize  int           `mapstructure:"order_cache_size"`
	OrderCacheTTL   time.Duration `mapstructure:"order_cache_ttl"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", strings.ToUpper(e.Key), e.Msg)
}

var defaults = map[string]any{
	"square_access_token":    "",
	"square_location_id":     "",
	"exporter_port":          8000,
	"scrape_window_h":        24,
	"square_api_base":        "https://connect.squareup.com/v2",
	"square_api_version":     "2023-07-20",
	"square_request_timeout": 30 * time.Second,
	"square_api_rps":         10.0,
	"square_api_burst":       5,
	"order_cache_size":       10000,
	"order_cache_ttl":        time.Duration(0),
	"log_level":              "info",
	"shutdown_timeout":       10 * time.Second,
}

// Load reads configuration from the environment, layered over an optional
// YAML file, and validates it. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ConfigError{Key: "config_file", Msg: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Key: "config", Msg: err.Error()}
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.LocationID = strings.TrimSpace(cfg.LocationID)
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	switch {
	case c.AccessToken == "":
		return &ConfigError{Key: "square_access_token", Msg: "must be set"}
	case c.LocationID == "":
		return &ConfigError{Key: "square_location_id", Msg: "must be set"}
	case c.Port <= 0 || c.Port > 65535:
		return &ConfigError{Key: "exporter_port", Msg: fmt.Sprintf("out of range: %d", c.Port)}
	case c.WindowHours <= 0:
		return &ConfigError{Key: "scrape_window_h", Msg: fmt.Sprintf("must be positive: %d", c.WindowHours)}
	case c.APIBase == "":
		return &ConfigError{Key: "square_api_base", Msg: "must be set"}
	case c.RequestTimeout <= 0:
		return &ConfigError{Key: "square_request_timeout", Msg: "must be positive"}
	case c.APIRPS <= 0:
		return &ConfigError{Key: "square_api_rps", Msg: "must be positive"}
	case c.APIBurst <= 0:
		return &ConfigError{Key: "square_api_burst", Msg: "must be positive"}
	case c.OrderCacheSize <= 0:
		return &ConfigError{Key: "order_cache_size", Msg: "must be positive"}
	case c.OrderCacheTTL < 0:
		return &ConfigError{Key: "order_cache_ttl", Msg: "must not be negative"}
	}
	return nil
}

// Addr is the listen address of the exposition server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Window is the trailing window length.
func (c Config) Window() time.Duration { return time.Duration(c.WindowHours) * time.Hour }

// Interval is the scheduler period: twelve samples per trailing window,
// never more often than once a minute.
func (c Config) Interval() time.Duration {
	iv := time.Duration(c.WindowHours*3600/12) * time.Second
	if iv < time.Minute {
		return time.Minute
	}
	return iv
}
