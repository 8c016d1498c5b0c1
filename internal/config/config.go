// Package config loads settings from defaults, an optional YAML file,
// MOODS_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MOODS_DB
const EnvPrefix = "MOODS"

// Config holds all settings
type Config struct {
	DB        string
	Timezone  string
	Log       LogConfig
	Serve     ServeConfig
	Reminder  ReminderConfig
	Analytics AnalyticsConfig

	// File is the config file that was read, empty when none was found.
	File string
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string
	Format string
}

// ServeConfig controls the HTTP API
type ServeConfig struct {
	Addr string
}

// ReminderConfig controls the reminder check
type ReminderConfig struct {
	Threshold time.Duration
	Interval  time.Duration
}

// AnalyticsConfig controls the shared trend feed
type AnalyticsConfig struct {
	Grace time.Duration
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"db":         "db",
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "serve.addr",
	"timezone":   "timezone",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "~/.moods/moods.db")
	v.SetDefault("timezone", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("reminder.threshold", 18*time.Hour)
	v.SetDefault("reminder.interval", 30*time.Minute)
	v.SetDefault("analytics.grace", 5*time.Second)
}

// DefaultFile returns the config file read when none is given
func DefaultFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".moods", "config.yaml")
}

// Load reads the configuration. An explicit file must exist; the default
// file is optional. Only flags the user actually set override other sources.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var used string
	explicit := file != ""
	if !explicit {
		file = DefaultFile()
	}
	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			used = path
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	db, err := homedir.Expand(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("expand db path: %w", err)
	}

	cfg := &Config{
		DB:       db,
		Timezone: v.GetString("timezone"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Serve: ServeConfig{
			Addr: v.GetString("serve.addr"),
		},
		Reminder: ReminderConfig{
			Threshold: v.GetDuration("reminder.threshold"),
			Interval:  v.GetDuration("reminder.interval"),
		},
		Analytics: AnalyticsConfig{
			Grace: v.GetDuration("analytics.grace"),
		},
		File: used,
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("db path is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}

	if c.Serve.Addr == "" {
		return fmt.Errorf("serve address is required")
	}

	if c.Reminder.Threshold <= 0 {
		return fmt.Errorf("reminder threshold must be positive, got %s", c.Reminder.Threshold)
	}
	if c.Reminder.Interval <= 0 {
		return fmt.Errorf("reminder interval must be positive, got %s", c.Reminder.Interval)
	}
	if c.Analytics.Grace < 0 {
		return fmt.Errorf("analytics grace must not be negative, got %s", c.Analytics.Grace)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the zone entries are recorded in; blank means the system zone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
