// Package config loads palabria settings from defaults, an optional YAML
// file, PALABRIA_* environment variables and CLI flags using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable (PALABRIA_DB_PATH, ...).
const EnvPrefix = "PALABRIA"

// Config holds the runtime configuration.
type Config struct {
	// DBPath is the SQLite database file. Also read from the legacy DB_PATH variable.
	DBPath string `mapstructure:"db_path"`
	// IdleGrace is how long after the last heartbeat a session still ends at that heartbeat.
	IdleGrace time.Duration `mapstructure:"idle_grace"`
	// IdleSlack is added to IdleGrace to absorb heartbeat jitter.
	IdleSlack time.Duration `mapstructure:"idle_slack"`
	// MinSession is the floor for recorded session durations.
	MinSession time.Duration `mapstructure:"min_session"`
	// MaxSession is the cap for recorded session durations.
	MaxSession time.Duration `mapstructure:"max_session"`
	// ReconcileOnHeartbeat closes the open session after every heartbeat.
	ReconcileOnHeartbeat bool `mapstructure:"reconcile_on_heartbeat"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Options controls where Load looks for settings.
type Options struct {
	// File is an explicit config file. When empty, palabria.yaml in Dir is
	// read if present.
	File string
	// Dir is searched for palabria.yaml when File is empty. Defaults to ".".
	Dir string
	// Flags, when set, overrides db_path with the "db" flag if it was changed.
	Flags *pflag.FlagSet
}

// Load builds and validates Config. Precedence, lowest first: defaults,
// config file, environment, flags. A missing default config file is ignored;
// a missing explicit File is an error.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", "data/palabria.db")
	v.SetDefault("idle_grace", "30m")
	v.SetDefault("idle_slack", "5s")
	v.SetDefault("min_session", "10s")
	v.SetDefault("max_session", "12h")
	v.SetDefault("reconcile_on_heartbeat", true)
	v.SetDefault("log_level", "info")

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		v.SetConfigName("palabria")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("db_path", EnvPrefix+"_DB_PATH", "DB_PATH"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if opts.Flags != nil {
		if f := opts.Flags.Lookup("db"); f != nil && f.Changed {
			if err := v.BindPFlag("db_path", f); err != nil {
				return nil, fmt.Errorf("config: bind flag: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bounds and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db_path must be set")
	}
	if c.IdleGrace < 0 || c.IdleSlack < 0 {
		return errors.New("config: idle_grace and idle_slack must not be negative")
	}
	if c.MinSession <= 0 {
		return errors.New("config: min_session must be positive")
	}
	if c.MaxSession < c.MinSession {
		return fmt.Errorf("config: max_session (%s) must be at least min_session (%s)", c.MaxSession, c.MinSession)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns LogLevel as a slog.Level. Unknown levels map to Info.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log_level %q", s)
	}
}
