// Package config loads pipeline settings from defaults, an optional YAML
// file, an optional .env file and WEFT_ environment variables, in that order
// of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// are separated by a double underscore, e.g. WEFT_LOG__LEVEL.
const EnvPrefix = "WEFT_"

type Config struct {
	Name             string        `koanf:"name"`
	Resumable        bool          `koanf:"resumable"`
	DefaultLifecycle string        `koanf:"default_lifecycle"`
	Log              LogConfig     `koanf:"log"`
	Events           EventsConfig  `koanf:"events"`
	Tracing          TracingConfig `koanf:"tracing"`
	Metrics          MetricsConfig `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type EventsConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, none
	DSN    string `koanf:"dsn"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
	// Stdout exports spans as JSON to standard output.
	Stdout bool `koanf:"stdout"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Options selects the files Load reads.
type Options struct {
	// File is a YAML config file. Empty skips it; a named file must exist.
	File string
	// DotEnv is loaded into the process environment when present. Variables
	// already set are not overridden. Defaults to ".env".
	DotEnv string
}

var defaults = map[string]any{
	"name":              "pipeline",
	"default_lifecycle": "default",
	"log.level":         "info",
	"log.format":        "text",
	"events.driver":     "memory",
	"events.dsn":        "file:weft-events.db",
}

// Load reads the configuration described by opts.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.File, err)
		}
	}

	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Events.Driver {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("config: unknown events.driver %q", c.Events.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by l, writing to stderr.
func (l LogConfig) NewLogger() *slog.Logger {
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts))
}
