// Package logging builds the zerolog loggers used across the add-on host.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "ADDONHOST_LOG_LEVEL"
	EnvLogTimestamp = "ADDONHOST_LOG_TIMESTAMP"
	EnvLogNoColor   = "ADDONHOST_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the logger setup after profile defaults, the config file and
// environment overrides have been applied, in that order.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// JSON switches from the console writer to raw JSON lines.
	JSON bool
}

func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

// FileSettings mirrors the log section of the config file.
type FileSettings struct {
	Level     string `yaml:"level"`
	Timestamp *bool  `yaml:"timestamp"`
	NoColor   *bool  `yaml:"no_color"`
	JSON      bool   `yaml:"json"`
}

// Resolve layers file settings and environment overrides on the profile defaults.
func Resolve(profile Profile, fs FileSettings) Config {
	cfg := DefaultConfig(profile)
	if lvl, ok := ParseLevel(fs.Level); ok {
		cfg.Level = lvl
	}
	if fs.Timestamp != nil {
		cfg.Timestamp = *fs.Timestamp
	}
	if fs.NoColor != nil {
		cfg.NoColor = *fs.NoColor
	}
	cfg.JSON = fs.JSON
	applyEnvOverrides(&cfg, os.Getenv)
	return cfg
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if lvl, ok := ParseLevel(getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// New builds a logger writing to w tagged with app.
func New(w io.Writer, app string, cfg Config) zerolog.Logger {
	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

// Component returns a child logger for one subsystem.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
