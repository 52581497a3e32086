// Package logutil builds slog loggers from the logging.* settings.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ConfigReader is the subset of *viper.Viper the logger needs.
type ConfigReader interface {
	GetString(string) string
	GetBool(string) bool
}

// LoggerConfig mirrors the logging section of the config file.
type LoggerConfig struct {
	Level     string // debug, info, warn or error; empty is info
	Format    string // text or json; empty is text
	AddSource bool
}

// LoggerConfigFromReader reads the logging.* keys. A nil reader gives the
// zero config.
func LoggerConfigFromReader(r ConfigReader) LoggerConfig {
	if r == nil {
		return LoggerConfig{}
	}
	return LoggerConfig{
		Level:     r.GetString("logging.level"),
		Format:    r.GetString("logging.format"),
		AddSource: r.GetBool("logging.add_source"),
	}
}

// LoggerFromConfig builds a logger writing to w. Unknown levels or formats
// are an error.
func LoggerFromConfig(cfg LoggerConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}

	return slog.New(h), nil
}

// LoggerFromReader is LoggerFromConfig over the settings held by r.
func LoggerFromReader(r ConfigReader, w io.Writer) (*slog.Logger, error) {
	return LoggerFromConfig(LoggerConfigFromReader(r), w)
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
