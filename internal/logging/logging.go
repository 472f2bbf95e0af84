// Package logging configures the zerolog logger shared by the CLI, the
// session and the HTTP server.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	// Out overrides the console destination (stderr when nil).
	Out io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "tradeledger", "logs", "ledger.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// NewLogger creates a logger with the default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

var levelLabels = map[string]*color.Color{
	"trace": color.New(color.FgHiBlack),
	"debug": color.New(color.FgCyan),
	"info":  color.New(color.FgGreen),
	"warn":  color.New(color.FgYellow),
	"error": color.New(color.FgRed),
	"fatal": color.New(color.FgRed, color.Bold),
}

// NewLoggerWithConfig builds a logger writing to the console, a rotating
// file, both or neither. Reports go to stdout, so console logs use stderr.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    color.NoColor,
			FormatLevel: func(i interface{}) string {
				name, _ := i.(string)
				label := strings.ToUpper(name)
				if len(label) > 3 {
					label = label[:3]
				}
				if c, ok := levelLabels[name]; ok && !color.NoColor {
					return c.Sprint(label)
				}
				return label
			},
		})
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(writer).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level. Unknown names are info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithPortfolio adds a portfolio ID to the logger context.
func WithPortfolio(logger zerolog.Logger, portfolioID string) zerolog.Logger {
	return logger.With().Str("portfolio", portfolioID).Logger()
}

// LogStateChange logs a session state transition.
func LogStateChange(logger zerolog.Logger, portfolioID, from, to string) {
	logger.Debug().
		Str("event", "state").
		Str("portfolio", portfolioID).
		Str("from", from).
		Str("state", to).
		Msg("Session state changed")
}

// FetchLogger returns a price fetch observer that logs each call at debug
// level, failures at warn.
func FetchLogger(logger zerolog.Logger) func(symbol string, d time.Duration, bars int, err error) {
	return func(symbol string, d time.Duration, bars int, err error) {
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Dur("duration", d).Msg("Price fetch failed")
			return
		}
		logger.Debug().Str("symbol", symbol).Int("bars", bars).Dur("duration", d).Msg("Price fetch completed")
	}
}
