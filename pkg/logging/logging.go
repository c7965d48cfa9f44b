// Package logging backs live.Logger with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// Level is one of trace, debug, info, warn, error.
	Level  string
	Pretty bool
	Output io.Writer
	Fields map[string]interface{}
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: true,
		Output: os.Stderr,
	}
}

// Logger implements live.Logger. Variadic args are key/value pairs.
type Logger struct {
	logger zerolog.Logger
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if len(cfg.Fields) > 0 {
		ctx = ctx.Fields(cfg.Fields)
	}
	return &Logger{logger: ctx.Logger()}
}

// With returns a child logger carrying a component field.
func (l *Logger) With(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logger.Debug().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.logger.Info().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logger.Warn().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.logger.Error().Fields(pairs(args)).Msg(msg)
}

// pairs pads an odd-length list so the trailing key is not dropped.
func pairs(args []interface{}) []interface{} {
	if len(args)%2 == 1 {
		args = append(args, "(MISSING)")
	}
	return args
}
