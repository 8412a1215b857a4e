package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	once         sync.Once
)

// GetLogger returns the process default logger, used before configuration is
// loaded and by code paths without an injected logger.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		globalLogger = zerolog.New(consoleWriter).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
	return globalLogger
}

// Options configures New.
type Options struct {
	Level       string
	Format      string
	Service     string
	Environment string
	Output      io.Writer
}

// New constructs a zerolog logger based on level and format configuration.
func New(opts Options) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		lvl = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer
	switch strings.ToLower(opts.Format) {
	case "", "json":
		writer = out
	case "console":
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Logger{}, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if opts.Environment != "" {
		ctx = ctx.Str("environment", opts.Environment)
	}

	log := ctx.Logger().Level(lvl)
	// later GetLogger calls return the configured logger
	once.Do(func() {})
	globalLogger = log
	return log, nil
}
