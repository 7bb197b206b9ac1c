// Package logger wraps zerolog with a process-wide logger and
// request-scoped children carried in the context.
package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	once         sync.Once
)

// Init configures the global logger. Only the first call has any effect.
// An unparseable level falls back to info.
func Init(level, logFilePath string) {
	once.Do(func() {
		writers := []io.Writer{os.Stdout}

		if logFilePath != "" {
			file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
			if err != nil {
				// The logger isn't usable yet
				os.Stderr.WriteString("Failed to open log file: " + err.Error() + "\n")
			} else {
				writers = append(writers, file)
			}
		}

		lvl, err := zerolog.ParseLevel(level)
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}

		multi := zerolog.MultiLevelWriter(writers...)
		globalLogger = zerolog.New(multi).With().Timestamp().Logger().Level(lvl)
		log.Logger = globalLogger
	})
}

// Global returns the process-wide logger.
func Global() *zerolog.Logger {
	return &globalLogger
}

// WithLogger returns a new context containing the logger with additional fields.
func WithLogger(ctx context.Context, fields map[string]interface{}) context.Context {
	l := FromContext(ctx).With().Fields(fields).Logger()
	return l.WithContext(ctx)
}

// FromContext extracts the logger from the context, falling back to the
// global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	// zerolog.Ctx returns a disabled logger if none is in context
	if l.GetLevel() == zerolog.Disabled {
		return &globalLogger
	}
	return l
}

func InfoLog(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Info().Msgf(msg, args...)
}

func WarnLog(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Warn().Msgf(msg, args...)
}

// ErrorLog logs err with a message.
func ErrorLog(ctx context.Context, err error, msg string) {
	FromContext(ctx).Error().Err(err).Msg(msg)
}
