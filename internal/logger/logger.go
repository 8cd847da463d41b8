package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Operations logs each call into the access services with its duration.
// Errors the caller caused are logged at warn, everything else at error.
type Operations struct {
	logger        zerolog.Logger
	isCallerError func(error) bool
}

func NewOperations(logger zerolog.Logger, isCallerError func(error) bool) *Operations {
	return &Operations{logger: logger, isCallerError: isCallerError}
}

// Track runs fn with a logger carrying the operation name in its context.
func (o *Operations) Track(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	started := time.Now()

	ctx = o.logger.With().
		Str("operation", operation).
		Logger().WithContext(ctx)

	err := fn(ctx)

	switch {
	case err == nil:
		zerolog.Ctx(ctx).Debug().
			Dur("duration", time.Since(started)).
			Msg("access call")
	case o.isCallerError != nil && o.isCallerError(err):
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("access call rejected")
	default:
		zerolog.Ctx(ctx).Error().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("access call failed")
	}

	return err
}
