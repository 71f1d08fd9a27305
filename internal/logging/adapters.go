package logging

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// pgxLogger adapts zerolog to the pgx tracelog interface.
type pgxLogger struct {
	logger zerolog.Logger
}

func (l pgxLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var evt *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		evt = l.logger.Error()
	case tracelog.LogLevelWarn:
		evt = l.logger.Warn()
	default:
		// Per-query tracing stays at debug regardless of what pgx
		// considers informational.
		evt = l.logger.Debug()
	}
	evt.Fields(data).Msg(msg)
}

// Tracer returns a pgx query tracer that logs wire-level activity
// through the given zerolog logger.
func Tracer(base zerolog.Logger) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger: pgxLogger{
			logger: base.With().Str("component", "pgx").Logger(),
		},
		LogLevel: tracelog.LogLevelDebug,
	}
}
