package ingest

import (
	"log/slog"

	"likevault/internal/logging"
)

// cronLogger adapts slog to cron.Logger. Cron's routine info messages are
// demoted to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{
		logging.Error(err),
		logging.String(logging.FieldEventType, "cron_error"),
		logging.String(logging.FieldErrorHint, "a scheduled pass panicked or was skipped"),
	}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
