package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// loggerAdapter bridges watermill's logging interface onto slog.
type loggerAdapter struct {
	logger *slog.Logger
}

func newLoggerAdapter(logger *slog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggerAdapter{logger: logger}
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(l.args(fields), "error", err)...)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, l.args(fields)...)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, l.args(fields)...)
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, l.args(fields)...)
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{logger: l.logger.With(l.args(fields)...)}
}

func (l *loggerAdapter) args(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
