package notify

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter routes watermill's internal logging through zap
type zapAdapter struct {
	logger *zap.Logger
}

func newZapAdapter(logger *zap.Logger) watermill.LoggerAdapter {
	return &zapAdapter{logger: logger}
}

func toFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(toFields(fields), zap.Error(err))...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, toFields(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, toFields(fields)...)
}

func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	// watermill traces every message; keep them out of debug output
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{logger: a.logger.With(toFields(fields)...)}
}
