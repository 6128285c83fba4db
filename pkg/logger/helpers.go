package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed upstream request
func LogRequest(log Logger, endpoint string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		log.DebugWithFields("Upstream request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		log.WarnWithFields("Upstream request client error", fields)
	default:
		log.ErrorWithFields("Upstream request failed", fields)
	}
}

// LogCooldown logs a retry backoff decision
func LogCooldown(log Logger, origin, reason string, attempt int, delay time.Duration) {
	log.WarnWithFields("Backing off before retry", map[string]interface{}{
		"origin":  origin,
		"reason":  reason,
		"attempt": attempt,
		"delay":   delay,
	})
}

// LogPage logs timeline paging progress
func LogPage(log Logger, rangeTag string, page, kept, total int) {
	log.InfoWithFields("Timeline page processed", map[string]interface{}{
		"range": rangeTag,
		"page":  page,
		"kept":  kept,
		"total": total,
	})
}

// LogSweep logs the outcome of a lifecycle sweep
func LogSweep(log Logger, sweep string, processed int, duration time.Duration) {
	log.InfoWithFields("Sweep finished", map[string]interface{}{
		"sweep":     sweep,
		"processed": processed,
		"duration":  duration,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// OrNop returns log, or a no-op logger when log is nil
func OrNop(log Logger) Logger {
	if log == nil {
		return NewNopLogger()
	}
	return log
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
