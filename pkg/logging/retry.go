package logging

import (
	"context"
	"fmt"
)

// RetryLogger adapts a Logger to go-retryablehttp's LeveledLogger. Per-attempt
// request logging is demoted to debug.
type RetryLogger struct {
	logger Logger
}

// NewRetryLogger wraps logger
func NewRetryLogger(logger Logger) *RetryLogger {
	return &RetryLogger{logger: logger}
}

func (l *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), msg, nil, kvFields(keysAndValues))
}

func (l *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(context.Background(), msg, kvFields(keysAndValues))
}

func (l *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), msg, kvFields(keysAndValues))
}

func (l *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) Fields {
	if len(kv) == 0 {
		return nil
	}
	f := make(Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			f[key] = kv[i+1]
		} else {
			f[key] = "(missing)"
		}
	}
	return f
}
