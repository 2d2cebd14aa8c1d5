// Package logger provides a context-carrying structured logger built on logrus.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

var root = logrus.New()

func init() {
	root.SetFormatter(&logrus.JSONFormatter{})
}

// requestIDKey is the context key a request id is stored under.
type requestIDKey struct{}

// WithRequestID returns a context carrying the given request id, picked up by
// every subsequent log call made with that context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// CloneContext detaches a context from its deadline/cancellation while
// keeping the fields loggers care about (request id). Used by handlers that
// hand the request context to a background goroutine outliving the request.
func CloneContext(ctx context.Context) context.Context {
	out := context.Background()
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		out = WithRequestID(out, id)
	}
	return out
}

// GetLogger returns a logrus entry pre-populated with fields from ctx.
func GetLogger(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		fields["request_id"] = id
	}
	return root.WithFields(fields)
}

// Info logs an info-level message with the context's fields.
func Info(ctx context.Context, args ...interface{}) {
	GetLogger(ctx).Info(args...)
}

// Infof logs a formatted info-level message with the context's fields.
func Infof(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Infof(format, args...)
}

// Warn logs a warning-level message with the context's fields.
func Warn(ctx context.Context, args ...interface{}) {
	GetLogger(ctx).Warn(args...)
}

// Warnf logs a formatted warning-level message with the context's fields.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Warnf(format, args...)
}

// Error logs an error-level message with the context's fields.
func Error(ctx context.Context, args ...interface{}) {
	GetLogger(ctx).Error(args...)
}

// Errorf logs a formatted error-level message with the context's fields.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Errorf(format, args...)
}

// ErrorWithFields logs err alongside arbitrary structured fields.
func ErrorWithFields(ctx context.Context, err error, fields map[string]interface{}) {
	entry := GetLogger(ctx)
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.WithError(err).Error("request failed")
}

// SetLevel sets the minimum log level for the root logger.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}
