package sloger

import (
	"context"
	"log/slog"
)

type ContextKey string

var LoggerKey ContextKey = "logger"

var (
	DefaultLogger = slog.Default()
)

func SetDefaultLogger(l *slog.Logger) {
	DefaultLogger = l
}

func With(args ...any) *slog.Logger {
	if DefaultLogger == nil {
		return slog.With(args...)
	}
	return DefaultLogger.With(args...)
}

// WithContext stores a logger carrying args in ctx, extending any logger already there.
func WithContext(ctx context.Context, args ...any) context.Context {
	logger := FromContext(ctx).With(args...)
	return context.WithValue(ctx, LoggerKey, logger)
}

func SetEventID(ctx context.Context, eventID string) context.Context {
	return WithContext(ctx, "event_id", eventID)
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return WithContext(ctx, "request_id", requestID)
}

func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(LoggerKey).(*slog.Logger)
	if !ok {
		// Fallback to the default logger if no logger is found in the context
		return slog.Default()
	}
	return logger
}
