// Package observability holds the process logger and request-scoped logging.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type ctxKey string

const ctxKeyCorrelationID ctxKey = "correlation_id"

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Logger returns the process logger: JSON to stdout.
func Logger() *slog.Logger {
	return logger.Load()
}

// SetOutput redirects the process logger, mainly for tests. It is safe to call
// while requests are being served.
func SetOutput(w io.Writer) {
	l := slog.New(slog.NewJSONHandler(w, nil))
	logger.Store(l)
	slog.SetDefault(l)
}

// WithCorrelationID stores a correlation id in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyCorrelationID).(string)
	return id
}

// LoggerFromContext adds correlation_id when present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if id := CorrelationID(ctx); id != "" {
		return l.With("correlation_id", id)
	}
	return l
}
