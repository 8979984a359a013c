// Package requestid carries the per-request correlation id shared by the HTTP and
// gRPC edges and the loggers behind them.
package requestid

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	Header      = "X-Request-Id"
	MetadataKey = "x-request-id"
	maxLen      = 128
)

type ctxKey struct{}

func New() string {
	return uuid.NewString()
}

// Sanitize keeps a caller-supplied id only when it is short printable ASCII.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}

func WithContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Logger returns base annotated with the request id in ctx, if any.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := FromContext(ctx); id != "" {
		return base.With("request_id", id)
	}
	return base
}
