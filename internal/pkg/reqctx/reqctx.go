// Package reqctx carries per-request correlation data through context so that
// services and loggers never depend on the transport layer.
package reqctx

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sourceIPKey  contextKey = "source_ip"
)

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithSourceIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, sourceIPKey, ip)
}

func SourceIP(ctx context.Context) string {
	v, _ := ctx.Value(sourceIPKey).(string)
	return v
}
