// Package ctxkeys carries per-request correlation values through contexts.
package ctxkeys

import "context"

// contextKey is the private key type for values stored in contexts.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientIDKey  contextKey = "client_id"
)

// WithRequestID stores the request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request correlation ID, or "unknown" when unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithClientID stores the caller's client identifier.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientID returns the caller's client identifier, or "anonymous" when
// unset.
func ClientID(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
