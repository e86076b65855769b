package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "req_ip"
	ctxKeyUserAgent contextKey = "req_ua"
	ctxKeyAdmin     contextKey = "req_admin"
)

// ContextWithIPAddress adds the client IP to context for operation logs.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent to context for operation logs.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithAdmin marks the request as made by an authenticated admin.
func ContextWithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyAdmin, true)
}

// GetIPAddressFromContext extracts the client IP from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// IsAdmin reports whether ctx carries an authenticated admin.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyAdmin).(bool)
	return v
}

// requireAdmin fails with ErrUnauthorized unless ctx carries an admin.
func requireAdmin(ctx context.Context) error {
	if !IsAdmin(ctx) {
		return ErrUnauthorized
	}
	return nil
}
