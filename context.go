package lmsauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Login stores it on
// the session and the suspicious-activity heuristic compares it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDevice attaches a client-supplied device label ("iPhone", "lab-pc-12").
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

type requestMeta struct {
	ip        string
	userAgent string
	device    string
}

func metaFromContext(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	var m requestMeta
	m.ip, _ = ctx.Value(clientIPContextKey{}).(string)
	m.userAgent, _ = ctx.Value(userAgentContextKey{}).(string)
	m.device, _ = ctx.Value(deviceContextKey{}).(string)
	return m
}
