package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
	clientKey
)

type client struct {
	ip        string
	userAgent string
}

type actor struct {
	role string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithActor records the authenticated caller for log enrichment only.
func WithActor(ctx context.Context, role, id string) context.Context {
	return context.WithValue(ctx, actorKey, actor{role: strings.TrimSpace(role), id: strings.TrimSpace(id)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey).(actor)
	if !ok {
		return "", ""
	}
	return value.role, value.id
}

func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey, client{ip: strings.TrimSpace(ip), userAgent: strings.TrimSpace(userAgent)})
}

// ClientFromContext returns the caller's IP address and user agent.
func ClientFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(clientKey).(client)
	if !ok {
		return "", ""
	}
	return value.ip, value.userAgent
}
