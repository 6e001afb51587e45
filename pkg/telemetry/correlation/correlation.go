package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// Header carries the correlation id across service boundaries.
const Header = "X-Correlation-ID"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Inject copies the correlation id and the active trace id onto an outbound request.
func Inject(ctx context.Context, req *http.Request) {
	if req == nil {
		return
	}
	if cid := ExtractCorrelationID(ctx); cid != "" {
		req.Header.Set(Header, cid)
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		req.Header.Set("X-Trace-ID", sc.TraceID().String())
	}
}
