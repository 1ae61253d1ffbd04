package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header carries the request id both on the way in and on the way out.
const Header = "X-Request-Id"

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

func Generate() string {
	return uuid.NewString()
}

func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromContext returns the request id stored in ctx or an empty string.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func FromContextPtr(ctx context.Context) *string {
	id := FromContext(ctx)
	if id == "" {
		return nil
	}
	return &id
}

func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
