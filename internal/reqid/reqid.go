// Package reqid carries a per-request identifier through contexts.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Header is the HTTP header used to propagate request ids.
const Header = "X-Request-ID"

// NewContext returns a copy of ctx holding a freshly generated id.
func NewContext(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(ctx, id), id
}

// WithID returns a copy of ctx holding id. An empty id generates one.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request id from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}
