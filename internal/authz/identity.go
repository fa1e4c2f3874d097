package authz

import "context"

// Identity is the authenticated principal of a request.
type Identity struct {
	Username string
	Roles    []Role
}

// Level is the strongest role held by id. A nil identity, or one holding no
// roles, is a guest.
func (id *Identity) Level() Role {
	lvl := Guest
	if id == nil {
		return lvl
	}
	for _, r := range id.Roles {
		if r > lvl {
			lvl = r
		}
	}
	return lvl
}

// Has reports whether id holds at least role r.
func (id *Identity) Has(r Role) bool { return id.Level().Satisfies(r) }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity carried by ctx, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}
