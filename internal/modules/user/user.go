// Package user keeps accounts, roles and session tokens, and derives the
// request identity the authorization guard checks.
package user

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
)

const Collection = "users"

// ErrBadCredentials is returned by Authenticate for an unknown user or a
// wrong password. The two cases are not distinguished.
var ErrBadCredentials = errors.New("invalid username or password")

// User is the public view of an account.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Session is the result of a successful login.
type Session struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type Options struct {
	// CacheSize bounds the token -> identity cache.
	CacheSize int
	// Header carries the bearer token.
	Header string
	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int
}

type Module struct {
	users  store.Collection
	cache  *lru.Cache[string, *authz.Identity]
	epoch  atomic.Uint64 // advances on every cache invalidation
	header string
	cost   int
	log    zerolog.Logger
}

func New(db store.Database, opts Options, log zerolog.Logger) (*Module, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.Header == "" {
		opts.Header = "Authorization"
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	cache, err := lru.New[string, *authz.Identity](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Module{
		users:  db.Collection(Collection),
		cache:  cache,
		header: opts.Header,
		cost:   opts.Cost,
		log:    log.With().Str("component", "user").Logger(),
	}, nil
}

// Identify maps the bearer token of r to an identity. A request without a
// token, or with a token no user holds, is anonymous.
func (m *Module) Identify(r *http.Request) (*authz.Identity, error) {
	token := bearer(r.Header.Get(m.header))
	if token == "" {
		return nil, nil
	}
	return m.Lookup(r.Context(), token)
}

// Lookup resolves a session token.
func (m *Module) Lookup(ctx context.Context, token string) (*authz.Identity, error) {
	if id, ok := m.cache.Get(token); ok {
		return id, nil
	}
	epoch := m.epoch.Load()
	doc, err := m.users.FindOne(ctx, store.Filter{"tokens": token})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := identity(doc)
	if err != nil {
		return nil, err
	}
	// A write that landed after the read advanced the epoch; its purge may
	// have run before Add, so drop the entry again.
	m.cache.Add(token, id)
	if m.epoch.Load() != epoch {
		m.cache.Remove(token)
	}
	return id, nil
}

func bearer(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func identity(doc store.Document) (*authz.Identity, error) {
	name, _ := doc[store.IDField].(string)
	roles, err := authz.ParseRoles(stringList(doc["roles"]))
	if err != nil {
		return nil, err
	}
	return &authz.Identity{Username: name, Roles: roles}, nil
}

func view(doc store.Document) *User {
	name, _ := doc[store.IDField].(string)
	return &User{Username: name, Roles: stringList(doc["roles"])}
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Add creates an account. Without roles the account gets USER.
func (m *Module) Add(ctx context.Context, username, password string, roles []string) (string, error) {
	if username == "" {
		return "", errs.Invalid("username", "must not be empty")
	}
	if password == "" {
		return "", errs.Invalid("password", "must not be empty")
	}
	names, err := normalizeRoles(roles)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", err
	}
	doc := store.Document{"password": string(hash), "roles": names, "tokens": []any{}}
	if err := m.users.Insert(ctx, username, doc); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return "", errs.Invalid("username", "%q is taken", username)
		}
		return "", err
	}
	m.log.Info().Str("username", username).Strs("roles", stringList(names)).Msg("user created")
	return username, nil
}

func normalizeRoles(roles []string) ([]any, error) {
	if len(roles) == 0 {
		return []any{authz.User.String()}, nil
	}
	parsed, err := authz.ParseRoles(roles)
	if err != nil {
		return nil, errs.Invalid("roles", "%v", err)
	}
	out := make([]any, len(parsed))
	for i, r := range parsed {
		out[i] = r.String()
	}
	return out, nil
}

// SeedAdmin creates an ADMIN account unless username already exists.
func (m *Module) SeedAdmin(ctx context.Context, username, password string) error {
	_, err := m.users.Get(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	_, err = m.Add(ctx, username, password, []string{authz.Admin.String()})
	return err
}

// Authenticate checks a password and opens a session.
func (m *Module) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	doc, err := m.users.Get(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	hash, _ := doc["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	token := uuid.NewString()
	doc, err = m.users.Modify(ctx, username, func(d store.Document) (store.Document, error) {
		d["tokens"] = append(toAny(stringList(d["tokens"])), token)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Username: username, Roles: stringList(doc["roles"])}, nil
}

// Logout revokes every session of username.
func (m *Module) Logout(ctx context.Context, username string) (bool, error) {
	var revoked []string
	_, err := m.users.Modify(ctx, username, func(d store.Document) (store.Document, error) {
		revoked = stringList(d["tokens"])
		d["tokens"] = []any{}
		return d, nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.forget(revoked)
	return true, nil
}

func (m *Module) ChangePassword(ctx context.Context, username, password string) (bool, error) {
	if password == "" {
		return false, errs.Invalid("password", "must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return false, err
	}
	_, err = m.users.Update(ctx, username, store.Document{"password": string(hash)})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SetRoles replaces the roles of username. Cached identities of its sessions
// are dropped so the change applies to the next request.
func (m *Module) SetRoles(ctx context.Context, username string, roles []string) (bool, error) {
	names, err := normalizeRoles(roles)
	if err != nil {
		return false, err
	}
	var tokens []string
	_, err = m.users.Modify(ctx, username, func(d store.Document) (store.Document, error) {
		tokens = stringList(d["tokens"])
		d["roles"] = names
		return d, nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.forget(tokens)
	return true, nil
}

func (m *Module) Delete(ctx context.Context, username string) (bool, error) {
	doc, err := m.users.Get(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := m.users.Delete(ctx, username)
	if err != nil {
		return false, err
	}
	m.forget(stringList(doc["tokens"]))
	return ok, nil
}

func (m *Module) Get(ctx context.Context, username string) (*User, error) {
	doc, err := m.users.Get(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return view(doc), nil
}

func (m *Module) List(ctx context.Context) ([]*User, error) {
	docs, err := m.users.Find(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*User, len(docs))
	for i, d := range docs {
		out[i] = view(d)
	}
	return out, nil
}

func (m *Module) Count(ctx context.Context) (int, error) { return m.users.Count(ctx) }

// forget drops cached identities of tokens. It must run after the write
// that invalidated them is stored.
func (m *Module) forget(tokens []string) {
	m.epoch.Add(1)
	for _, t := range tokens {
		m.cache.Remove(t)
	}
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

func current(ctx context.Context) string {
	id, _ := authz.FromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Username
}

func (m *Module) Register(reg *registry.SchemaRegistry) {
	reg.DeclareFields("User",
		registry.Field{Name: "username", Type: "String!"},
		registry.Field{Name: "roles", Type: "[Role!]"},
	)
	reg.DeclareFields("UserAuthResponse",
		registry.Field{Name: "token", Type: "String!"},
		registry.Field{Name: "username", Type: "String!"},
		registry.Field{Name: "roles", Type: "[Role!]"},
	)
	reg.DeclareResolver("Query", "currentUser", "User", func(ctx context.Context, in registry.Input) (any, error) {
		id, ok := authz.FromContext(ctx)
		if !ok {
			return nil, nil
		}
		return &User{Username: id.Username, Roles: authz.RoleNames(id.Roles)}, nil
	}, "The identity of the request, or null when anonymous.")
	reg.DeclareResolver("Query", "user", "UserContext", registry.Namespace)

	reg.DeclareResolver("UserContext", "add(username: String!, password: String!, roles: [Role!])", "String! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Add(ctx, in.String("username"), in.String("password"), in.Strings("roles"))
	})
	reg.DeclareResolver("UserContext", "list", "[User] @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.List(ctx)
	})
	reg.DeclareResolver("UserContext", "get(username: String!)", "User", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Get(ctx, in.String("username"))
	})
	reg.DeclareResolver("UserContext", "changePassword(password: String!)", "Boolean! @auth(requires: USER)", func(ctx context.Context, in registry.Input) (any, error) {
		return m.ChangePassword(ctx, current(ctx), in.String("password"))
	})
	reg.DeclareResolver("UserContext", "update(username: String!, roles: [Role!]!)", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.SetRoles(ctx, in.String("username"), in.Strings("roles"))
	})
	reg.DeclareResolver("UserContext", "del(username: String!)", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Delete(ctx, in.String("username"))
	})
	reg.DeclareResolver("UserContext", "auth(username: String!, password: String!)", "UserAuthResponse", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Authenticate(ctx, in.String("username"), in.String("password"))
	})
	reg.DeclareResolver("UserContext", "logout", "Boolean! @auth(requires: USER)", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Logout(ctx, current(ctx))
	})
	reg.DeclareResolver("UserContext", "count", "Int!", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Count(ctx)
	})
}
