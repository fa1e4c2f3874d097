package user

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/materialize"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
	"github.com/hanpama/graphcms/internal/store/memory"
)

func setup(t *testing.T) (*Module, *materialize.Result) {
	t.Helper()
	m, err := New(memory.NewDatabase(), Options{CacheSize: 8, Cost: bcrypt.MinCost}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.SeedAdmin(context.Background(), "admin", "secret"))
	require.NoError(t, m.SeedAdmin(context.Background(), "admin", "other"))

	reg := registry.New()
	m.Register(reg)
	res, err := materialize.Compose(reg, materialize.Options{})
	require.NoError(t, err)
	return m, res
}

func userData(t *testing.T, out *executor.ExecutionResult) map[string]any {
	t.Helper()
	require.Empty(t, out.Errors)
	return out.Data.(map[string]any)
}

// login authenticates over GraphQL and returns the context a request with
// the resulting bearer token would carry.
func login(t *testing.T, m *Module, res *materialize.Result, username, password string) (string, context.Context) {
	t.Helper()
	out := res.Execute(context.Background(), fmt.Sprintf(`{ user { auth(username: %q, password: %q) { token username roles } } }`, username, password), nil)
	auth := userData(t, out)["user"].(map[string]any)["auth"].(map[string]any)
	require.Equal(t, username, auth["username"])
	token := auth["token"].(string)

	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := m.Identify(r)
	require.NoError(t, err)
	require.NotNil(t, id)
	return token, authz.NewContext(context.Background(), id)
}

func TestLoginAndCurrentUser(t *testing.T) {
	m, res := setup(t)
	_, ctx := login(t, m, res, "admin", "secret")

	out := res.Execute(ctx, `{ currentUser { username roles } }`, nil)
	require.Equal(t, map[string]any{"username": "admin", "roles": []any{"ADMIN"}}, userData(t, out)["currentUser"])

	out = res.Execute(context.Background(), `{ currentUser { username } }`, nil)
	require.Nil(t, userData(t, out)["currentUser"])
}

func TestBadCredentials(t *testing.T) {
	m, _ := setup(t)
	_, err := m.Authenticate(context.Background(), "admin", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = m.Authenticate(context.Background(), "nobody", "secret")
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestIdentify(t *testing.T) {
	m, _ := setup(t)
	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer unknown"} {
		r := httptest.NewRequest("GET", "/", nil)
		if h != "" {
			r.Header.Set("Authorization", h)
		}
		id, err := m.Identify(r)
		require.NoError(t, err, h)
		require.Nil(t, id, h)
	}
}

func TestAddAndRoles(t *testing.T) {
	m, res := setup(t)
	_, admin := login(t, m, res, "admin", "secret")

	out := res.Execute(admin, `{ user { add(username: "ann", password: "pw") } }`, nil)
	require.Equal(t, "ann", userData(t, out)["user"].(map[string]any)["add"])
	out = res.Execute(admin, `{ user { add(username: "ann", password: "pw") } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeBadUserInput, out.Errors[0].Extensions["code"])

	token, ann := login(t, m, res, "ann", "pw")
	id, ok := authz.FromContext(ann)
	require.True(t, ok)
	require.Equal(t, []authz.Role{authz.User}, id.Roles)

	// USER cannot manage accounts.
	out = res.Execute(ann, `{ user { list { username } } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeForbidden, out.Errors[0].Extensions["code"])

	out = res.Execute(admin, `{ user { update(username: "ann", roles: [ADMIN]) } }`, nil)
	require.Equal(t, true, userData(t, out)["user"].(map[string]any)["update"])

	// The cached identity was dropped, so the token now carries ADMIN.
	promoted, err := m.Lookup(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, []authz.Role{authz.Admin}, promoted.Roles)

	out = res.Execute(admin, `{ user { list { username } count } }`, nil)
	got := userData(t, out)["user"].(map[string]any)
	require.Equal(t, []any{map[string]any{"username": "admin"}, map[string]any{"username": "ann"}}, got["list"])
	require.Equal(t, int64(2), got["count"])
}

func TestLogout(t *testing.T) {
	m, res := setup(t)
	token, ctx := login(t, m, res, "admin", "secret")

	out := res.Execute(ctx, `{ user { logout } }`, nil)
	require.Equal(t, true, userData(t, out)["user"].(map[string]any)["logout"])
	id, err := m.Lookup(context.Background(), token)
	require.NoError(t, err)
	require.Nil(t, id)

	out = res.Execute(context.Background(), `{ user { logout } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeUnauthenticated, out.Errors[0].Extensions["code"])
}

// stalledReads holds every FindOne after its read until release is closed.
type stalledReads struct {
	store.Collection
	read    chan struct{}
	release chan struct{}
}

func (c *stalledReads) FindOne(ctx context.Context, f store.Filter) (store.Document, error) {
	doc, err := c.Collection.FindOne(ctx, f)
	c.read <- struct{}{}
	<-c.release
	return doc, err
}

func TestRevocationDuringLookup(t *testing.T) {
	tests := []struct {
		name   string
		revoke func(m *Module) (bool, error)
		want   []authz.Role // nil when the token no longer resolves
	}{
		{"logout", func(m *Module) (bool, error) { return m.Logout(context.Background(), "admin") }, nil},
		{"demote", func(m *Module) (bool, error) {
			return m.SetRoles(context.Background(), "admin", []string{"USER"})
		}, []authz.Role{authz.User}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, res := setup(t)
			token, _ := login(t, m, res, "admin", "secret")
			m.cache.Purge()

			users := m.users
			stalled := &stalledReads{Collection: users, read: make(chan struct{}), release: make(chan struct{})}
			m.users = stalled
			done := make(chan error, 1)
			go func() {
				_, err := m.Lookup(context.Background(), token)
				done <- err
			}()

			<-stalled.read
			ok, err := tt.revoke(m)
			require.NoError(t, err)
			require.True(t, ok)
			close(stalled.release)
			require.NoError(t, <-done)
			m.users = users

			id, err := m.Lookup(context.Background(), token)
			require.NoError(t, err)
			if tt.want == nil {
				require.Nil(t, id)
				return
			}
			require.NotNil(t, id)
			require.Equal(t, tt.want, id.Roles)
		})
	}
}

func TestChangePasswordAndDelete(t *testing.T) {
	m, res := setup(t)
	_, err := m.Add(context.Background(), "bob", "old", nil)
	require.NoError(t, err)
	token, bob := login(t, m, res, "bob", "old")

	out := res.Execute(bob, `{ user { changePassword(password: "new") } }`, nil)
	require.Equal(t, true, userData(t, out)["user"].(map[string]any)["changePassword"])
	_, err = m.Authenticate(context.Background(), "bob", "old")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = m.Authenticate(context.Background(), "bob", "new")
	require.NoError(t, err)

	ok, err := m.Delete(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, ok)
	id, err := m.Lookup(context.Background(), token)
	require.NoError(t, err)
	require.Nil(t, id)

	u, err := m.Get(context.Background(), "bob")
	require.NoError(t, err)
	require.Nil(t, u)
}
