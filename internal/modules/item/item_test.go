package item

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/eventbus"
	"github.com/hanpama/graphcms/internal/events"
	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/materialize"
	"github.com/hanpama/graphcms/internal/modules/key"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
	"github.com/hanpama/graphcms/internal/store/memory"
	"github.com/hanpama/graphcms/internal/validate"
)

type fixture struct {
	db    *memory.Database
	index *memory.Index
	items *Module
	res   *materialize.Result
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDatabase()
	idx := memory.NewIndex()
	keys := key.New(db, validate.NewEngine(), zerolog.Nop())
	require.NoError(t, keys.Seed(ctx))
	require.NoError(t, keys.Set(ctx, key.Record{Key: "price", Schema: validate.Number().Required().Kind(validate.KindNumber).MustMarshal()}))

	items := New(db, idx, keys, zerolog.Nop())
	reg := registry.New()
	keys.Register(reg)
	items.Register(reg)
	res, err := materialize.Compose(reg, materialize.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return &fixture{db: db, index: idx, items: items, res: res}
}

func as(role authz.Role) context.Context {
	return authz.NewContext(context.Background(), &authz.Identity{Username: role.String(), Roles: []authz.Role{role}})
}

func data(t *testing.T, out *executor.ExecutionResult) map[string]any {
	t.Helper()
	require.Empty(t, out.Errors)
	return out.Data.(map[string]any)["item"].(map[string]any)
}

func (f *fixture) add(t *testing.T, payload string) string {
	t.Helper()
	out := f.res.Execute(as(authz.Admin), `{ item { add(payload: `+payload+`) } }`, nil)
	return data(t, out)["add"].(string)
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.items.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestAddAndGet(t *testing.T) {
	f := setup(t)
	id := f.add(t, `{title: "Tea", description: "Green leaves", price: 3}`)
	require.NotEmpty(t, id)

	out := f.res.Execute(context.Background(), fmt.Sprintf(`{ item { get(id: %q) { items total schema } } }`, id), nil)
	got := data(t, out)["get"].(map[string]any)
	require.Equal(t, int64(1), got["total"])
	want := []any{map[string]any{"_id": id, "title": "Tea", "description": "Green leaves", "price": 3.0}}
	if diff := cmp.Diff(want, got["items"]); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	dict := got["schema"].(map[string]any)["dict"].(map[string]any)
	require.ElementsMatch(t, []string{"_id", "title", "description", "price"}, keysOf(dict))
	require.Equal(t, "number", dict["price"].(map[string]any)["type"])

	body, ok := f.index.Body(Index, id)
	require.True(t, ok)
	require.Equal(t, store.Document{"title": "Tea", "description": "Green leaves"}, body)
}

func TestAddGivenID(t *testing.T) {
	f := setup(t)
	require.Equal(t, "tea", f.add(t, `{_id: "tea", title: "Tea", description: "d"}`))

	out := f.res.Execute(as(authz.Admin), `{ item { add(payload: {_id: "tea", title: "Again", description: "d"}) } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, 1, f.count(t))
}

func TestAddRejectsUnregisteredKey(t *testing.T) {
	f := setup(t)
	out := f.res.Execute(as(authz.Admin), `{ item { add(payload: {title: "x", description: "y", ghost: 1}) } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeBadUserInput, out.Errors[0].Extensions["code"])
	require.Equal(t, 0, f.count(t))
}

func TestAddRequiredKey(t *testing.T) {
	f := setup(t)
	_, err := f.items.Add(context.Background(), map[string]any{"title": "x", "description": "y", "price": nil})
	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []errs.Issue{{Path: "price", Message: "required"}}, ve.Issues)
}

func TestAddCoercesImage(t *testing.T) {
	f := setup(t)
	id := f.add(t, `{title: "x", description: "y", images: "a.png"}`)
	doc, err := f.db.Collection(Collection).Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []any{"a.png"}, doc["images"])
}

func TestAddRequiresAdmin(t *testing.T) {
	f := setup(t)
	out := f.res.Execute(as(authz.User), `{ item { add(payload: {title: "x", description: "y"}) } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeForbidden, out.Errors[0].Extensions["code"])
	require.Equal(t, 0, f.count(t))
}

func TestDeleteRequiresAdmin(t *testing.T) {
	f := setup(t)
	id := f.add(t, `{title: "x", description: "y", price: 9.5}`)
	q := fmt.Sprintf(`{ item { del(id: %q) } }`, id)

	out := f.res.Execute(as(authz.User), q, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeForbidden, out.Errors[0].Extensions["code"])
	require.Equal(t, 1, f.count(t))

	out = f.res.Execute(as(authz.Admin), q, nil)
	require.Equal(t, true, data(t, out)["del"])
	require.Equal(t, 0, f.count(t))
	_, ok := f.index.Body(Index, id)
	require.False(t, ok)

	out = f.res.Execute(as(authz.Admin), q, nil)
	require.Equal(t, false, data(t, out)["del"])
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	id := f.add(t, `{title: "Tea", description: "d"}`)

	out := f.res.Execute(as(authz.User), fmt.Sprintf(`{ item { update(id: %q, set: {title: "Coffee", price: "4"}) } }`, id), nil)
	require.Equal(t, true, data(t, out)["update"])
	doc, err := f.db.Collection(Collection).Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Coffee", doc["title"])
	require.Equal(t, 4.0, doc["price"])
	body, _ := f.index.Body(Index, id)
	require.Equal(t, "Coffee", body["title"])

	out = f.res.Execute(as(authz.User), `{ item { update(id: "nope", set: {title: "x"}) } }`, nil)
	require.Equal(t, false, data(t, out)["update"])

	out = f.res.Execute(context.Background(), fmt.Sprintf(`{ item { update(id: %q, set: {title: "x"}) } }`, id), nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeUnauthenticated, out.Errors[0].Extensions["code"])
}

func TestSearch(t *testing.T) {
	f := setup(t)
	desc := f.add(t, `{_id: "a", title: "Coffee", description: "better than tea"}`)
	title := f.add(t, `{_id: "b", title: "Tea time", description: "afternoon"}`)
	f.add(t, `{_id: "c", title: "Water", description: "plain"}`)

	res, err := f.items.Search(context.Background(), "tea", 50, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	require.Equal(t, title, res.Items[0][store.IDField])
	require.Equal(t, desc, res.Items[1][store.IDField])

	res, err = f.items.Search(context.Background(), "", 1, 1)
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "b", res.Items[0][store.IDField])

	out := f.res.Execute(context.Background(), `{ item { count search(keyword: "water") { total } } }`, nil)
	got := data(t, out)
	require.Equal(t, int64(3), got["count"])
	require.Equal(t, map[string]any{"total": int64(1)}, got["search"])
}

func TestSearchZeroSizeUsesDefaultPage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < DefaultPageSize+1; i++ {
		_, err := f.items.Add(ctx, map[string]any{"title": fmt.Sprintf("item %d", i)})
		require.NoError(t, err)
	}

	res, err := f.items.Search(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultPageSize+1, res.Total)
	require.Len(t, res.Items, DefaultPageSize)

	out := f.res.Execute(ctx, `{ item { search(size: 0) { items } } }`, nil)
	require.Len(t, data(t, out)["search"].(map[string]any)["items"], DefaultPageSize)
}

func TestMirrorFailureKeepsDocument(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var failed []events.IndexMirrorFailed
	eventbus.On(bus, func(_ context.Context, e events.IndexMirrorFailed) { failed = append(failed, e) })

	f := setup(t)
	f.index.Fail = errors.New("index down")
	id, err := f.items.Add(context.Background(), map[string]any{"title": "x", "description": "y"})
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t))
	require.Len(t, failed, 1)
	require.Equal(t, id, failed[0].ID)
	require.Equal(t, Index, failed[0].Index)
}

func TestGetToleratesStaleRecord(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Collection(Collection).Insert(context.Background(), "old", store.Document{"title": "x", "legacy": true}))

	res, err := f.items.Get(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, true, res.Items[0]["legacy"])
	require.Equal(t, validate.TypeNever, res.Schema.Dict["legacy"].Type)

	res, err = f.items.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, validate.TypeObject, res.Schema.Type)
	require.Empty(t, res.Schema.Dict)

	out := f.res.Execute(context.Background(), `{ item { get(id: "missing") { items schema } } }`, nil)
	got := data(t, out)["get"].(map[string]any)
	require.NotNil(t, got["items"])
	require.Empty(t, got["items"])
	require.Equal(t, "object", got["schema"].(map[string]any)["type"])
}
