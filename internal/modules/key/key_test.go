package key

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/materialize"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store/memory"
	"github.com/hanpama/graphcms/internal/validate"
)

func setup(t *testing.T) (*Module, *materialize.Result) {
	t.Helper()
	m := New(memory.NewDatabase(), validate.NewEngine(), zerolog.Nop())
	require.NoError(t, m.Seed(context.Background()))
	reg := registry.New()
	m.Register(reg)
	res, err := materialize.Compose(reg, materialize.Options{})
	require.NoError(t, err)
	return m, res
}

var admin = authz.NewContext(context.Background(), &authz.Identity{Username: "root", Roles: []authz.Role{authz.Admin}})

func keyData(t *testing.T, out *executor.ExecutionResult) map[string]any {
	t.Helper()
	require.Empty(t, out.Errors)
	return out.Data.(map[string]any)["key"].(map[string]any)
}

func TestSeededKeys(t *testing.T) {
	_, res := setup(t)
	out := res.Execute(context.Background(), `{ key { get { _id localization } } }`, nil)
	list := keyData(t, out)["get"].([]any)
	var ids []string
	for _, e := range list {
		ids = append(ids, e.(map[string]any)["_id"].(string))
	}
	require.Equal(t, []string{"_id", "description", "images", "title"}, ids)
	require.Equal(t, map[string]any{}, list[0].(map[string]any)["localization"])

	out = res.Execute(context.Background(), `{ key { get(ids: ["title", "ghost"]) { _id schema } } }`, nil)
	list = keyData(t, out)["get"].([]any)
	require.Len(t, list, 1)
	require.JSONEq(t, validate.String().Required().MustMarshal(), list[0].(map[string]any)["schema"].(string))
}

func TestAdd(t *testing.T) {
	m, res := setup(t)

	out := res.Execute(admin, `{ key { add(key: "price", schema: "{\"type\":\"number\",\"meta\":{\"required\":true}}") } }`, nil)
	require.Equal(t, true, keyData(t, out)["add"])
	v, err := m.Compose(context.Background(), []string{"price"})
	require.NoError(t, err)
	_, err = v.Apply(map[string]any{"price": 2})
	require.NoError(t, err)
	_, err = v.Apply(map[string]any{})
	require.Error(t, err)

	out = res.Execute(admin, `{ key { add(key: "bad", schema: "{\"type\":\"tuple\"}") } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeBadUserInput, out.Errors[0].Extensions["code"])
	defs, err := m.Definitions(context.Background(), []string{"bad"})
	require.NoError(t, err)
	require.Empty(t, defs)

	user := authz.NewContext(context.Background(), &authz.Identity{Username: "u", Roles: []authz.Role{authz.User}})
	out = res.Execute(user, `{ key { add(key: "x", schema: "{\"type\":\"any\"}") } }`, nil)
	require.Len(t, out.Errors, 1)
	require.Equal(t, errs.CodeForbidden, out.Errors[0].Extensions["code"])
}

func TestLocalization(t *testing.T) {
	m, res := setup(t)

	out := res.Execute(admin, `{ key { setLocalization(key: "title", lang: "ko", value: "제목") } }`, nil)
	require.Equal(t, true, keyData(t, out)["setLocalization"])
	out = res.Execute(admin, `{ key { setLocalization(key: "title", lang: "en", value: "Title") } }`, nil)
	require.Equal(t, true, keyData(t, out)["setLocalization"])
	out = res.Execute(admin, `{ key { setLocalization(key: "ghost", lang: "en", value: "Ghost") } }`, nil)
	require.Equal(t, false, keyData(t, out)["setLocalization"])

	// Redefining a key keeps its labels.
	require.NoError(t, m.Set(context.Background(), Record{Key: "title", Schema: validate.String().MustMarshal(), Localization: map[string]string{"fr": "Titre"}}))

	out = res.Execute(context.Background(), `{ key { get(ids: ["title"]) { localization } } }`, nil)
	list := keyData(t, out)["get"].([]any)
	require.Equal(t, map[string]any{"ko": "제목", "en": "Title", "fr": "Titre"}, list[0].(map[string]any)["localization"])
}

func TestDescribe(t *testing.T) {
	_, res := setup(t)
	out := res.Execute(context.Background(), `{ key { describe(keys: ["title", "images", "ghost"]) } }`, nil)
	desc := keyData(t, out)["describe"].(map[string]any)
	require.Equal(t, "object", desc["type"])
	dict := desc["dict"].(map[string]any)
	require.Equal(t, "never", dict["ghost"].(map[string]any)["type"])
	require.Equal(t, "image", dict["images"].(map[string]any)["meta"].(map[string]any)["kind"])
	require.Equal(t, true, dict["title"].(map[string]any)["meta"].(map[string]any)["required"])

	// The described key set is the composed key set.
	var keys []string
	for k := range dict {
		keys = append(keys, k)
	}
	require.ElementsMatch(t, []string{"title", "images", "ghost"}, keys)
}

func TestDelete(t *testing.T) {
	m, res := setup(t)
	out := res.Execute(admin, `{ key { del(key: "images") } }`, nil)
	require.Equal(t, true, keyData(t, out)["del"])
	out = res.Execute(admin, `{ key { del(key: "images") } }`, nil)
	require.Equal(t, false, keyData(t, out)["del"])

	v, err := m.Compose(context.Background(), []string{"images"})
	require.NoError(t, err)
	_, err = v.Apply(map[string]any{"images": []any{"a.png"}})
	require.Error(t, err)
}
