package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/language"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/schema"
)

type shelf struct {
	ID    string `json:"_id"`
	Title string
}

func compose(t *testing.T, reg *registry.SchemaRegistry) (*registry.Table, *schema.Schema) {
	t.Helper()
	doc, err := reg.Document(ScalarSDL, "enum Color { RED GREEN }")
	require.NoError(t, err)
	table, err := reg.Freeze()
	require.NoError(t, err)
	src, err := language.LoadSchema(&language.Source{Name: "dispatch.graphql", Input: doc})
	require.NoError(t, err)
	sch, err := schema.BuildFromAST(src, table.Has)
	require.NoError(t, err)
	return table, sch
}

func run(t *testing.T, rt executor.Runtime, sch *schema.Schema, q string) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(q)
	require.NoError(t, err)
	return executor.NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
}

func TestNestedCapabilityDispatch(t *testing.T) {
	reg := registry.New()
	var parents []any
	reg.DeclareResolver("Query", "library", "LibraryContext", func(context.Context, registry.Input) (any, error) {
		return map[string]any{"owner": "ann"}, nil
	})
	reg.DeclareResolver("LibraryContext", "shelves(limit: Int = 2)", "[Shelf!]!", func(_ context.Context, in registry.Input) (any, error) {
		parents = append(parents, in.Parent)
		all := []shelf{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}}
		return all[:in.Args["limit"].(int)], nil
	})
	reg.DeclareFields("Shelf",
		registry.Field{Name: "_id", Type: "String!"},
		registry.Field{Name: "title", Type: "String!"},
	)
	reg.DeclareResolver("Shelf", "label", "String!", func(_ context.Context, in registry.Input) (any, error) {
		s := in.Parent.(shelf)
		return s.ID + ":" + s.Title, nil
	})
	table, sch := compose(t, reg)

	res := run(t, New(table, sch), sch, `{ library { shelves { _id title label } } }`)
	require.Empty(t, res.Errors)
	want := map[string]any{"library": map[string]any{"shelves": []any{
		map[string]any{"_id": "a", "title": "A", "label": "a:A"},
		map[string]any{"_id": "b", "title": "B", "label": "b:B"},
	}}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []any{map[string]any{"owner": "ann"}}, parents)
}

func TestBatchConcurrencyAndErrors(t *testing.T) {
	reg := registry.New()
	var inflight, peak atomic.Int32
	slow := func(context.Context, registry.Input) (any, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return "ok", nil
	}
	reg.DeclareResolver("Query", "a", "String", slow)
	reg.DeclareResolver("Query", "b", "String", slow)
	reg.DeclareResolver("Query", "c", "String", slow)
	reg.DeclareResolver("Query", "broken", "String", func(context.Context, registry.Input) (any, error) {
		return nil, errors.New("boom")
	})
	reg.DeclareResolver("Query", "panics", "String", func(context.Context, registry.Input) (any, error) {
		panic("bad resolver")
	})
	table, sch := compose(t, reg)

	res := run(t, New(table, sch, WithConcurrency(2)), sch, `{ a b c broken panics }`)
	data := res.Data.(map[string]any)
	require.Equal(t, "ok", data["a"])
	require.Equal(t, "ok", data["c"])
	require.Nil(t, data["broken"])
	require.Nil(t, data["panics"])
	require.Len(t, res.Errors, 2)
	require.Equal(t, "boom", res.Errors[0].Message)
	require.Equal(t, "internal error resolving Query.panics", res.Errors[1].Message)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

type kitten struct{ Name string }

func (kitten) GraphQLType() string { return "Cat" }

func TestResolveType(t *testing.T) {
	reg := registry.New()
	reg.DeclareUnion("Pet", "Cat", "Dog")
	reg.DeclareFields("Cat", registry.Field{Name: "name", Type: "String"})
	reg.DeclareFields("Dog", registry.Field{Name: "name", Type: "String"})
	reg.DeclareResolver("Query", "pets", "[Pet]", func(context.Context, registry.Input) (any, error) {
		return []any{kitten{Name: "tom"}, map[string]any{"__typename": "Dog", "name": "rex"}}, nil
	})
	table, sch := compose(t, reg)

	res := run(t, New(table, sch), sch, `{ pets { __typename ... on Cat { name } ... on Dog { name } } }`)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"pets": []any{
		map[string]any{"__typename": "Cat", "name": "tom"},
		map[string]any{"__typename": "Dog", "name": "rex"},
	}}, res.Data)

	_, err := New(table, sch).ResolveType(context.Background(), "Pet", 42)
	require.Error(t, err)
}

type named string

func (n named) String() string { return string(n) }

func TestSerializeLeafValue(t *testing.T) {
	reg := registry.New()
	reg.DeclareField("Query", "x", "Int")
	_, sch := compose(t, reg)
	rt := New(nil, sch)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		typ  string
		in   any
		want any
	}{
		{"Int", 3, int64(3)},
		{"Int", float64(4), int64(4)},
		{"Float", 2, float64(2)},
		{"String", named("n"), "n"},
		{"String", 12, "12"},
		{"ID", 7, "7"},
		{"ID", "abc", "abc"},
		{"Boolean", true, true},
		{"DateTime", at, "2024-05-01T12:00:00Z"},
		{"JSON", []string{"a"}, []any{"a"}},
		{"JSON", map[string]any{"k": 1}, map[string]any{"k": 1}},
		{"Color", "RED", "RED"},
		{"Color", named("GREEN"), "GREEN"},
		{"Int", nil, nil},
	}
	for _, c := range cases {
		got, err := rt.SerializeLeafValue(ctx, c.typ, c.in)
		require.NoError(t, err, "%s %v", c.typ, c.in)
		require.Equal(t, c.want, got, "%s %v", c.typ, c.in)
	}

	for _, c := range []struct {
		typ string
		in  any
	}{
		{"Int", 1.5},
		{"Int", int64(1) << 40},
		{"Boolean", "yes"},
		{"Color", "BLUE"},
		{"DateTime", "yesterday"},
	} {
		_, err := rt.SerializeLeafValue(ctx, c.typ, c.in)
		require.Error(t, err, "%s %v", c.typ, c.in)
	}
}
