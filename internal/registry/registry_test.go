package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestDeclareField_LastWriteWins(t *testing.T) {
	r := New()
	r.DeclareField("Item", "price", "Int")
	r.DeclareField("Item", "title", "String")
	r.DeclareField("Item", "price", "Float!", "Unit price")

	doc, err := r.Document()
	require.NoError(t, err)

	want := "\ntype Item {\n" +
		"  \"\"\"\n  Unit price\n  \"\"\"\n" +
		"  price: Float!\n" +
		"  title: String\n" +
		"}\n"
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentOrdering(t *testing.T) {
	r := New()
	r.DeclareFields("Query",
		Field{Name: "hits", Type: "[Hit]"},
		Field{Name: "ping", Type: "String"},
	)
	r.DescribeType("Query", "Root")
	r.DeclareUnion("Hit", "Item", "Template")
	r.DeclareUnion("Hit", "Template", "User")
	r.DeclareBase("scalar JSON")
	r.DescribeType("Empty", "never gets fields")

	doc, err := r.Document("enum Role { GUEST USER ADMIN }")
	require.NoError(t, err)

	want := "union Hit = Item | Template | User\n" +
		"enum Role { GUEST USER ADMIN }\n" +
		"scalar JSON\n" +
		"\n\"\"\"\nRoot\n\"\"\"\ntype Query {\n  hits: [Hit]\n  ping: String\n}\n"
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestSignatureCollision(t *testing.T) {
	r := New()
	r.DeclareField("ItemContext", "get(id: String!)", "Item")
	r.DeclareField("ItemContext", "get(id:String!)", "Item!")
	require.NoError(t, r.Err(), "whitespace differences are the same signature")

	r.DeclareResolver("ItemContext", "get(ids: [String!])", "[Item]", func(context.Context, Input) (any, error) {
		return nil, nil
	})

	var ce *errs.CompositionError
	require.ErrorAs(t, r.Err(), &ce)
	require.Len(t, ce.Errors, 1)
	require.Contains(t, ce.Errors[0].Error(), `ItemContext.get: conflicting declarations`)

	_, err := r.Document()
	require.Error(t, err)
	_, err = r.Freeze()
	require.Error(t, err)
}

func TestConcurrentRegistration(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typeName := fmt.Sprintf("Module%d", i)
			r.DeclareField(typeName, "name", "String")
			r.DeclareResolver("Query", fmt.Sprintf("m%d", i), typeName, func(context.Context, Input) (any, error) {
				return map[string]any{"name": typeName}, nil
			})
		}(i)
	}
	wg.Wait()

	tbl, err := r.Freeze()
	require.NoError(t, err)
	names := r.TypeNames()
	require.Len(t, names, 9)
	for i := 0; i < 8; i++ {
		require.True(t, tbl.Has("Query", fmt.Sprintf("m%d", i)))
		require.Contains(t, names, fmt.Sprintf("Module%d", i))
	}
}

func TestFreezeRejectsLateRegistration(t *testing.T) {
	r := New()
	r.DeclareField("Query", "ping", "String")
	_, err := r.Freeze()
	require.NoError(t, err)

	r.DeclareField("Query", "pong", "String")
	require.Error(t, r.Err())
}

func TestCapabilityInjection(t *testing.T) {
	r := New()
	r.DeclareResolver("Query", "item", "ItemContext", func(context.Context, Input) (any, error) {
		return map[string]any{}, nil
	})
	r.DeclareResolver("ItemContext", "get(id: String!)", "ItemResponse", func(_ context.Context, in Input) (any, error) {
		return map[string]any{"id": in.Args["id"]}, nil
	})
	r.DeclareResolver("Query", "names", "[String!]!", func(context.Context, Input) (any, error) {
		return []string{"a", "b"}, nil
	})
	r.DeclareResolver("Query", "contexts", "[ItemContext]", func(context.Context, Input) (any, error) {
		return []map[string]any{{}, nil, {}}, nil
	})
	tbl, err := r.Freeze()
	require.NoError(t, err)
	ctx := context.Background()

	item, _ := tbl.Lookup("Query", "item")
	v, err := item(ctx, Input{})
	require.NoError(t, err)
	c, ok := v.(*Capability)
	require.True(t, ok)
	require.Equal(t, "ItemContext", c.TypeName)

	get, ok := c.Resolver("get")
	require.True(t, ok)
	res, err := get(ctx, Input{Args: map[string]any{"id": "x"}, Parent: c.Value})
	require.NoError(t, err)
	// ItemResponse has no resolvers, so the value stays plain
	require.Equal(t, map[string]any{"id": "x"}, res)

	names, _ := tbl.Lookup("Query", "names")
	v, err = names(ctx, Input{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, v)

	contexts, _ := tbl.Lookup("Query", "contexts")
	v, err = contexts(ctx, Input{})
	require.NoError(t, err)
	list := v.([]any)
	require.Len(t, list, 3)
	require.IsType(t, &Capability{}, list[0])
	require.Nil(t, list[1])
	require.IsType(t, &Capability{}, list[2])
}

func TestChildTypeAndBaseName(t *testing.T) {
	require.Equal(t, "Role", ChildType("[Role!]!"))
	require.Equal(t, "Boolean", ChildType("Boolean! @auth(requires: USER)"))
	require.Equal(t, "get", BaseName("get(id: String!)"))
	require.Equal(t, "count", BaseName(" count "))
}

func TestFieldValue(t *testing.T) {
	type user struct {
		Username string   `json:"username"`
		Roles    []string `json:"roles,omitempty"`
		Password string   `json:"-"`
		Count    int
	}
	u := &user{Username: "ada", Roles: []string{"ADMIN"}, Password: "x", Count: 2}

	require.Equal(t, "ada", FieldValue(u, "username"))
	require.Equal(t, []string{"ADMIN"}, FieldValue(u, "roles"))
	require.Equal(t, 2, FieldValue(u, "count"))
	require.Nil(t, FieldValue(u, "password"))
	require.Nil(t, FieldValue((*user)(nil), "username"))

	m := map[string]any{"_id": "1"}
	require.Equal(t, "1", FieldValue(&Capability{Value: m}, "_id"))
	require.Nil(t, FieldValue(m, "missing"))
	require.Nil(t, FieldValue("scalar", "x"))
}
