package introspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	executor "github.com/hanpama/graphcms/internal/executor"
	language "github.com/hanpama/graphcms/internal/language"
	schema "github.com/hanpama/graphcms/internal/schema"
)

const sdl = `
enum Role { GUEST USER ADMIN }
type Item { _id: String!, tags: [String!]!, old: String @deprecated }
type Query {
  "Fetch one item"
  item(id: String!, role: Role = USER, size: Int = 50): Item
}
`

func execute(t *testing.T, query string) map[string]any {
	t.Helper()
	src, err := gqlparser.LoadSchema(&ast.Source{Input: sdl})
	require.NoError(t, err)
	sch, err := schema.BuildFromAST(src, nil)
	require.NoError(t, err)

	exec := executor.NewExecutor(Wrap(executor.NewMockRuntime(nil), sch), sch)
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

func TestSchemaRoots(t *testing.T) {
	data := execute(t, `{ __schema { queryType { name } mutationType { name } } }`)
	require.Equal(t, map[string]any{
		"queryType":    map[string]any{"name": "Query"},
		"mutationType": nil,
	}, data["__schema"])
}

func TestTypeFields(t *testing.T) {
	data := execute(t, `{
		__type(name: "Item") {
			kind
			name
			fields { name isDeprecated type { kind name ofType { kind name ofType { kind name } } } }
		}
	}`)
	require.Equal(t, map[string]any{
		"kind": "OBJECT",
		"name": "Item",
		"fields": []any{
			map[string]any{"name": "_id", "isDeprecated": false, "type": map[string]any{
				"kind": "NON_NULL", "name": nil,
				"ofType": map[string]any{"kind": "SCALAR", "name": "String", "ofType": nil},
			}},
			map[string]any{"name": "tags", "isDeprecated": false, "type": map[string]any{
				"kind": "NON_NULL", "name": nil,
				"ofType": map[string]any{"kind": "LIST", "name": nil, "ofType": map[string]any{"kind": "NON_NULL", "name": nil}},
			}},
		},
	}, data["__type"])
}

func TestArgumentDefaults(t *testing.T) {
	data := execute(t, `{
		__type(name: "Query") { fields { name description args { name defaultValue } } }
	}`)
	fields := data["__type"].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 1, "meta fields are not listed")
	require.Equal(t, map[string]any{
		"name":        "item",
		"description": "Fetch one item",
		"args": []any{
			map[string]any{"name": "id", "defaultValue": nil},
			map[string]any{"name": "role", "defaultValue": "USER"},
			map[string]any{"name": "size", "defaultValue": "50"},
		},
	}, fields[0])
}

func TestUnknownTypeIsNull(t *testing.T) {
	data := execute(t, `{ __type(name: "Ghost") { name } }`)
	require.Nil(t, data["__type"])
}

func TestTypename(t *testing.T) {
	data := execute(t, `{ __typename }`)
	require.Equal(t, "Query", data["__typename"])
}
