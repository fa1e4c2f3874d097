package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/graphcms/internal/language"
	schema "github.com/hanpama/graphcms/internal/schema"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	require.NoError(t, err)
	return d
}

// mustSchema compiles sdl; fields listed in async as "Type.field" are async.
func mustSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	src, err := gqlparser.LoadSchema(&ast.Source{Name: "test.graphql", Input: sdl})
	require.NoError(t, err)
	set := make(map[string]bool, len(async))
	for _, a := range async {
		set[a] = true
	}
	s, err := schema.BuildFromAST(src, func(typeName, fieldName string) bool {
		return set[typeName+"."+fieldName]
	})
	require.NoError(t, err)
	return s
}
