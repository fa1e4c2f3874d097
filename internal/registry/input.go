package registry

import (
	"context"
	"fmt"

	"github.com/hanpama/graphcms/internal/errs"
)

// String returns a string argument, or "" when absent.
func (in Input) String(name string) string {
	s, _ := in.Args[name].(string)
	return s
}

// Has reports whether an argument was given a non-null value.
func (in Input) Has(name string) bool { return in.Args[name] != nil }

// Int returns an integer argument, or def when absent.
func (in Input) Int(name string, def int) int {
	switch n := in.Args[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Strings returns a list of strings argument. Null elements are skipped.
func (in Input) Strings(name string) []string {
	list, _ := in.Args[name].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Object returns a JSON object argument. Anything else is a validation error.
func (in Input) Object(name string) (map[string]any, error) {
	v := in.Args[name]
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.Invalid(name, "expected a JSON object but got %s", jsonKind(v))
	}
	return m, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Namespace resolves a field whose type only groups other resolvers, such as
// Query.item returning ItemContext.
func Namespace(context.Context, Input) (any, error) { return map[string]any{}, nil }
