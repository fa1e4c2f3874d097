// Package introspection answers the __schema and __type meta fields and the
// fields of the introspection types by decorating another runtime.
//
// The introspection types themselves come from the gqlparser prelude, so the
// executable schema already contains them; only their values are produced
// here, straight from the schema model.
package introspection

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	executor "github.com/hanpama/graphcms/internal/executor"
	schema "github.com/hanpama/graphcms/internal/schema"
)

// Wrap returns a Runtime that resolves introspection fields and delegates
// everything else to base.
func Wrap(base executor.Runtime, sch *schema.Schema) executor.Runtime {
	return &runtime{base: base, schema: sch}
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if v, ok := r.meta(objectType, field, source, args); ok {
		return v, nil
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) meta(objectType, field string, source any, args map[string]any) (any, bool) {
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, args)
	case *schema.TypeRef:
		if src.Kind == schema.TypeRefKindNamed {
			t, ok := r.schema.Types[src.Named]
			if !ok {
				return nil, true
			}
			return r.typeField(t, field, args)
		}
		return wrapperField(src, field)
	case *schema.Field:
		return fieldField(src, field, args)
	case *schema.InputValue:
		return r.inputValueField(src, field)
	case *schema.EnumValue:
		return enumValueField(src, field)
	case *schema.Directive:
		return directiveField(src, field, args)
	}

	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, true
		case "__type":
			name, _ := args["name"].(string)
			if t, ok := r.schema.Types[name]; ok {
				return t, true
			}
			return nil, true
		}
	}
	return nil, false
}

func (r *runtime) schemaField(s *schema.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return nilIfEmpty(s.Description), true
	case "types":
		types := make([]*schema.Type, 0, len(s.Types))
		for _, t := range s.Types {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
		return types, true
	case "queryType":
		return r.namedType(s.QueryType), true
	case "mutationType":
		return r.namedType(s.MutationType), true
	case "subscriptionType":
		return r.namedType(s.SubscriptionType), true
	case "directives":
		dirs := make([]*schema.Directive, 0, len(s.Directives))
		for _, d := range s.Directives {
			dirs = append(dirs, d)
		}
		sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
		return dirs, true
	}
	return nil, false
}

func (r *runtime) namedType(name string) any {
	if t, ok := r.schema.Types[name]; ok && name != "" {
		return t
	}
	return nil
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return nilIfEmpty(t.Description), true
	case "specifiedByURL", "specifiedByUrl":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		withDeprecated, _ := args["includeDeprecated"].(bool)
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if strings.HasPrefix(f.Name, "__") || (f.IsDeprecated && !withDeprecated) {
				continue
			}
			out = append(out, f)
		}
		return out, true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return r.types(t.Interfaces), true
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, true
		}
		return r.types(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		withDeprecated, _ := args["includeDeprecated"].(bool)
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if ev.IsDeprecated && !withDeprecated {
				continue
			}
			out = append(out, ev)
		}
		return out, true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		withDeprecated, _ := args["includeDeprecated"].(bool)
		return filterInputValues(t.InputFields, withDeprecated), true
	case "ofType":
		return nil, true
	case "isOneOf":
		return false, true
	}
	return nil, false
}

func (r *runtime) types(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t, ok := r.schema.Types[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

func wrapperField(t *schema.TypeRef, field string) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "ofType":
		return t.OfType, true
	case "name", "description", "specifiedByURL", "specifiedByUrl", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, true
	}
	return nil, false
}

func fieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return nilIfEmpty(f.Description), true
	case "args":
		withDeprecated, _ := args["includeDeprecated"].(bool)
		return filterInputValues(f.Arguments, withDeprecated), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return nilIfEmpty(f.DeprecationReason), true
	}
	return nil, false
}

func (r *runtime) inputValueField(iv *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return iv.Name, true
	case "description":
		return nilIfEmpty(iv.Description), true
	case "type":
		return iv.Type, true
	case "defaultValue":
		if iv.DefaultValue == nil {
			return nil, true
		}
		return r.literal(iv.DefaultValue, iv.Type), true
	case "isDeprecated":
		return iv.IsDeprecated, true
	case "deprecationReason":
		return nilIfEmpty(iv.DeprecationReason), true
	}
	return nil, false
}

func enumValueField(ev *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return nilIfEmpty(ev.Description), true
	case "isDeprecated":
		return ev.IsDeprecated, true
	case "deprecationReason":
		return nilIfEmpty(ev.DeprecationReason), true
	}
	return nil, false
}

func directiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return nilIfEmpty(d.Description), true
	case "locations":
		return d.Locations, true
	case "args":
		withDeprecated, _ := args["includeDeprecated"].(bool)
		return filterInputValues(d.Arguments, withDeprecated), true
	case "isRepeatable":
		return d.IsRepeatable, true
	}
	return nil, false
}

func filterInputValues(list []*schema.InputValue, withDeprecated bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, iv := range list {
		if iv.IsDeprecated && !withDeprecated {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// literal renders a default value as a GraphQL literal.
func (r *runtime) literal(v any, t *schema.TypeRef) string {
	for t != nil && t.Kind == schema.TypeRefKindNonNull {
		t = t.OfType
	}
	switch val := v.(type) {
	case string:
		if t != nil {
			if named, ok := r.schema.Types[t.GetNamedType()]; ok && named.Kind == schema.TypeKindEnum {
				return val
			}
		}
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		var inner *schema.TypeRef
		if t != nil && t.Kind == schema.TypeRefKindList {
			inner = t.OfType
		}
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = r.literal(item, inner)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + r.literal(val[k], nil)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
