package schema

import (
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// AsyncFunc reports whether a field is backed by a registered resolver and must
// therefore be batched by the executor.
type AsyncFunc func(typeName, fieldName string) bool

// BuildFromAST converts a compiled gqlparser schema into the executable model.
// Every definition is carried over, including the introspection types of the
// prelude, so meta fields can be executed like any other field.
func BuildFromAST(src *ast.Schema, async AsyncFunc) (*Schema, error) {
	if src.Query == nil {
		return nil, fmt.Errorf("schema has no query type")
	}
	if async == nil {
		async = func(string, string) bool { return false }
	}
	s := NewSchema(src.Description)
	s.QueryType = src.Query.Name
	if src.Mutation != nil {
		s.MutationType = src.Mutation.Name
	}
	if src.Subscription != nil {
		s.SubscriptionType = src.Subscription.Name
	}

	names := make([]string, 0, len(src.Types))
	for name := range src.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t, err := buildType(src, src.Types[name], async)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, d := range src.Directives {
		dir, err := buildDirective(d)
		if err != nil {
			return nil, err
		}
		s.AddDirective(dir)
	}
	return s, nil
}

func buildType(src *ast.Schema, def *ast.Definition, async AsyncFunc) (*Type, error) {
	t := NewType(def.Name, kindOf(def.Kind), def.Description)
	t.BuiltIn = def.BuiltIn
	t.Interfaces = append(t.Interfaces, def.Interfaces...)

	dirs, err := buildApplied(def.Directives)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", def.Name, err)
	}
	t.Directives = dirs
	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			url := arg.Value.Raw
			t.SpecifiedByURL = &url
		}
	}

	switch def.Kind {
	case ast.Object, ast.Interface:
		for _, fd := range def.Fields {
			f, err := buildField(def.Name, fd, async)
			if err != nil {
				return nil, err
			}
			t.AddField(f)
		}
		if def.Kind == ast.Interface {
			for _, impl := range src.PossibleTypes[def.Name] {
				t.PossibleTypes = append(t.PossibleTypes, impl.Name)
			}
		}
	case ast.Union:
		t.PossibleTypes = append(t.PossibleTypes, def.Types...)
	case ast.Enum:
		for _, ev := range def.EnumValues {
			reason, deprecated := deprecation(ev.Directives)
			t.EnumValues = append(t.EnumValues, &EnumValue{
				Name:              ev.Name,
				Description:       ev.Description,
				IsDeprecated:      deprecated,
				DeprecationReason: reason,
			})
		}
	case ast.InputObject:
		for _, fd := range def.Fields {
			iv, err := buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives)
			if err != nil {
				return nil, fmt.Errorf("input %s.%s: %w", def.Name, fd.Name, err)
			}
			t.InputFields = append(t.InputFields, iv)
		}
	}
	return t, nil
}

func buildField(typeName string, fd *ast.FieldDefinition, async AsyncFunc) (*Field, error) {
	dirs, err := buildApplied(fd.Directives)
	if err != nil {
		return nil, fmt.Errorf("field %s.%s: %w", typeName, fd.Name, err)
	}
	reason, deprecated := deprecation(fd.Directives)
	f := &Field{
		Name:              fd.Name,
		Description:       fd.Description,
		Type:              buildTypeRef(fd.Type),
		Directives:        dirs,
		Async:             async(typeName, fd.Name),
		IsDeprecated:      deprecated,
		DeprecationReason: reason,
	}
	for _, ad := range fd.Arguments {
		iv, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("argument %s.%s(%s): %w", typeName, fd.Name, ad.Name, err)
		}
		f.Arguments = append(f.Arguments, iv)
	}
	return f, nil
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, dirs ast.DirectiveList) (*InputValue, error) {
	iv := &InputValue{Name: name, Description: description, Type: buildTypeRef(typ)}
	if def != nil {
		v, err := def.Value(nil)
		if err != nil {
			return nil, err
		}
		iv.DefaultValue = v
	}
	iv.DeprecationReason, iv.IsDeprecated = deprecation(dirs)
	return iv, nil
}

func buildDirective(d *ast.DirectiveDefinition) (*Directive, error) {
	dir := &Directive{Name: d.Name, Description: d.Description, IsRepeatable: d.IsRepeatable}
	for _, loc := range d.Locations {
		dir.Locations = append(dir.Locations, string(loc))
	}
	for _, ad := range d.Arguments {
		iv, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("directive @%s(%s): %w", d.Name, ad.Name, err)
		}
		dir.Arguments = append(dir.Arguments, iv)
	}
	return dir, nil
}

// buildApplied resolves directive uses. Arguments omitted at the use site are
// filled from the directive definition's defaults.
func buildApplied(list ast.DirectiveList) ([]*AppliedDirective, error) {
	var out []*AppliedDirective
	for _, d := range list {
		ad := &AppliedDirective{Name: d.Name, Arguments: map[string]any{}}
		if d.Definition != nil {
			for _, def := range d.Definition.Arguments {
				if def.DefaultValue == nil {
					continue
				}
				v, err := def.DefaultValue.Value(nil)
				if err != nil {
					return nil, err
				}
				ad.Arguments[def.Name] = v
			}
		}
		for _, arg := range d.Arguments {
			v, err := arg.Value.Value(nil)
			if err != nil {
				return nil, fmt.Errorf("@%s(%s): %w", d.Name, arg.Name, err)
			}
			ad.Arguments[arg.Name] = v
		}
		out = append(out, ad)
	}
	return out, nil
}

func deprecation(list ast.DirectiveList) (string, bool) {
	d := list.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "No longer supported", true
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func kindOf(k ast.DefinitionKind) TypeKind {
	switch k {
	case ast.Object:
		return TypeKindObject
	case ast.Interface:
		return TypeKindInterface
	case ast.Union:
		return TypeKindUnion
	case ast.Enum:
		return TypeKindEnum
	case ast.InputObject:
		return TypeKindInputObject
	default:
		return TypeKindScalar
	}
}
