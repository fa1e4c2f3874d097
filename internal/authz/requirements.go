package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/graphcms/internal/schema"
)

// Directive is the name of the authorization directive.
const Directive = "auth"

// Requirements is the table produced by Collect: type name -> field name ->
// minimum role. It is read-only once built.
type Requirements struct {
	fields map[string]map[string]Role
}

// Collect walks every object type of s once. A directive on the type sets the
// default for its fields; a directive on a field overrides it. A directive
// without an explicit role requires Admin.
func Collect(s *schema.Schema) (*Requirements, error) {
	reqs := &Requirements{fields: make(map[string]map[string]Role)}
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := s.Types[name]
		if t.Kind != schema.TypeKindObject || t.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		var (
			def    Role
			hasDef bool
		)
		if d := t.Directive(Directive); d != nil {
			r, err := requiredRole(d)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", name, err)
			}
			def, hasDef = r, true
		}
		for _, f := range t.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			req, ok := def, hasDef
			if d := f.Directive(Directive); d != nil {
				r, err := requiredRole(d)
				if err != nil {
					return nil, fmt.Errorf("field %s.%s: %w", name, f.Name, err)
				}
				req, ok = r, true
			}
			if !ok {
				continue
			}
			if reqs.fields[name] == nil {
				reqs.fields[name] = make(map[string]Role)
			}
			reqs.fields[name][f.Name] = req
		}
	}
	return reqs, nil
}

func requiredRole(d *schema.AppliedDirective) (Role, error) {
	v, ok := d.Arguments["requires"]
	if !ok || v == nil {
		return Admin, nil
	}
	s, ok := v.(string)
	if !ok {
		return Admin, fmt.Errorf("@%s(requires:) must be a Role, got %T", Directive, v)
	}
	return ParseRole(s)
}

// Required returns the minimum role of typeName.field.
func (r *Requirements) Required(typeName, field string) (Role, bool) {
	if r == nil {
		return Guest, false
	}
	role, ok := r.fields[typeName][field]
	return role, ok
}

// Len is the number of guarded fields.
func (r *Requirements) Len() int {
	n := 0
	for _, fs := range r.fields {
		n += len(fs)
	}
	return n
}
