// Package registry collects the type system fragments that feature modules
// contribute at startup and freezes them into an immutable dispatch table.
//
// Field keys may carry an argument list, e.g. "get(id: String!)". The part
// before the parenthesis is the base name the executor dispatches on. A type
// may not declare two different signatures for the same base name; doing so
// is recorded and reported as a composition error.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hanpama/graphcms/internal/errs"
)

// Resolver computes the value of one field.
type Resolver func(ctx context.Context, in Input) (any, error)

// Input is what a resolver receives. Parent is the unwrapped value the
// enclosing field resolved to (nil for root fields).
type Input struct {
	Type   string
	Field  string
	Args   map[string]any
	Parent any
}

// Field is one declaration for DeclareFields.
type Field struct {
	Name        string
	Type        string
	Description string
}

type fieldDecl struct {
	key         string
	typeExpr    string
	description string
}

type typeDecl struct {
	description string
	fields      []string // base names in first-declaration order
	byBase      map[string]*fieldDecl
}

// SchemaRegistry is written by feature modules during startup. It is safe for
// concurrent registration.
type SchemaRegistry struct {
	mu         sync.Mutex
	types      map[string]*typeDecl
	typeOrder  []string
	unions     map[string][]string
	unionOrder []string
	resolvers  map[string]map[string]Resolver
	base       []string
	problems   []error
	frozen     bool
}

func New() *SchemaRegistry {
	return &SchemaRegistry{
		types:     make(map[string]*typeDecl),
		unions:    make(map[string][]string),
		resolvers: make(map[string]map[string]Resolver),
	}
}

// DeclareField declares typeName.fieldName with the given SDL type expression.
// The expression may carry directives, e.g. "Boolean! @auth(requires: USER)".
// Declaring the same key again replaces the previous declaration.
func (r *SchemaRegistry) DeclareField(typeName, fieldName, typeExpr string, description ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declare(typeName, fieldName, typeExpr, strings.Join(description, "\n"))
}

// DeclareFields declares several fields of one type at once.
func (r *SchemaRegistry) DeclareFields(typeName string, fields ...Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range fields {
		r.declare(typeName, f.Name, f.Type, f.Description)
	}
}

// DescribeType sets the block description of a type.
func (r *SchemaRegistry) DescribeType(typeName, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.writable() {
		return
	}
	r.typeDecl(typeName).description = description
}

// DeclareUnion declares typeName as the union of members. Members declared by
// several calls accumulate; duplicates are ignored.
func (r *SchemaRegistry) DeclareUnion(typeName string, members ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.writable() {
		return
	}
	existing, ok := r.unions[typeName]
	if !ok {
		r.unionOrder = append(r.unionOrder, typeName)
	}
	for _, m := range members {
		if !contains(existing, m) {
			existing = append(existing, m)
		}
	}
	r.unions[typeName] = existing
}

// DeclareResolver declares the field and binds fn to it.
func (r *SchemaRegistry) DeclareResolver(typeName, fieldName, typeExpr string, fn Resolver, description ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.declare(typeName, fieldName, typeExpr, strings.Join(description, "\n")) {
		return
	}
	m, ok := r.resolvers[typeName]
	if !ok {
		m = make(map[string]Resolver)
		r.resolvers[typeName] = m
	}
	m[BaseName(fieldName)] = fn
}

// DeclareBase adds SDL definitions (scalars, enums, inputs) that are not
// expressed as field declarations.
func (r *SchemaRegistry) DeclareBase(sdl string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.writable() {
		return
	}
	r.base = append(r.base, sdl)
}

// Err reports the problems recorded during registration.
func (r *SchemaRegistry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err()
}

func (r *SchemaRegistry) err() error {
	if len(r.problems) == 0 {
		return nil
	}
	return &errs.CompositionError{Errors: append([]error(nil), r.problems...)}
}

func (r *SchemaRegistry) declare(typeName, key, typeExpr, description string) bool {
	if !r.writable() {
		return false
	}
	base := BaseName(key)
	if base == "" {
		r.problems = append(r.problems, fmt.Errorf("%s: empty field name in %q", typeName, key))
		return false
	}
	t := r.typeDecl(typeName)
	if prev, ok := t.byBase[base]; ok {
		if signature(prev.key) != signature(key) {
			r.problems = append(r.problems, fmt.Errorf(
				"%s.%s: conflicting declarations %q and %q", typeName, base, prev.key, key))
			return false
		}
		prev.key, prev.typeExpr, prev.description = key, typeExpr, description
		return true
	}
	t.byBase[base] = &fieldDecl{key: key, typeExpr: typeExpr, description: description}
	t.fields = append(t.fields, base)
	return true
}

func (r *SchemaRegistry) typeDecl(name string) *typeDecl {
	t, ok := r.types[name]
	if !ok {
		t = &typeDecl{byBase: make(map[string]*fieldDecl)}
		r.types[name] = t
		r.typeOrder = append(r.typeOrder, name)
	}
	return t
}

func (r *SchemaRegistry) writable() bool {
	if r.frozen {
		r.problems = append(r.problems, fmt.Errorf("registry is frozen"))
		return false
	}
	return true
}

// Document renders the schema document: unions first, then the fixed
// definitions in prelude, then base definitions, then one block per type
// that has at least one field.
func (r *SchemaRegistry) Document(prelude ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, name := range r.unionOrder {
		fmt.Fprintf(&b, "union %s = %s\n", name, strings.Join(r.unions[name], " | "))
	}
	for _, p := range prelude {
		b.WriteString(strings.TrimSpace(p))
		b.WriteString("\n")
	}
	for _, sdl := range r.base {
		b.WriteString(strings.TrimSpace(sdl))
		b.WriteString("\n")
	}
	for _, name := range r.typeOrder {
		t := r.types[name]
		if len(t.fields) == 0 {
			continue
		}
		b.WriteString("\n")
		writeDescription(&b, "", t.description)
		fmt.Fprintf(&b, "type %s {\n", name)
		for _, base := range t.fields {
			f := t.byBase[base]
			writeDescription(&b, "  ", f.description)
			fmt.Fprintf(&b, "  %s: %s\n", f.key, f.typeExpr)
		}
		b.WriteString("}\n")
	}
	return b.String(), nil
}

// TypeNames returns the declared object type names, sorted.
func (r *SchemaRegistry) TypeNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := append([]string(nil), r.typeOrder...)
	sort.Strings(names)
	return names
}

func writeDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	desc = strings.ReplaceAll(desc, `"""`, `\"""`)
	fmt.Fprintf(b, "%s\"\"\"\n", indent)
	for _, line := range strings.Split(desc, "\n") {
		fmt.Fprintf(b, "%s%s\n", indent, line)
	}
	fmt.Fprintf(b, "%s\"\"\"\n", indent)
}

// BaseName strips the argument list from a field key.
func BaseName(key string) string {
	if i := strings.IndexByte(key, '('); i >= 0 {
		key = key[:i]
	}
	return strings.TrimSpace(key)
}

// ChildType extracts the named type of a type expression, dropping list and
// non-null markers and any trailing directives.
func ChildType(typeExpr string) string {
	if i := strings.IndexByte(typeExpr, '@'); i >= 0 {
		typeExpr = typeExpr[:i]
	}
	return strings.Trim(typeExpr, "[]! \t\n")
}

func signature(key string) string {
	return strings.Join(strings.Fields(key), "")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
