package registry

import (
	"context"
	"reflect"
)

// Table is the frozen dispatch table: type name -> base field name -> handler.
// It is never mutated after Freeze returns.
type Table struct {
	resolvers map[string]map[string]Resolver
}

// Freeze stops registration and compiles the resolver maps. Every handler is
// wrapped so that composite results carry the resolvers of the field's child
// type as a Capability.
func (r *SchemaRegistry) Freeze() (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err(); err != nil {
		return nil, err
	}
	r.frozen = true

	t := &Table{resolvers: make(map[string]map[string]Resolver, len(r.resolvers))}
	for typeName, fields := range r.resolvers {
		m := make(map[string]Resolver, len(fields))
		for base, fn := range fields {
			child := ChildType(r.types[typeName].byBase[base].typeExpr)
			m[base] = t.wrap(child, fn)
		}
		t.resolvers[typeName] = m
	}
	return t, nil
}

// Lookup returns the handler bound to typeName.field.
func (t *Table) Lookup(typeName, field string) (Resolver, bool) {
	fn, ok := t.resolvers[typeName][field]
	return fn, ok
}

// Has reports whether typeName.field is resolver-backed.
func (t *Table) Has(typeName, field string) bool {
	_, ok := t.resolvers[typeName][field]
	return ok
}

func (t *Table) wrap(child string, fn Resolver) Resolver {
	return func(ctx context.Context, in Input) (any, error) {
		v, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		if isNil(reflect.ValueOf(v)) {
			return nil, nil
		}
		fields := t.resolvers[child]
		if len(fields) == 0 {
			return v, nil
		}
		return attach(child, fields, v), nil
	}
}

// Capability is a resolved value decorated with the resolvers of its GraphQL
// type, so nested fields dispatch without another table lookup.
type Capability struct {
	TypeName  string
	Value     any
	resolvers map[string]Resolver
}

// Resolver returns the handler for a field of the capability's type.
func (c *Capability) Resolver(field string) (Resolver, bool) {
	fn, ok := c.resolvers[field]
	return fn, ok
}

// Unwrap returns the plain value behind a Capability, or v itself.
func Unwrap(v any) any {
	if c, ok := v.(*Capability); ok {
		return c.Value
	}
	return v
}

// attach wraps composite values (maps, structs, and lists of them). Scalars
// are returned unmodified.
func attach(typeName string, fields map[string]Resolver, v any) any {
	if c, ok := v.(*Capability); ok {
		v = c.Value
	}
	rv := reflect.ValueOf(v)
	switch kindOf(rv) {
	case reflect.Map, reflect.Struct:
		return &Capability{TypeName: typeName, Value: v, resolvers: fields}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			elem := rv.Index(i)
			if isNil(elem) {
				continue
			}
			out[i] = attach(typeName, fields, elem.Interface())
		}
		return out
	default:
		return v
	}
}

func kindOf(rv reflect.Value) reflect.Kind {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Invalid
		}
		rv = rv.Elem()
	}
	return rv.Kind()
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
