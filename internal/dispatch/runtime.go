// Package dispatch is the executor runtime backed by a frozen registry table.
//
// Field lookups go through the parent Capability first, so nested fields of a
// resolved value dispatch without a second table lookup. Fields without a
// resolver read the parent value directly.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/schema"
)

// ScalarSDL declares the custom scalars the runtime knows how to serialize.
const ScalarSDL = `scalar JSON
scalar DateTime
`

// Runtime implements executor.Runtime.
type Runtime struct {
	table  *registry.Table
	schema *schema.Schema
	limit  int
	log    zerolog.Logger
}

type Option func(*Runtime)

// WithConcurrency bounds how many async resolvers of one depth run at once.
// Zero or less means unbounded.
func WithConcurrency(n int) Option { return func(r *Runtime) { r.limit = n } }

// WithLogger sets the logger used for recovered panics.
func WithLogger(l zerolog.Logger) Option { return func(r *Runtime) { r.log = l } }

func New(table *registry.Table, sch *schema.Schema, opts ...Option) *Runtime {
	r := &Runtime{table: table, schema: sch, limit: 16, log: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runtime) lookup(objectType, field string, source any) (registry.Resolver, bool) {
	if c, ok := source.(*registry.Capability); ok && c.TypeName == objectType {
		if fn, ok := c.Resolver(field); ok {
			return fn, true
		}
	}
	return r.table.Lookup(objectType, field)
}

func (r *Runtime) resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (v any, err error) {
	fn, ok := r.lookup(objectType, field, source)
	if !ok {
		return registry.FieldValue(source, field), nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Str("type", objectType).
				Str("field", field).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("resolver panicked")
			v, err = nil, fmt.Errorf("internal error resolving %s.%s", objectType, field)
		}
	}()
	return fn(ctx, registry.Input{
		Type:   objectType,
		Field:  field,
		Args:   args,
		Parent: registry.Unwrap(source),
	})
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return r.resolve(ctx, objectType, field, source, args)
}

// BatchResolveAsync runs the tasks of one depth concurrently. A failing task
// only fails its own field.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	out := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 1 {
		v, err := r.resolve(ctx, tasks[0].ObjectType, tasks[0].Field, tasks[0].Source, tasks[0].Args)
		out[0] = executor.AsyncResolveResult{Value: v, Error: err}
		return out
	}
	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, t := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Error = err
				return nil
			}
			v, err := r.resolve(ctx, t.ObjectType, t.Field, t.Source, t.Args)
			out[i] = executor.AsyncResolveResult{Value: v, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Typed is implemented by values that know their concrete GraphQL type.
type Typed interface {
	GraphQLType() string
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if c, ok := value.(*registry.Capability); ok {
		if c.TypeName != abstractType && r.schema.IsPossibleType(abstractType, c.TypeName) {
			return c.TypeName, nil
		}
		value = c.Value
	}
	switch v := value.(type) {
	case Typed:
		return v.GraphQLType(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot determine the concrete type of %s value %T", abstractType, value)
}
