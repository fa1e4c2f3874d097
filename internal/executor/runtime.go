package executor

import (
	"context"
)

// Runtime is the host integration surface of the Executor.
//
// The Executor runs breadth first. At each depth it drains synchronous fields
// through ResolveSync, then calls BatchResolveAsync once with every async task
// collected at that depth. The next depth does not begin until the batch has
// returned and its results are completed. BatchResolveAsync is never called
// with an empty task list.
//
// Errors returned from any method become located GraphQL errors. If an error
// implements interface{ Extensions() map[string]any } the extensions are
// copied into the error entry.
//
// Implementations must be safe for concurrent use by several operations and
// must not mutate source or args.
type Runtime interface {
	// ResolveSync resolves a field with Async == false. Return (nil, nil) for
	// GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one depth of async tasks. It must return one
	// result per task, in task order; a failing task does not fail the batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType returns the concrete object type name of a value whose
	// static type is an interface or union.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-safe value.
	// Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	ObjectType string
	Field      string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	Value any
	Error error
}
