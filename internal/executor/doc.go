// Package executor implements a breadth-first, batch-friendly GraphQL executor.
//
// # Execution model
//
// Fields are classified by schema.Field.Async. Synchronous fields are resolved
// inline through Runtime.ResolveSync and their object values are expanded
// immediately, so they never add depth. Asynchronous fields found while
// expanding a depth are queued and resolved with a single
// Runtime.BatchResolveAsync call once that depth has been drained. For a
// response with async depth d the batch hook is called exactly d times.
//
// Mutations are the exception: their root fields run one at a time, and the
// nested work of one root field is drained before the next root field starts.
//
// # Null propagation
//
// A null or an error in a Non-Null position nulls the nearest nullable
// ancestor. If there is none, data is null. Queued tasks under a nulled path
// are dropped before the next batch, so the runtime never sees them.
//
// # Errors
//
// Errors are collected as located GraphQL errors with a response path and the
// position of the field node. Errors exposing Extensions() carry their
// extensions into the error entry, which is how authorization and validation
// failures report a code to clients.
//
// # Abstract types
//
// Fragment type conditions match the concrete type, a union containing it or
// an interface it implements. Runtime.ResolveType picks the concrete type and
// the result is checked against the schema's possible types.
package executor
