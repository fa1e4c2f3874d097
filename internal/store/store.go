// Package store declares the storage capabilities the feature modules use: a
// document store, a search index, and an object store. Drivers live in the
// sub-packages; callers only see these interfaces.
package store

import (
	"context"
	"io"
	"time"
)

// Document is a JSON object. Values read back from a store are plain JSON
// values (float64 numbers, []any lists, map[string]any objects).
type Document = map[string]any

// IDField is the document key holding its id.
const IDField = "_id"

// Filter selects documents by field equality. A field holding a list matches
// when any element equals the value; an In value matches any of its members.
type Filter map[string]any

// In matches any of the listed values.
type In []any

// Collection is a named set of documents keyed by id.
type Collection interface {
	// Insert stores doc under id. It fails with errs.ErrConflict if id exists.
	Insert(ctx context.Context, id string, doc Document) error
	// Get fails with errs.ErrNotFound when id does not exist.
	Get(ctx context.Context, id string) (Document, error)
	// GetMany returns the documents that exist, in ids order.
	GetMany(ctx context.Context, ids []string) ([]Document, error)
	// Find returns the documents matching f ordered by id.
	Find(ctx context.Context, f Filter) ([]Document, error)
	// FindOne fails with errs.ErrNotFound when nothing matches.
	FindOne(ctx context.Context, f Filter) (Document, error)
	// Update merges set into the stored document and returns the result.
	Update(ctx context.Context, id string, set Document) (Document, error)
	// Modify atomically replaces the document with fn's result.
	Modify(ctx context.Context, id string, fn func(Document) (Document, error)) (Document, error)
	// Upsert merges set into the document, creating it when absent.
	Upsert(ctx context.Context, id string, set Document) error
	// Delete reports whether a document was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Database hands out collections.
type Database interface {
	Collection(name string) Collection
	Close() error
}

// Boost weighs matches in one field.
type Boost struct {
	Field  string
	Weight float64
}

// Query is a keyword search. An empty keyword matches every document.
type Query struct {
	Keyword string
	Fields  []Boost
	Size    int
	From    int
}

// Index is a full text search index over documents of several indices.
type Index interface {
	Index(ctx context.Context, index, id string, body Document) error
	Delete(ctx context.Context, index, id string) error
	// Search returns one page of matching ids, best first, and the total
	// number of matches.
	Search(ctx context.Context, index string, q Query) ([]string, int, error)
	Close() error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	Modified    time.Time
}

// ObjectStore holds uploaded files.
type ObjectStore interface {
	Put(ctx context.Context, info ObjectInfo, r io.Reader) error
	// Get fails with errs.ErrNotFound when the object does not exist.
	Get(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, name string) error
	Close() error
}
