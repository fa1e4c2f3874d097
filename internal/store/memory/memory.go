// Package memory implements the store capabilities in process memory. Values
// are kept in their JSON form so reads behave like the disk drivers.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/store"
)

const storeName = "memory"

// Database is an in-memory document store.
type Database struct {
	mu    sync.Mutex
	colls map[string]*Collection
}

func NewDatabase() *Database { return &Database{colls: make(map[string]*Collection)} }

func (d *Database) Collection(name string) store.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.colls[name]
	if !ok {
		c = &Collection{name: name, docs: make(map[string][]byte)}
		d.colls[name] = c
	}
	return c
}

func (d *Database) Close() error { return nil }

// Collection is one in-memory collection.
type Collection struct {
	name string
	mu   sync.RWMutex
	docs map[string][]byte
}

func (c *Collection) fail(op string, err error) error {
	return errs.Storage(storeName, c.name+"."+op, err)
}

func (c *Collection) Insert(ctx context.Context, id string, doc store.Document) error {
	b, err := store.Encode(id, doc)
	if err != nil {
		return c.fail("insert", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; ok {
		return c.fail("insert", fmt.Errorf("%w: %s", errs.ErrConflict, id))
	}
	c.docs[id] = b
	return nil
}

func (c *Collection) Get(ctx context.Context, id string) (store.Document, error) {
	c.mu.RLock()
	b, ok := c.docs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, c.fail("get", fmt.Errorf("%w: %s", errs.ErrNotFound, id))
	}
	return store.Decode(b)
}

func (c *Collection) GetMany(ctx context.Context, ids []string) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		b, ok := c.docs[id]
		if !ok {
			continue
		}
		doc, err := store.Decode(b)
		if err != nil {
			return nil, c.fail("get", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *Collection) Find(ctx context.Context, f store.Filter) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []store.Document
	for _, id := range ids {
		doc, err := store.Decode(c.docs[id])
		if err != nil {
			return nil, c.fail("find", err)
		}
		if store.Match(doc, f) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Document, error) {
	docs, err := c.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, c.fail("find", errs.ErrNotFound)
	}
	return docs[0], nil
}

func (c *Collection) Update(ctx context.Context, id string, set store.Document) (store.Document, error) {
	return c.Modify(ctx, id, func(doc store.Document) (store.Document, error) {
		return store.Merge(doc, set), nil
	})
}

func (c *Collection) Modify(ctx context.Context, id string, fn func(store.Document) (store.Document, error)) (store.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.docs[id]
	if !ok {
		return nil, c.fail("modify", fmt.Errorf("%w: %s", errs.ErrNotFound, id))
	}
	doc, err := store.Decode(b)
	if err != nil {
		return nil, c.fail("modify", err)
	}
	next, err := fn(doc)
	if err != nil {
		return nil, err
	}
	if b, err = store.Encode(id, next); err != nil {
		return nil, c.fail("modify", err)
	}
	c.docs[id] = b
	return store.Decode(b)
}

func (c *Collection) Upsert(ctx context.Context, id string, set store.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := store.Document{}
	if b, ok := c.docs[id]; ok {
		var err error
		if doc, err = store.Decode(b); err != nil {
			return c.fail("upsert", err)
		}
	}
	b, err := store.Encode(id, store.Merge(doc, set))
	if err != nil {
		return c.fail("upsert", err)
	}
	c.docs[id] = b
	return nil
}

func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.docs[id]
	delete(c.docs, id)
	return ok, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

// Index is an in-memory search index. Fail, when set, is returned by every
// write; tests use it to simulate an unavailable index.
type Index struct {
	mu      sync.RWMutex
	indices map[string]map[string]store.Document
	Fail    error
}

func NewIndex() *Index { return &Index{indices: make(map[string]map[string]store.Document)} }

func (x *Index) Index(ctx context.Context, index, id string, body store.Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Fail != nil {
		return errs.Storage(storeName, "index", x.Fail)
	}
	doc, err := store.Clone(body)
	if err != nil {
		return errs.Storage(storeName, "index", err)
	}
	if x.indices[index] == nil {
		x.indices[index] = make(map[string]store.Document)
	}
	x.indices[index][id] = doc
	return nil
}

func (x *Index) Delete(ctx context.Context, index, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Fail != nil {
		return errs.Storage(storeName, "delete", x.Fail)
	}
	delete(x.indices[index], id)
	return nil
}

func (x *Index) Search(ctx context.Context, index string, q store.Query) ([]string, int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var hits []store.Hit
	for id, body := range x.indices[index] {
		if score, ok := store.Score(body, q); ok {
			hits = append(hits, store.Hit{ID: id, Score: score})
		}
	}
	return store.Rank(hits, q.From, q.Size), len(hits), nil
}

// Body returns the indexed body of id, for tests.
func (x *Index) Body(index, id string) (store.Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.indices[index][id]
	return doc, ok
}

func (x *Index) Close() error { return nil }

// ObjectStore keeps objects in memory.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	info store.ObjectInfo
	data []byte
}

func NewObjectStore() *ObjectStore { return &ObjectStore{objects: make(map[string]object)} }

func (o *ObjectStore) Put(ctx context.Context, info store.ObjectInfo, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errs.Storage(storeName, "put", err)
	}
	info.Size = int64(len(data))
	info.Modified = time.Now()
	o.mu.Lock()
	o.objects[info.Name] = object{info: info, data: data}
	o.mu.Unlock()
	return nil
}

func (o *ObjectStore) Get(ctx context.Context, name string) (io.ReadCloser, store.ObjectInfo, error) {
	o.mu.RLock()
	obj, ok := o.objects[name]
	o.mu.RUnlock()
	if !ok {
		return nil, store.ObjectInfo{}, errs.Storage(storeName, "get", fmt.Errorf("%w: %s", errs.ErrNotFound, name))
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

func (o *ObjectStore) Delete(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[name]; !ok {
		return errs.Storage(storeName, "delete", fmt.Errorf("%w: %s", errs.ErrNotFound, name))
	}
	delete(o.objects, name)
	return nil
}

func (o *ObjectStore) Close() error { return nil }
