// Package boltdb is the document store driver on bbolt. Each collection is a
// bucket of JSON encoded documents keyed by id.
package boltdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/store"
)

const storeName = "bolt"

// Database is a bbolt file.
type Database struct {
	db     *bolt.DB
	prefix string
}

// Open opens (creating if needed) the database file at path. Collection names
// are prefixed with prefix, when set.
func Open(path, prefix string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Storage(storeName, "open", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.Storage(storeName, "open", fmt.Errorf("%s: %w", path, err))
	}
	return &Database{db: db, prefix: prefix}, nil
}

func (d *Database) Collection(name string) store.Collection {
	if d.prefix != "" {
		name = d.prefix + "-" + name
	}
	return &Collection{db: d.db, name: name, bucket: []byte(name)}
}

func (d *Database) Close() error { return d.db.Close() }

// Collection is one bucket.
type Collection struct {
	db     *bolt.DB
	name   string
	bucket []byte
}

var errStop = errors.New("stop")

func (c *Collection) fail(op string, err error) error {
	return errs.Storage(storeName, c.name+"."+op, err)
}

func (c *Collection) view(fn func(b *bolt.Bucket) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (c *Collection) update(fn func(b *bolt.Bucket) error) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (c *Collection) Insert(ctx context.Context, id string, doc store.Document) error {
	v, err := store.Encode(id, doc)
	if err != nil {
		return c.fail("insert", err)
	}
	err = c.update(func(b *bolt.Bucket) error {
		if b.Get([]byte(id)) != nil {
			return fmt.Errorf("%w: %s", errs.ErrConflict, id)
		}
		return b.Put([]byte(id), v)
	})
	return c.fail("insert", err)
}

func (c *Collection) Get(ctx context.Context, id string) (store.Document, error) {
	var doc store.Document
	err := c.view(func(b *bolt.Bucket) error {
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var err error
		doc, err = store.Decode(v)
		return err
	})
	if err != nil {
		return nil, c.fail("get", err)
	}
	if doc == nil {
		return nil, c.fail("get", fmt.Errorf("%w: %s", errs.ErrNotFound, id))
	}
	return doc, nil
}

func (c *Collection) GetMany(ctx context.Context, ids []string) ([]store.Document, error) {
	out := make([]store.Document, 0, len(ids))
	err := c.view(func(b *bolt.Bucket) error {
		for _, id := range ids {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}
			doc, err := store.Decode(v)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, c.fail("get", err)
	}
	return out, nil
}

// Find scans the bucket; keys iterate in byte order, which is id order.
func (c *Collection) Find(ctx context.Context, f store.Filter) ([]store.Document, error) {
	return c.find(ctx, f, 0)
}

func (c *Collection) find(ctx context.Context, f store.Filter, limit int) ([]store.Document, error) {
	var out []store.Document
	err := c.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := store.Decode(v)
			if err != nil {
				return err
			}
			if store.Match(doc, f) {
				out = append(out, doc)
				if limit > 0 && len(out) >= limit {
					return errStop
				}
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, c.fail("find", err)
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Document, error) {
	docs, err := c.find(ctx, f, 1)
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
	var (
		out     store.Document
		userErr error
	)
	err := c.update(func(b *bolt.Bucket) error {
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", errs.ErrNotFound, id)
		}
		doc, err := store.Decode(v)
		if err != nil {
			return err
		}
		next, err := fn(doc)
		if err != nil {
			userErr = err
			return err
		}
		enc, err := store.Encode(id, next)
		if err != nil {
			return err
		}
		if out, err = store.Decode(enc); err != nil {
			return err
		}
		return b.Put([]byte(id), enc)
	})
	if userErr != nil {
		return nil, userErr
	}
	if err != nil {
		return nil, c.fail("modify", err)
	}
	return out, nil
}

func (c *Collection) Upsert(ctx context.Context, id string, set store.Document) error {
	err := c.update(func(b *bolt.Bucket) error {
		doc := store.Document{}
		if v := b.Get([]byte(id)); v != nil {
			var err error
			if doc, err = store.Decode(v); err != nil {
				return err
			}
		}
		enc, err := store.Encode(id, store.Merge(doc, set))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), enc)
	})
	return c.fail("upsert", err)
}

func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := c.update(func(b *bolt.Bucket) error {
		found = b.Get([]byte(id)) != nil
		if !found {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return false, c.fail("delete", err)
	}
	return found, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.view(func(b *bolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, c.fail("count", err)
	}
	return n, nil
}
