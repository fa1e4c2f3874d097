// Package storetest holds behavior tests shared by every store driver.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/store"
)

// Database exercises the Collection contract on db.
func Database(t *testing.T, db store.Database) {
	ctx := context.Background()
	c := db.Collection("things")

	require.NoError(t, c.Insert(ctx, "a", store.Document{"title": "Alpha", "tags": []any{"x", "y"}, "n": 1}))
	require.NoError(t, c.Insert(ctx, "b", store.Document{"title": "Beta", "tags": []any{"y"}, "n": 2}))
	err := c.Insert(ctx, "a", store.Document{})
	require.ErrorIs(t, err, errs.ErrConflict)
	var se *errs.StorageError
	require.True(t, errors.As(err, &se))

	doc, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, store.Document{"_id": "a", "title": "Alpha", "tags": []any{"x", "y"}, "n": float64(1)}, doc)
	_, err = c.Get(ctx, "zzz")
	require.ErrorIs(t, err, errs.ErrNotFound)

	many, err := c.GetMany(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, many, 2)
	require.Equal(t, "b", many[0]["_id"])
	require.Equal(t, "a", many[1]["_id"])

	found, err := c.Find(ctx, store.Filter{"tags": "y"})
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, ids(found))
	found, err = c.Find(ctx, store.Filter{"n": 2})
	require.NoError(t, err)
	require.Equal(t, []any{"b"}, ids(found))
	found, err = c.Find(ctx, store.Filter{"_id": store.In{"b", "q"}})
	require.NoError(t, err)
	require.Equal(t, []any{"b"}, ids(found))
	all, err := c.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := c.FindOne(ctx, store.Filter{"title": "Beta"})
	require.NoError(t, err)
	require.Equal(t, "b", one["_id"])
	_, err = c.FindOne(ctx, store.Filter{"title": "Gamma"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	merged, err := c.Update(ctx, "a", store.Document{"title": "Alef", "n": nil, "_id": "hijack"})
	require.NoError(t, err)
	require.Equal(t, store.Document{"_id": "a", "title": "Alef", "tags": []any{"x", "y"}}, merged)
	_, err = c.Update(ctx, "zzz", store.Document{"title": "x"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = c.Modify(ctx, "b", func(d store.Document) (store.Document, error) {
		d["tags"] = append(d["tags"].([]any), "z")
		return d, nil
	})
	require.NoError(t, err)
	doc, err = c.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, []any{"y", "z"}, doc["tags"])

	boom := errors.New("boom")
	_, err = c.Modify(ctx, "b", func(store.Document) (store.Document, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	require.NoError(t, c.Upsert(ctx, "c", store.Document{"title": "Gamma"}))
	require.NoError(t, c.Upsert(ctx, "c", store.Document{"extra": true}))
	doc, err = c.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, store.Document{"_id": "c", "title": "Gamma", "extra": true}, doc)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	ok, err := c.Delete(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Delete(ctx, "c")
	require.NoError(t, err)
	require.False(t, ok)

	other, err := db.Collection("others").Count(ctx)
	require.NoError(t, err)
	require.Zero(t, other)
}

// Index exercises the Index contract on idx.
func Index(t *testing.T, idx store.Index) {
	ctx := context.Background()
	for id, title := range map[string]string{"1": "Red apple", "2": "Green apple pie", "3": "Banana", "4": "Pineapple"} {
		require.NoError(t, idx.Index(ctx, "data", id, store.Document{"title": title, "description": "fruit " + strings.ToLower(title)}))
	}
	require.NoError(t, idx.Index(ctx, "other", "9", store.Document{"title": "apple"}))

	q := store.Query{Keyword: "apple", Fields: []store.Boost{{Field: "title", Weight: 3}, {Field: "description", Weight: 1}}}
	got, total, err := idx.Search(ctx, "data", q)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, []string{"1", "2", "4"}, got)

	q.Keyword = "green"
	got, _, err = idx.Search(ctx, "data", q)
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, got)

	got, total, err = idx.Search(ctx, "data", store.Query{Size: 2, From: 1})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, []string{"2", "3"}, got)

	require.NoError(t, idx.Index(ctx, "data", "3", store.Document{"title": "Apple banana"}))
	require.NoError(t, idx.Delete(ctx, "data", "1"))
	require.NoError(t, idx.Delete(ctx, "data", "nope"))
	got, total, err = idx.Search(ctx, "data", store.Query{Keyword: "APPLE", Fields: []store.Boost{{Field: "title", Weight: 3}}})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, []string{"3", "2", "4"}, got)
}

func ids(docs []store.Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["_id"]
	}
	return out
}
