// Package sqlsearch is the search index driver on SQLite. Bodies are stored as
// JSON next to a lowercased flat text column; a LIKE scan narrows candidates
// and the shared scorer ranks them.
package sqlsearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/store"
)

const storeName = "sqlite"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS search_docs (
	idx  TEXT NOT NULL,
	id   TEXT NOT NULL,
	body TEXT NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (idx, id)
)`

// Index is a search index in one SQLite file.
type Index struct {
	db *sql.DB
}

// Open opens the index file at path, creating it when needed. ":memory:"
// opens a private in-memory index.
func Open(path string) (*Index, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Storage(storeName, "open", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.Storage(storeName, "open", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{"PRAGMA synchronous = NORMAL", schemaSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errs.Storage(storeName, "migrate", err)
		}
	}
	return &Index{db: db}, nil
}

func (x *Index) Index(ctx context.Context, index, id string, body store.Document) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errs.Storage(storeName, "index", err)
	}
	_, err = x.db.ExecContext(ctx, `
		INSERT INTO search_docs (idx, id, body, text) VALUES (?, ?, ?, ?)
		ON CONFLICT (idx, id) DO UPDATE SET body = excluded.body, text = excluded.text`,
		index, id, string(b), flatten(body))
	return errs.Storage(storeName, "index", err)
}

func (x *Index) Delete(ctx context.Context, index, id string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM search_docs WHERE idx = ? AND id = ?`, index, id)
	return errs.Storage(storeName, "delete", err)
}

func (x *Index) Search(ctx context.Context, index string, q store.Query) ([]string, int, error) {
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, body FROM search_docs
		WHERE idx = ? AND (? = '' OR text LIKE ? ESCAPE '\')`,
		index, kw, "%"+escapeLike(kw)+"%")
	if err != nil {
		return nil, 0, errs.Storage(storeName, "search", err)
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, 0, errs.Storage(storeName, "search", err)
		}
		body, err := store.Decode([]byte(raw))
		if err != nil {
			return nil, 0, errs.Storage(storeName, "search", fmt.Errorf("decode %s/%s: %w", index, id, err))
		}
		if score, ok := store.Score(body, q); ok {
			hits = append(hits, store.Hit{ID: id, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.Storage(storeName, "search", err)
	}
	return store.Rank(hits, q.From, q.Size), len(hits), nil
}

func (x *Index) Close() error { return x.db.Close() }

func flatten(body store.Document) string {
	parts := make([]string, 0, len(body))
	for _, v := range body {
		if s := store.Text(v); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
