// Package item stores dynamic records. A record has no GraphQL shape of its
// own: every write composes a validator from the keys it touches, and every
// read describes the shape it returns.
package item

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/eventbus"
	"github.com/hanpama/graphcms/internal/events"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
	"github.com/hanpama/graphcms/internal/validate"
)

const (
	Collection = "items"
	// Index is the search index records are mirrored into.
	Index = "data"
	// DefaultPageSize applies when a search asks for no positive size.
	DefaultPageSize = 50
)

// Searched fields and their weights.
var Boosts = []store.Boost{
	{Field: "title", Weight: 3},
	{Field: "description", Weight: 1},
}

// Composer builds a validator for a key set from the current registry.
type Composer interface {
	Compose(ctx context.Context, keys []string) (*validate.Validator, error)
}

type Module struct {
	items store.Collection
	index store.Index
	keys  Composer
	log   zerolog.Logger
}

func New(db store.Database, index store.Index, keys Composer, log zerolog.Logger) *Module {
	return &Module{
		items: db.Collection(Collection),
		index: index,
		keys:  keys,
		log:   log.With().Str("component", "item").Logger(),
	}
}

// Response is a page of records with the shape they share.
type Response struct {
	Items  []store.Document `json:"items"`
	Schema *validate.Node   `json:"schema"`
	Total  int              `json:"total"`
}

// Add validates payload against the keys it names and stores it. The id is
// taken from payload["_id"] or generated.
func (m *Module) Add(ctx context.Context, payload map[string]any) (string, error) {
	v, err := m.keys.Compose(ctx, keysOf(payload))
	if err != nil {
		return "", err
	}
	doc, err := v.Apply(payload)
	if err != nil {
		return "", err
	}
	id, _ := doc[store.IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}
	if err := m.items.Insert(ctx, id, doc); err != nil {
		return "", err
	}
	doc[store.IDField] = id
	m.mirror(ctx, id, doc)
	return id, nil
}

// Update validates set against the keys it names and merges it into the
// record. It reports false when the record does not exist.
func (m *Module) Update(ctx context.Context, id string, set map[string]any) (bool, error) {
	v, err := m.keys.Compose(ctx, keysOf(set))
	if err != nil {
		return false, err
	}
	valid, err := v.Apply(set)
	if err != nil {
		return false, err
	}
	doc, err := m.items.Update(ctx, id, valid)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.mirror(ctx, id, doc)
	return true, nil
}

func (m *Module) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := m.items.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := m.index.Delete(ctx, Index, id); err != nil {
		m.mirrorFailed(ctx, id, err)
	}
	return true, nil
}

// Get returns the record with the description of its own keys. An unknown
// id yields no items and an empty object schema.
func (m *Module) Get(ctx context.Context, id string) (*Response, error) {
	doc, err := m.items.Get(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return &Response{Items: []store.Document{}, Schema: validate.Object(nil)}, nil
	}
	if err != nil {
		return nil, err
	}
	return m.respond(ctx, []store.Document{doc}, 1)
}

// Search returns one page of matches. A size of zero or less means the
// default page of 50.
func (m *Module) Search(ctx context.Context, keyword string, size, from int) (*Response, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	ids, total, err := m.index.Search(ctx, Index, store.Query{Keyword: keyword, Fields: Boosts, Size: size, From: from})
	if err != nil {
		return nil, err
	}
	docs, err := m.items.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return m.respond(ctx, docs, total)
}

func (m *Module) Count(ctx context.Context) (int, error) { return m.items.Count(ctx) }

// respond composes one validator over the union of the documents' keys and
// runs every document through it leniently. A document that no longer fits
// the registry is returned as stored.
func (m *Module) respond(ctx context.Context, docs []store.Document, total int) (*Response, error) {
	seen := map[string]struct{}{}
	var keys []string
	for _, d := range docs {
		for _, k := range validate.PayloadKeys(d) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	v, err := m.keys.Compose(ctx, keys)
	if err != nil {
		return nil, err
	}
	v = v.Lenient()
	out := make([]store.Document, len(docs))
	for i, d := range docs {
		applied, err := v.Apply(d)
		if err != nil {
			m.log.Warn().Err(err).Interface("id", d[store.IDField]).Msg("stored record does not match its keys")
			applied = d
		}
		out[i] = applied
	}
	return &Response{Items: out, Schema: v.Describe(), Total: total}, nil
}

// mirror writes the searchable fields of doc to the index. The document
// store stays authoritative: a failure is logged and reported, never returned.
func (m *Module) mirror(ctx context.Context, id string, doc store.Document) {
	body := store.Document{}
	for _, b := range Boosts {
		if v, ok := doc[b.Field]; ok && v != nil {
			body[b.Field] = v
		}
	}
	if err := m.index.Index(ctx, Index, id, body); err != nil {
		m.mirrorFailed(ctx, id, err)
	}
}

func (m *Module) mirrorFailed(ctx context.Context, id string, err error) {
	m.log.Warn().Err(err).Str("id", id).Str("index", Index).Msg("search index mirror failed")
	eventbus.Publish(ctx, events.IndexMirrorFailed{Index: Index, ID: id, Err: err})
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Module) Register(reg *registry.SchemaRegistry) {
	reg.DescribeType("ItemResponse", "Records together with the definition of the keys they use.")
	reg.DeclareFields("ItemResponse",
		registry.Field{Name: "items", Type: "[JSON]"},
		registry.Field{Name: "schema", Type: "JSON"},
		registry.Field{Name: "total", Type: "Int"},
	)
	reg.DeclareResolver("Query", "item", "ItemContext", registry.Namespace)

	reg.DeclareResolver("ItemContext", "add(payload: JSON!)", "String! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		payload, err := in.Object("payload")
		if err != nil {
			return nil, err
		}
		return m.Add(ctx, payload)
	}, "Stores a record and returns its id.")
	reg.DeclareResolver("ItemContext", "update(id: String!, set: JSON!)", "Boolean! @auth(requires: USER)", func(ctx context.Context, in registry.Input) (any, error) {
		set, err := in.Object("set")
		if err != nil {
			return nil, err
		}
		return m.Update(ctx, in.String("id"), set)
	})
	reg.DeclareResolver("ItemContext", "del(id: String!)", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Delete(ctx, in.String("id"))
	})
	reg.DeclareResolver("ItemContext", "get(id: String!)", "ItemResponse", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Get(ctx, in.String("id"))
	})
	reg.DeclareResolver("ItemContext", "count", "Int!", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Count(ctx)
	})
	reg.DeclareResolver("ItemContext", "search(keyword: String, size: Int = 50, from: Int = 0)", "ItemResponse", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Search(ctx, in.String("keyword"), in.Int("size", 50), in.Int("from", 0))
	}, "Weighted keyword search over title and description.")
}
