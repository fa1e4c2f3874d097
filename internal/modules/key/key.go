// Package key is the registry of schema definition records. Each record binds
// a field name to the structural definition dynamic records are validated
// against, plus localized labels for clients.
package key

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
	"github.com/hanpama/graphcms/internal/validate"
)

// Collection is the name of the key collection.
const Collection = "keys"

// Record is one schema definition record.
type Record struct {
	Key          string            `json:"_id"`
	Schema       string            `json:"schema"`
	Localization map[string]string `json:"localization"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// Base records every deployment starts with.
var Base = []Record{
	{Key: "_id", Schema: validate.String().MustMarshal()},
	{Key: "title", Schema: validate.String().Required().MustMarshal()},
	{Key: "description", Schema: validate.String().Required().MustMarshal()},
	{Key: "images", Schema: validate.Array(validate.String()).Kind(validate.KindImage).MustMarshal()},
}

type Module struct {
	keys   store.Collection
	engine *validate.Engine
	log    zerolog.Logger
}

func New(db store.Database, engine *validate.Engine, log zerolog.Logger) *Module {
	return &Module{
		keys:   db.Collection(Collection),
		engine: engine,
		log:    log.With().Str("component", "key").Logger(),
	}
}

// Definitions implements validate.DefinitionStore with one batch lookup.
func (m *Module) Definitions(ctx context.Context, keys []string) (map[string]string, error) {
	docs, err := m.keys.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		id, _ := d[store.IDField].(string)
		if s, ok := d["schema"].(string); ok {
			out[id] = s
		}
	}
	return out, nil
}

// Records returns the records of keys that exist, in keys order.
func (m *Module) Records(ctx context.Context, keys []string) ([]store.Document, error) {
	return m.keys.GetMany(ctx, keys)
}

// Compose builds a validator for keys from the current registry state.
func (m *Module) Compose(ctx context.Context, keys []string) (*validate.Validator, error) {
	return m.engine.Compose(ctx, m, keys)
}

// Set upserts a record. The definition must parse; labels are merged into
// the stored ones.
func (m *Module) Set(ctx context.Context, rec Record) error {
	if rec.Key == "" {
		return errs.Invalid("key", "must not be empty")
	}
	if _, err := validate.ParseNode(rec.Schema); err != nil {
		return err
	}
	build := func(doc store.Document) store.Document {
		set := store.Document{
			"schema":       rec.Schema,
			"localization": mergeLabels(doc["localization"], rec.Localization),
		}
		if rec.Metadata != nil {
			set["metadata"] = rec.Metadata
		}
		return store.Merge(doc, set)
	}
	_, err := m.keys.Modify(ctx, rec.Key, func(doc store.Document) (store.Document, error) {
		return build(doc), nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return m.keys.Upsert(ctx, rec.Key, build(store.Document{}))
	}
	return err
}

// Seed upserts the base records.
func (m *Module) Seed(ctx context.Context) error {
	for _, rec := range Base {
		if err := m.Set(ctx, rec); err != nil {
			return err
		}
	}
	m.log.Debug().Int("records", len(Base)).Msg("base keys seeded")
	return nil
}

func mergeLabels(stored any, labels map[string]string) map[string]any {
	out := map[string]any{}
	if m, ok := stored.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Register contributes the key surface.
func (m *Module) Register(reg *registry.SchemaRegistry) {
	reg.DescribeType("Key", "A schema definition record: the structural definition of one dynamic record field.")
	reg.DeclareFields("Key",
		registry.Field{Name: "_id", Type: "String!"},
		registry.Field{Name: "localization", Type: "JSON!", Description: "Labels by language tag."},
		registry.Field{Name: "schema", Type: "String!", Description: "Serialized structural definition."},
	)
	reg.DeclareResolver("Query", "key", "KeyContext", registry.Namespace)

	reg.DeclareResolver("KeyContext", "get(ids: [String])", "[Key]", m.get,
		"Records by key. Without ids every record is returned.")
	reg.DeclareResolver("KeyContext", "add(key: String!, schema: String!)", "Boolean! @auth", m.add)
	reg.DeclareResolver("KeyContext", "del(key: String!)", "Boolean! @auth", m.del)
	reg.DeclareResolver("KeyContext", "setLocalization(key: String!, lang: String!, value: String!)", "Boolean! @auth", m.setLocalization)
	reg.DeclareResolver("KeyContext", "describe(keys: [String!]!)", "JSON", m.describe,
		"The definition composed from keys, as clients render it.")
}

func (m *Module) get(ctx context.Context, in registry.Input) (any, error) {
	if !in.Has("ids") {
		return m.keys.Find(ctx, nil)
	}
	return m.keys.GetMany(ctx, in.Strings("ids"))
}

func (m *Module) add(ctx context.Context, in registry.Input) (any, error) {
	if err := m.Set(ctx, Record{Key: in.String("key"), Schema: in.String("schema")}); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Module) del(ctx context.Context, in registry.Input) (any, error) {
	return m.keys.Delete(ctx, in.String("key"))
}

func (m *Module) setLocalization(ctx context.Context, in registry.Input) (any, error) {
	lang, value := in.String("lang"), in.String("value")
	_, err := m.keys.Modify(ctx, in.String("key"), func(doc store.Document) (store.Document, error) {
		doc["localization"] = mergeLabels(doc["localization"], map[string]string{lang: value})
		return doc, nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *Module) describe(ctx context.Context, in registry.Input) (any, error) {
	v, err := m.Compose(ctx, in.Strings("keys"))
	if err != nil {
		return nil, err
	}
	return v.Describe(), nil
}
