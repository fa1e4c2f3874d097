// Package template stores record templates: named, ordered key lists that
// clients use to lay out a new record.
package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/eventbus"
	"github.com/hanpama/graphcms/internal/events"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
)

const (
	Collection = "templates"
	Index      = "template"
	// DefaultID is the id of the template every deployment starts with.
	DefaultID       = "000000000000000000000"
	DefaultPageSize = 50
)

// DefaultKeys are the keys of the default template. Updates to it must keep
// all of them.
var DefaultKeys = []string{"_id", "title", "description", "images"}

// Keys resolves key names to schema definition records.
type Keys interface {
	Definitions(ctx context.Context, keys []string) (map[string]string, error)
	Records(ctx context.Context, keys []string) ([]store.Document, error)
}

type Module struct {
	templates store.Collection
	index     store.Index
	keys      Keys
	log       zerolog.Logger
}

func New(db store.Database, index store.Index, keys Keys, log zerolog.Logger) *Module {
	return &Module{
		templates: db.Collection(Collection),
		index:     index,
		keys:      keys,
		log:       log.With().Str("component", "template").Logger(),
	}
}

// Seed creates the default template when it is missing.
func (m *Module) Seed(ctx context.Context) error {
	_, err := m.templates.Get(ctx, DefaultID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	doc := store.Document{"name": "default", "payload": toAny(DefaultKeys)}
	if err := m.templates.Insert(ctx, DefaultID, doc); err != nil && !errors.Is(err, errs.ErrConflict) {
		return err
	}
	m.mirror(ctx, DefaultID, "default")
	return nil
}

func (m *Module) Add(ctx context.Context, name string, payload []string) (string, error) {
	if name == "" {
		return "", errs.Invalid("name", "must not be empty")
	}
	payload, err := m.checkPayload(ctx, "", payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := m.templates.Insert(ctx, id, store.Document{"name": name, "payload": toAny(payload)}); err != nil {
		return "", err
	}
	m.mirror(ctx, id, name)
	return id, nil
}

// Update changes the name or the key list of a template. A nil argument
// leaves the field unchanged. It reports false for an unknown id.
func (m *Module) Update(ctx context.Context, id string, name *string, payload []string) (bool, error) {
	set := store.Document{}
	if name != nil {
		if *name == "" {
			return false, errs.Invalid("name", "must not be empty")
		}
		set["name"] = *name
	}
	if payload != nil {
		checked, err := m.checkPayload(ctx, id, payload)
		if err != nil {
			return false, err
		}
		set["payload"] = toAny(checked)
	}
	doc, err := m.templates.Update(ctx, id, set)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if name != nil {
		n, _ := doc["name"].(string)
		m.mirror(ctx, id, n)
	}
	return true, nil
}

func (m *Module) Delete(ctx context.Context, id string) (bool, error) {
	if id == DefaultID {
		return false, errs.Invalid("id", "the default template cannot be deleted")
	}
	ok, err := m.templates.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := m.index.Delete(ctx, Index, id); err != nil {
		m.mirrorFailed(ctx, id, err)
	}
	return true, nil
}

func (m *Module) Get(ctx context.Context, id string) (store.Document, error) {
	doc, err := m.templates.Get(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// Search matches templates by name. An empty name lists every template; a
// size of zero or less means the default page of 50.
func (m *Module) Search(ctx context.Context, name string, size, from int) ([]store.Document, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	ids, _, err := m.index.Search(ctx, Index, store.Query{
		Keyword: name,
		Fields:  []store.Boost{{Field: "name", Weight: 1}},
		Size:    size,
		From:    from,
	})
	if err != nil {
		return nil, err
	}
	return m.templates.GetMany(ctx, ids)
}

// checkPayload drops duplicate keys and rejects keys without a definition
// record. The default template must keep its base keys.
func (m *Module) checkPayload(ctx context.Context, id string, payload []string) ([]string, error) {
	seen := make(map[string]struct{}, len(payload))
	out := make([]string, 0, len(payload))
	for _, k := range payload {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	defs, err := m.keys.Definitions(ctx, out)
	if err != nil {
		return nil, err
	}
	var issues []errs.Issue
	for i, k := range out {
		if _, ok := defs[k]; !ok {
			issues = append(issues, errs.Issue{Path: fmt.Sprintf("payload.%d", i), Message: fmt.Sprintf("%q is not a registered key", k)})
		}
	}
	if id == DefaultID {
		for _, k := range DefaultKeys {
			if _, ok := seen[k]; !ok {
				issues = append(issues, errs.Issue{Path: "payload", Message: fmt.Sprintf("the default template must keep %q", k)})
			}
		}
	}
	if len(issues) > 0 {
		return nil, &errs.ValidationError{Issues: issues}
	}
	return out, nil
}

func (m *Module) mirror(ctx context.Context, id, name string) {
	if err := m.index.Index(ctx, Index, id, store.Document{"name": name}); err != nil {
		m.mirrorFailed(ctx, id, err)
	}
}

func (m *Module) mirrorFailed(ctx context.Context, id string, err error) {
	m.log.Warn().Err(err).Str("id", id).Str("index", Index).Msg("search index mirror failed")
	eventbus.Publish(ctx, events.IndexMirrorFailed{Index: Index, ID: id, Err: err})
}

func toAny(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func payloadOf(doc any) []string {
	m, _ := doc.(map[string]any)
	list, _ := m["payload"].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *Module) Register(reg *registry.SchemaRegistry) {
	reg.DescribeType("Template", "An ordered list of keys a record is laid out with.")
	reg.DeclareFields("Template",
		registry.Field{Name: "_id", Type: "String!"},
		registry.Field{Name: "name", Type: "String!"},
		registry.Field{Name: "payload", Type: "JSON!"},
	)
	reg.DeclareResolver("Template", "keys", "[Key]", func(ctx context.Context, in registry.Input) (any, error) {
		return m.keys.Records(ctx, payloadOf(in.Parent))
	}, "The definition records of payload, in payload order.")
	reg.DeclareResolver("Query", "template", "TemplateContext", registry.Namespace)

	reg.DeclareResolver("TemplateContext", "add(name: String!, payload: [String!]!)", "String! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Add(ctx, in.String("name"), in.Strings("payload"))
	})
	reg.DeclareResolver("TemplateContext", "update(id: String!, name: String, payload: [String!])", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		var name *string
		if in.Has("name") {
			n := in.String("name")
			name = &n
		}
		var payload []string
		if in.Has("payload") {
			payload = in.Strings("payload")
		}
		return m.Update(ctx, in.String("id"), name, payload)
	})
	reg.DeclareResolver("TemplateContext", "del(id: String!)", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Delete(ctx, in.String("id"))
	})
	reg.DeclareResolver("TemplateContext", "search(name: String, size: Int = 50, from: Int = 0)", "[Template]", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Search(ctx, in.String("name"), in.Int("size", 50), in.Int("from", 0))
	})
	reg.DeclareResolver("TemplateContext", "get(id: String!)", "Template", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Get(ctx, in.String("id"))
	})
}
