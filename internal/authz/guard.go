package authz

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/eventbus"
	"github.com/hanpama/graphcms/internal/events"
	"github.com/hanpama/graphcms/internal/executor"
)

// Guard returns a Runtime that checks reqs before letting a field reach base.
// A refused field resolves to an AuthorizationError; base is never called for
// it, so no storage work happens on its behalf. Unguarded fields pass through
// untouched.
func Guard(base executor.Runtime, reqs *Requirements, log zerolog.Logger) executor.Runtime {
	return &guard{base: base, reqs: reqs, log: log}
}

type guard struct {
	base executor.Runtime
	reqs *Requirements
	log  zerolog.Logger
}

func (g *guard) check(ctx context.Context, typeName, field string) error {
	req, ok := g.reqs.Required(typeName, field)
	if !ok {
		return nil
	}
	id, known := FromContext(ctx)
	if id.Level().Satisfies(req) {
		return nil
	}
	err := &errs.AuthorizationError{Type: typeName, Field: field, Required: req.String(), Anonymous: !known}
	ev := g.log.Debug().Str("type", typeName).Str("field", field).Stringer("requires", req)
	if known {
		ev = ev.Str("username", id.Username)
	}
	ev.Msg("authorization denied")
	eventbus.Publish(ctx, events.AuthorizationDenied{
		Type:      typeName,
		Field:     field,
		Required:  req.String(),
		Anonymous: !known,
	})
	return err
}

func (g *guard) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if err := g.check(ctx, objectType, field); err != nil {
		return nil, err
	}
	return g.base.ResolveSync(ctx, objectType, field, source, args)
}

func (g *guard) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	out := make([]executor.AsyncResolveResult, len(tasks))
	allowed := make([]executor.AsyncResolveTask, 0, len(tasks))
	index := make([]int, 0, len(tasks))
	for i, t := range tasks {
		if err := g.check(ctx, t.ObjectType, t.Field); err != nil {
			out[i].Error = err
			continue
		}
		allowed = append(allowed, t)
		index = append(index, i)
	}
	if len(allowed) == 0 {
		return out
	}
	for j, res := range g.base.BatchResolveAsync(ctx, allowed) {
		out[index[j]] = res
	}
	return out
}

func (g *guard) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return g.base.ResolveType(ctx, abstractType, value)
}

func (g *guard) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return g.base.SerializeLeafValue(ctx, typ, value)
}
