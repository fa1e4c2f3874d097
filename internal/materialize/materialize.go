// Package materialize turns a populated registry into the served schema.
//
// Materialization happens once. The Materializer subscribes to AppStarted and
// answers 503 until the schema is built; a composition failure is permanent.
package materialize

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/dispatch"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/eventbus"
	"github.com/hanpama/graphcms/internal/events"
	"github.com/hanpama/graphcms/internal/executor"
	"github.com/hanpama/graphcms/internal/introspection"
	"github.com/hanpama/graphcms/internal/language"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/schema"
	"github.com/hanpama/graphcms/internal/server"
)

// Options configures composition.
type Options struct {
	// Base holds extra SDL definitions appended after the fixed prelude.
	Base     []string
	Dispatch []dispatch.Option
	Server   []server.Option
	// Bus carries AppStarted and SchemaMaterialized. Nil uses the global bus.
	Bus    *eventbus.Bus
	Logger zerolog.Logger
}

// Result is a materialized schema with everything needed to serve it.
type Result struct {
	Document     string
	AST          *language.Schema
	Schema       *schema.Schema
	Table        *registry.Table
	Requirements *authz.Requirements
	Runtime      executor.Runtime
	Handler      *server.Handler
}

// Compose freezes reg and compiles its document. Every failure before the
// handler exists is returned as a *errs.CompositionError.
func Compose(reg *registry.SchemaRegistry, opts Options) (*Result, error) {
	doc, err := reg.Document(append([]string{authz.SDL, dispatch.ScalarSDL}, opts.Base...)...)
	if err != nil {
		return nil, composition(err)
	}
	table, err := reg.Freeze()
	if err != nil {
		return nil, composition(err)
	}
	src, err := language.LoadSchema(&language.Source{Name: "schema.graphql", Input: doc})
	if err != nil {
		return nil, composition(err)
	}
	sch, err := schema.BuildFromAST(src, table.Has)
	if err != nil {
		return nil, composition(err)
	}
	reqs, err := authz.Collect(sch)
	if err != nil {
		return nil, composition(err)
	}

	log := opts.Logger
	base := dispatch.New(table, sch, append([]dispatch.Option{dispatch.WithLogger(log)}, opts.Dispatch...)...)
	rt := authz.Guard(introspection.Wrap(base, sch), reqs, log)

	srvOpts := append([]server.Option{server.WithValidation(src), server.WithLogger(log)}, opts.Server...)
	h, err := server.New(rt, sch, srvOpts...)
	if err != nil {
		return nil, err
	}
	return &Result{
		Document:     doc,
		AST:          src,
		Schema:       sch,
		Table:        table,
		Requirements: reqs,
		Runtime:      rt,
		Handler:      h,
	}, nil
}

// Execute validates and runs one operation against the composed schema.
func (r *Result) Execute(ctx context.Context, query string, vars map[string]any) *executor.ExecutionResult {
	doc, gerrs := language.LoadQuery(r.AST, query)
	if len(gerrs) > 0 {
		out := &executor.ExecutionResult{Errors: make([]executor.GraphQLError, len(gerrs))}
		for i, e := range gerrs {
			out.Errors[i] = executor.GraphQLError{Message: e.Message}
		}
		return out
	}
	return executor.NewExecutor(r.Runtime, r.Schema).ExecuteRequest(ctx, doc, "", vars, nil)
}

func composition(err error) error {
	var ce *errs.CompositionError
	if errors.As(err, &ce) {
		return ce
	}
	var list language.ErrorList
	if errors.As(err, &list) {
		out := make([]error, len(list))
		for i, e := range list {
			out[i] = e
		}
		return &errs.CompositionError{Errors: out}
	}
	return &errs.CompositionError{Errors: []error{err}}
}

// Materializer composes the schema on the first AppStarted event and serves
// it from then on.
type Materializer struct {
	reg   *registry.SchemaRegistry
	opts  Options
	log   zerolog.Logger
	ready chan struct{}
	once  sync.Once
	res   atomic.Pointer[Result]
	err   error
	bus   *eventbus.Bus
	unsub func()
}

func New(reg *registry.SchemaRegistry, opts Options) *Materializer {
	m := &Materializer{
		reg:   reg,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "materialize").Logger(),
		ready: make(chan struct{}),
	}
	m.bus = opts.Bus
	if m.bus == nil {
		m.bus = eventbus.Default()
	}
	m.unsub = eventbus.Once(m.bus, func(ctx context.Context, e events.AppStarted) {
		m.Build(ctx)
	})
	return m
}

// Build composes the schema unless that already happened. It is what the
// AppStarted subscription calls.
func (m *Materializer) Build(ctx context.Context) {
	m.once.Do(func() {
		m.unsub()
		start := time.Now()
		res, err := Compose(m.reg, m.opts)
		d := time.Since(start)
		if err != nil {
			m.err = err
			m.log.Error().Err(err).Msg("schema composition failed")
		} else {
			m.res.Store(res)
			m.log.Info().
				Int("types", len(res.Schema.Types)).
				Int("guarded_fields", res.Requirements.Len()).
				Dur("duration", d).
				Msg("schema materialized")
		}
		eventbus.Emit(m.bus, ctx, events.SchemaMaterialized{Types: typeCount(res), Err: err, Duration: d})
		close(m.ready)
	})
}

func typeCount(res *Result) int {
	if res == nil {
		return 0
	}
	return len(res.Schema.Types)
}

// Ready is closed once Build finished, successfully or not.
func (m *Materializer) Ready() <-chan struct{} { return m.ready }

// Err returns the composition error, if any. Only meaningful after Ready.
func (m *Materializer) Err() error {
	select {
	case <-m.ready:
		return m.err
	default:
		return nil
	}
}

// Result returns the composed schema, or nil before a successful Build.
func (m *Materializer) Result() *Result { return m.res.Load() }

// Wait blocks until Build finished or ctx is done.
func (m *Materializer) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-m.ready:
		if m.err != nil {
			return nil, m.err
		}
		return m.res.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Materializer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := m.res.Load()
	if res == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"` + errs.ErrNotReady.Error() + `"}]}` + "\n"))
		return
	}
	res.Handler.ServeHTTP(w, r)
}
