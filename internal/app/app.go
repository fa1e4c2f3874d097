// Package app wires configuration, storage and the feature modules into a
// running service.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	config "github.com/hanpama/graphcms/internal/config"
	eventbus "github.com/hanpama/graphcms/internal/eventbus"
	events "github.com/hanpama/graphcms/internal/events"
	materialize "github.com/hanpama/graphcms/internal/materialize"
	metrics "github.com/hanpama/graphcms/internal/metrics"
	"github.com/hanpama/graphcms/internal/modules/file"
	"github.com/hanpama/graphcms/internal/modules/item"
	"github.com/hanpama/graphcms/internal/modules/key"
	"github.com/hanpama/graphcms/internal/modules/template"
	"github.com/hanpama/graphcms/internal/modules/user"
	otel "github.com/hanpama/graphcms/internal/otel"
	registry "github.com/hanpama/graphcms/internal/registry"
	server "github.com/hanpama/graphcms/internal/server"
	validate "github.com/hanpama/graphcms/internal/validate"
)

// Modules are the feature modules contributing to the schema.
type Modules struct {
	Keys      *key.Module
	Items     *item.Module
	Templates *template.Module
	Users     *user.Module
	Files     *file.Module
}

// NewModules builds every feature module on s.
func NewModules(cfg *config.Config, s *Stores, log zerolog.Logger) (*Modules, error) {
	keys := key.New(s.DB, validate.NewEngine(), log)
	users, err := user.New(s.DB, user.Options{
		CacheSize: cfg.Auth.CacheSize,
		Header:    cfg.Auth.Header,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("user module: %w", err)
	}
	return &Modules{
		Keys:      keys,
		Items:     item.New(s.DB, s.Index, keys, log),
		Templates: template.New(s.DB, s.Index, keys, log),
		Users:     users,
		Files: file.New(s.Objects, file.Options{
			Secret:    []byte(cfg.Upload.Secret),
			Expiry:    cfg.Upload.Expiry,
			Tolerance: cfg.Upload.SizeTolerance,
			PublicURL: cfg.Upload.PublicURL,
		}, log),
	}, nil
}

// Register contributes every module's declarations to reg.
func (m *Modules) Register(reg *registry.SchemaRegistry) {
	m.Keys.Register(reg)
	m.Items.Register(reg)
	m.Templates.Register(reg)
	m.Users.Register(reg)
	m.Files.Register(reg)
}

// Seed writes the records every installation starts with.
func (m *Modules) Seed(ctx context.Context, cfg *config.Config) error {
	if err := m.Keys.Seed(ctx); err != nil {
		return fmt.Errorf("seed keys: %w", err)
	}
	if err := m.Templates.Seed(ctx); err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	if cfg.Auth.AdminPassword != "" {
		if err := m.Users.SeedAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	return nil
}

// App is the assembled service.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	bus      *eventbus.Bus
	stores   *Stores
	modules  *Modules
	mat      *materialize.Materializer
	metrics  *metrics.Collector
	router   chi.Router
	shutdown []func(context.Context) error
}

// New assembles the service on stores. The bus becomes the global bus, so
// only one App should exist per process.
func New(ctx context.Context, cfg *config.Config, stores *Stores, log zerolog.Logger) (*App, error) {
	bus := eventbus.New()
	eventbus.Use(bus)

	mods, err := NewModules(cfg, stores, log)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	mods.Register(reg)

	a := &App{
		cfg:     cfg,
		log:     log.With().Str("component", "app").Logger(),
		bus:     bus,
		stores:  stores,
		modules: mods,
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		detach := a.metrics.Attach(bus)
		a.shutdown = append(a.shutdown, func(context.Context) error { detach(); return nil })
	}
	stopTracing, err := otel.Setup(ctx, bus, cfg.Tracing.Endpoint, cfg.Tracing.Service)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.shutdown = append(a.shutdown, stopTracing)

	a.mat = materialize.New(reg, materialize.Options{
		Server: serverOptions(cfg, mods.Users),
		Bus:    bus,
		Logger: log,
	})
	a.router = a.routes()
	return a, nil
}

func serverOptions(cfg *config.Config, users *user.Module) []server.Option {
	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithIdentity(users.Identify),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORS.AllowedOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORS.AllowedOrigins...))
	}
	return opts
}

func (a *App) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle(a.cfg.Server.Path, a.mat)
	a.modules.Files.Routes(r)
	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	}
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, map[string]string{"status": "ok"}
	select {
	case <-a.mat.Ready():
		if err := a.mat.Err(); err != nil {
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "failed", "error": err.Error()}
		}
	default:
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "starting"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Handler is the HTTP surface of the service.
func (a *App) Handler() http.Handler { return a.router }

// Modules returns the feature modules.
func (a *App) Modules() *Modules { return a.modules }

// Start seeds the stores and announces startup. It returns once the schema
// is composed; a composition failure is returned as is.
func (a *App) Start(ctx context.Context) error {
	if err := a.modules.Seed(ctx, a.cfg); err != nil {
		return err
	}
	eventbus.Emit(a.bus, ctx, events.AppStarted{At: time.Now()})
	if _, err := a.mat.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// Serve listens on the configured address until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Str("path", a.cfg.Server.Path).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Close releases telemetry and storage.
func (a *App) Close(ctx context.Context) error {
	var errList []error
	for _, f := range a.shutdown {
		errList = append(errList, f(ctx))
	}
	errList = append(errList, a.stores.Close())
	if eventbus.Default() == a.bus {
		eventbus.Use(nil)
	}
	return errors.Join(errList...)
}

// Document composes the schema of every module over throwaway stores and
// returns its SDL.
func Document(cfg *config.Config) (string, error) {
	mods, err := NewModules(cfg, MemoryStores(), zerolog.Nop())
	if err != nil {
		return "", err
	}
	reg := registry.New()
	mods.Register(reg)
	res, err := materialize.Compose(reg, materialize.Options{Logger: zerolog.Nop()})
	if err != nil {
		return "", err
	}
	return res.Document, nil
}
