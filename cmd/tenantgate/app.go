package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/auth/apikey"
	"github.com/rhuss/tenantgate/pkg/auth/jwt"
	"github.com/rhuss/tenantgate/pkg/auth/noop"
	"github.com/rhuss/tenantgate/pkg/cache"
	memcache "github.com/rhuss/tenantgate/pkg/cache/memory"
	rediscache "github.com/rhuss/tenantgate/pkg/cache/redis"
	"github.com/rhuss/tenantgate/pkg/config"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/dynauth/httpauth"
	"github.com/rhuss/tenantgate/pkg/dynauth/script"
	"github.com/rhuss/tenantgate/pkg/settings"
	"github.com/rhuss/tenantgate/pkg/storage/memory"
	"github.com/rhuss/tenantgate/pkg/storage/postgres"
	transporthttp "github.com/rhuss/tenantgate/pkg/transport/http"
)

// backend is the storage a deployment runs on. Both the memory and the
// postgres store satisfy it.
type backend interface {
	settings.Store
	dynauth.Registry
	transporthttp.AuthenticatorLister
	PutAuthenticator(ctx context.Context, cfg *api.AuthenticatorConfig) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// app holds the wired components of a running gateway.
type app struct {
	server     *transporthttp.Server
	dispatcher *dynauth.Dispatcher
	store      backend
	closers    []func() error
}

// Close releases the store and cache connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp builds the gateway described by cfg. The caller must Close the
// returned app.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	store, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if err := seed(ctx, cfg, store); err != nil {
		a.Close()
		return nil, err
	}

	c, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	a.dispatcher, err = newDispatcher(store, c, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	adminChain, err := newAdminChain(cfg.Admin)
	if err != nil {
		a.Close()
		return nil, err
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	a.server = transporthttp.NewServer(transporthttp.Routes{
		Settings: transporthttp.NewSettingsHandler(store, cfg.Server.MaxBodyBytes),
		SettingsAuth: &auth.AuthChain{
			Authenticators:  []auth.Authenticator{a.dispatcher},
			DefaultDecision: auth.No,
		},
		Admin:     transporthttp.NewAdminHandler(a.dispatcher, store, cfg.Server.MaxBodyBytes),
		AdminAuth: adminChain,
		Health:    store,
	},
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithLogger(slog.Default()),
	)
	return a, nil
}

func newBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg := cfg.Storage.Postgres
		store, err := postgres.New(ctx, postgres.Config{
			DSN:              pg.DSN,
			MaxConns:         pg.MaxConns,
			StatementTimeout: pg.StatementTimeout,
			MigrateOnStart:   pg.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", pg.MaxConns)
		return store, nil
	default:
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	}
}

// seed writes the configured authenticators into the registry. Settings
// seeds only populate the memory store; a database keeps its own values
// across restarts.
func seed(ctx context.Context, cfg *config.Config, store backend) error {
	authenticators, err := cfg.SeedAuthenticators()
	if err != nil {
		return err
	}
	for _, a := range authenticators {
		if err := store.PutAuthenticator(ctx, a); err != nil {
			return fmt.Errorf("seeding authenticator %s/%s: %w", a.TenantID, a.Name, err)
		}
	}

	if _, ok := store.(*memory.Store); !ok {
		if len(cfg.Settings) > 0 {
			slog.Warn("settings seeds ignored for persistent storage", "count", len(cfg.Settings))
		}
		return nil
	}
	seeds, err := cfg.SeedSettings()
	if err != nil {
		return err
	}
	for _, s := range seeds {
		if _, _, err := store.Upsert(ctx, s); err != nil {
			return fmt.Errorf("seeding setting %s: %w", s.Key, err)
		}
	}
	slog.Info("configuration seeded", "authenticators", len(authenticators), "settings", len(seeds))
	return nil
}

// newCache returns the result cache and its close function, if any.
func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, func() error, error) {
	switch cfg.Type {
	case "none":
		slog.Info("result cache disabled")
		return cache.Noop{}, nil, nil
	case "redis":
		c, err := rediscache.New(rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis cache: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			// Lookups degrade to cache misses until redis is reachable.
			slog.Warn("redis cache unreachable", "addr", cfg.Redis.Addr, "error", err)
		}
		slog.Info("result cache enabled", "type", "redis", "addr", cfg.Redis.Addr)
		return c, c.Close, nil
	default:
		slog.Info("result cache enabled", "type", "memory", "max_entries", cfg.MaxEntries)
		return memcache.New(cfg.MaxEntries), nil, nil
	}
}

// newExecutors returns the HTTP and script executors. Scripts share the
// HTTP executor for fetch.
func newExecutors(cfg config.DynAuthConfig) []dynauth.Executor {
	httpExec := httpauth.New(httpauth.Config{Timeout: cfg.HTTPTimeout})
	scriptExec := script.New(script.Config{
		Timeout: cfg.ScriptTimeout,
		Fetcher: httpExec,
	})
	return []dynauth.Executor{httpExec, scriptExec}
}

func newDispatcher(registry dynauth.Registry, c cache.Cache, cfg *config.Config) (*dynauth.Dispatcher, error) {
	d, err := dynauth.New(registry, c, dynauth.Config{
		DefaultName:       cfg.DynAuth.DefaultName,
		TenantHeader:      cfg.DynAuth.TenantHeader,
		NameHeader:        cfg.DynAuth.NameHeader,
		CredentialHeaders: cfg.DynAuth.CredentialHeaders,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Executors:         newExecutors(cfg.DynAuth),
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	return d, nil
}

// newAdminChain builds the operator authentication chain of the admin API.
func newAdminChain(cfg config.AdminConfig) (*auth.AuthChain, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth {
	case "none", "":
		slog.Warn("admin API authentication disabled, every caller is an unrestricted operator")
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{Secret: k.Key, Subject: k.Subject, Scope: k.Operator()})
		}
		authn, err := apikey.New(keys)
		if err != nil {
			return nil, fmt.Errorf("admin api keys: %w", err)
		}
		chain.Authenticators = []auth.Authenticator{authn}
		slog.Info("admin API authentication enabled", "type", "apikey", "keys", len(keys))
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			JWKSURL:       cfg.JWT.JWKSURL,
			SubjectClaim:  cfg.JWT.SubjectClaim,
			TenantClaim:   cfg.JWT.TenantClaim,
			OperatorClaim: cfg.JWT.OperatorClaim,
		})}
		slog.Info("admin API authentication enabled", "type", "jwt", "issuer", cfg.JWT.Issuer)
	default:
		return nil, fmt.Errorf("unknown admin auth type %q", cfg.Auth)
	}
	return chain, nil
}
