package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/tradepsych/insight/internal/app"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/home"
	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/store"
)

// localEnv is what run and refine need to call agents without a server.
// Settings and call history share the server's home database.
type localEnv struct {
	home     *home.Dir
	cfg      *config.Manager
	db       *sql.DB
	settings config.Store
	registry *providers.Registry
	calls    *llmcall.Recorder
	logger   *slog.Logger
}

func openLocal(ctx context.Context) (*localEnv, error) {
	logger := newLogger(os.Stderr, slog.LevelWarn)

	h, err := loadHome()
	if err != nil {
		return nil, err
	}
	cfgMgr, err := loadConfig(h, logger)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, h.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}
	settings := config.NewStore(db)
	if err := config.SeedDefaults(ctx, settings, logger); err != nil {
		db.Close()
		return nil, err
	}

	rc, err := config.StoreToProviderRegistryConfig(ctx, settings, cfgMgr.Get().ToProviderRegistryConfig())
	if err != nil {
		db.Close()
		return nil, err
	}
	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Reload(rc)

	return &localEnv{
		home:     h,
		cfg:      cfgMgr,
		db:       db,
		settings: settings,
		registry: registry,
		calls:    llmcall.NewRecorder(llmcall.NewStore(db), logger),
		logger:   logger,
	}, nil
}

// runtime builds agents from the stored settings with flag overrides.
func (e *localEnv) runtime(ctx context.Context, override *config.LLMSettingsPatch) (*app.Runtime, error) {
	return app.Build(ctx, app.Deps{
		Providers: e.registry,
		Settings:  e.settings,
		Config:    e.cfg.Get,
		Calls:     e.calls,
		Tracer:    otel.Tracer("github.com/tradepsych/insight/cmd/insight"),
		Logger:    e.logger,
		Override:  override,
	})
}

func (e *localEnv) Close() {
	e.calls.Close()
	if err := e.db.Close(); err != nil {
		e.logger.Warn("failed to close database", "error", err)
	}
}

// overrideFlags are the per-command settings overrides shared by run and refine.
type overrideFlags struct {
	model       string
	provider    string
	temperature float64
}

func (o *overrideFlags) patch(changed func(string) bool) *config.LLMSettingsPatch {
	p := &config.LLMSettingsPatch{}
	if changed("model") {
		p.Model = &o.model
	}
	if changed("provider") {
		p.Provider = &o.provider
	}
	if changed("temperature") {
		p.Temperature = &o.temperature
	}
	return p
}
