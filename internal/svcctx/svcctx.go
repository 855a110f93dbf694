// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/tradepsych/insight/internal/app"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/home"
	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DB           *sql.DB
	Registry     *providers.Registry
	ConfigStore  config.Store
	Logger       *slog.Logger
	Home         *home.Dir
	MetricsQuery *metrics.Query
	LLMCallStore *llmcall.Store
	// Runtime builds agents from the current settings. Set by the server.
	Runtime func(ctx context.Context) (*app.Runtime, error)
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DBFrom extracts the database handle from context.
func DBFrom(ctx context.Context) *sql.DB {
	if s := ServicesFrom(ctx); s != nil {
		return s.DB
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigStoreFrom extracts the config store from context.
func ConfigStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigStore
	}
	return nil
}

// MetricsQueryFrom extracts the metrics query helper from context.
func MetricsQueryFrom(ctx context.Context) *metrics.Query {
	if s := ServicesFrom(ctx); s != nil {
		return s.MetricsQuery
	}
	return nil
}

// LLMCallStoreFrom extracts the LLM call store from context.
func LLMCallStoreFrom(ctx context.Context) *llmcall.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLMCallStore
	}
	return nil
}

// RuntimeFrom builds a runtime from the services in context.
// Returns nil, nil if no runtime builder is present.
func RuntimeFrom(ctx context.Context) (*app.Runtime, error) {
	if s := ServicesFrom(ctx); s != nil && s.Runtime != nil {
		return s.Runtime(ctx)
	}
	return nil, nil
}
