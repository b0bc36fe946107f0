// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/config"
	"github.com/jackzampolin/problembook/internal/export"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	JobManager *jobs.Manager
	Batches    *batch.Coordinator
	Store      store.Store
	Pages      *pages.Source
	Registry   *providers.Registry
	Config     *config.Manager
	Logger     *slog.Logger
	Home       *home.Dir
	Exporter   *export.Exporter
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

// JobManagerFrom extracts the job manager from context.
func JobManagerFrom(ctx context.Context) *jobs.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.JobManager
	}
	return nil
}

// BatchesFrom extracts the batch coordinator from context.
func BatchesFrom(ctx context.Context) *batch.Coordinator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Batches
	}
	return nil
}

// StoreFrom extracts the result store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// PagesFrom extracts the page text source from context.
func PagesFrom(ctx context.Context) *pages.Source {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pages
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

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ExporterFrom extracts the book exporter from context.
func ExporterFrom(ctx context.Context) *export.Exporter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Exporter
	}
	return nil
}
