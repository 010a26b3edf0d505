// Package app wires the pieces together: it owns the logger, loads the
// deployment profile, populates the adapter registry, and runs the
// requested command.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/solkit/internal/config"
	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/registry"
)

// ProfileLoader resolves a profile path into the config model. The
// concrete implementation lives in hclconf; tests substitute their own.
type ProfileLoader interface {
	Load(ctx context.Context, filePath string) (*config.Profile, error)
}

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	profile  *config.Profile
	repo     portal.Repository
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, loader ProfileLoader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	profile, err := loader.Load(ctx, cfg.ProfilePath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load profile: %w", err))
	}
	logger.Debug("Profile loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All adapter modules registered.", "count", len(modules), "types", reg.Types())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		profile:  profile,
		repo: portal.NewClient(portal.ClientConfig{
			BaseURL: profile.Portal.URL,
			Token:   profile.Portal.Token,
			Timeout: profile.Portal.Timeout,
		}),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// SetRepository swaps the remote repository. This is primarily for testing.
func (a *App) SetRepository(repo portal.Repository) {
	a.repo = repo
}
