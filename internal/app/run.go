package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/solkit/internal/creator"
	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/deployer"
	"github.com/vk/solkit/internal/progress"
	"github.com/vk/solkit/internal/remover"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", cfg.Command, "itemId", cfg.ItemID)

	jobID := cfg.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	switch cfg.Command {
	case CommandDeploy:
		return a.runDeploy(ctx, cfg.ItemID, jobID)
	case CommandDelete:
		return a.runDelete(ctx, cfg.ItemID, jobID)
	case CommandCreate:
		return a.runCreate(ctx, cfg.ItemID)
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func (a *App) runDeploy(ctx context.Context, solutionItemID, jobID string) error {
	d := deployer.New(a.registry, a.repo)
	containerID, err := d.DeployItem(ctx, solutionItemID, deployer.Options{
		JobID:    jobID,
		Name:     a.profile.Deployment.Name,
		Folder:   a.profile.Deployment.Folder,
		Progress: a.logProgress(),
	})
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}
	if containerID == "" {
		a.logger.Warn("Deployment cancelled before completion.")
		return nil
	}
	a.logger.Info("Deployment finished.", "containerId", containerID)
	return nil
}

func (a *App) runDelete(ctx context.Context, solutionItemID, jobID string) error {
	r := remover.New(a.repo)
	removed, err := r.DeleteSolution(ctx, solutionItemID, remover.Options{
		JobID:    jobID,
		Progress: a.logProgress(),
	})
	if err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}
	if !removed {
		a.logger.Warn("Some items could not be removed; container left in place for a re-run.", "containerId", solutionItemID)
		return nil
	}
	a.logger.Info("Solution deleted.", "containerId", solutionItemID)
	return nil
}

func (a *App) runCreate(ctx context.Context, seedItemID string) error {
	c := creator.New(a.registry, a.repo)
	opts := creator.Options{
		Name:   a.profile.Deployment.Name,
		Folder: a.profile.Deployment.Folder,
	}
	sol, err := c.CreateSolution(ctx, seedItemID, opts)
	if err != nil {
		return fmt.Errorf("solution creation failed: %w", err)
	}
	containerID, err := c.PublishSolution(ctx, sol, opts)
	if err != nil {
		return fmt.Errorf("solution creation failed: %w", err)
	}
	a.logger.Info("Solution created.", "containerId", containerID, "templates", len(sol.Templates))
	return nil
}

// logProgress adapts progress events onto the application logger.
func (a *App) logProgress() progress.Callback {
	return func(e progress.Event) {
		a.logger.Info("Progress.",
			"jobId", e.JobID,
			"percent", e.Percent,
			"status", e.Status.String(),
			"itemId", e.ItemID,
			"newItemId", e.NewItemID,
		)
	}
}
