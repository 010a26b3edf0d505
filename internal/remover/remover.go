// Package remover tears down a deployed Solution: its member items in
// reverse build order first, then the container record, but only when
// every member was removed. A container left behind makes a repeat
// invocation safe, because re-deleting an already-absent item is
// reported as Ignored rather than as a failure.
package remover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/dependency"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/progress"
	"github.com/vk/solkit/internal/solution"
)

// Options configures one deletion run.
type Options struct {
	// JobID identifies the run in progress events.
	JobID string
	// Progress receives report-only events. May be nil.
	Progress progress.Callback
}

// Remover deletes deployed Solutions from a repository.
type Remover struct {
	repo portal.Repository
}

// New creates a Remover operating against repo.
func New(repo portal.Repository) *Remover {
	return &Remover{repo: repo}
}

// DeleteSolution removes a deployed Solution and all of the items
// created as part of its deployment. The boolean result reports whether
// every member item (and therefore the container) was removed; a false
// result with a nil error means the pass was best-effort incomplete and
// can be retried. Only genuinely malformed input — a missing container
// or one that is not a deployed Solution — returns an error.
func (r *Remover) DeleteSolution(ctx context.Context, solutionItemID string, opts Options) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	item, err := r.repo.GetItem(ctx, solutionItemID)
	if err != nil {
		return false, fmt.Errorf("fetching solution %s: %w", solutionItemID, err)
	}
	if !solution.IsDeployed(item.TypeKeywords) {
		return false, fmt.Errorf("item %s is not a deployed Solution", solutionItemID)
	}
	raw, err := r.repo.GetItemData(ctx, solutionItemID)
	if err != nil {
		return false, fmt.Errorf("fetching solution %s payload: %w", solutionItemID, err)
	}
	sol, err := solution.Unmarshal(raw)
	if err != nil {
		return false, err
	}

	// Legacy payloads stored templates in arbitrary order; reconstruct
	// their build order before reversing it into the delete order.
	buildOrder, err := dependency.BuildOrder(sol, schemaVersionOf(item))
	if err != nil {
		return false, fmt.Errorf("computing delete order: %w", err)
	}
	deleteOrder := dependency.Reverse(buildOrder)

	// One weight unit per member, one for starting, one for the container.
	tracker := progress.NewTracker(float64(len(deleteOrder)+2), opts.JobID, opts.Progress)
	tracker.Advance(1, "", "", progress.Started)

	allRemoved := r.RemoveItems(ctx, deleteOrder, tracker)

	if !allRemoved {
		// Leave the container (and the stragglers) for a retry run.
		logger.Warn("Not all solution items were removed; container retained.", "solutionId", solutionItemID)
		tracker.Complete(progress.Finished)
		return false, nil
	}

	if err := r.removeOne(ctx, solutionItemID); err != nil {
		logger.Error("Failed to remove solution container.", "solutionId", solutionItemID, "error", err)
		tracker.Complete(progress.Failed)
		return false, nil
	}
	tracker.Complete(progress.Finished)
	logger.Info("Solution deleted.", "solutionId", solutionItemID, "items", len(deleteOrder))
	return true, nil
}

// RemoveItems deletes the given items one at a time, in order, and
// reports whether every removal succeeded. An item that is already
// absent counts as success (Ignored); any other failure is recorded
// (Failed) and the pass continues with the remaining items.
func (r *Remover) RemoveItems(ctx context.Context, ids []string, tracker *progress.Tracker) bool {
	logger := ctxlog.FromContext(ctx)
	allRemoved := true
	for _, id := range ids {
		err := r.removeOne(ctx, id)
		switch {
		case err == nil:
			tracker.Advance(1, id, "", progress.Finished)
		case portal.IsItemNotFound(err):
			// Already satisfied, typically by a previous delete attempt.
			logger.Debug("Item already absent, ignoring.", "itemId", id)
			tracker.Advance(1, id, "", progress.Ignored)
		default:
			logger.Error("Failed to remove item.", "itemId", id, "error", err)
			tracker.Advance(1, id, "", progress.Failed)
			allRemoved = false
		}
	}
	return allRemoved
}

// removeOne clears delete protection and removes a single item. An
// unprotect failure on an already-absent item surfaces through the
// removal attempt instead.
func (r *Remover) removeOne(ctx context.Context, itemID string) error {
	if err := r.repo.UnprotectItem(ctx, itemID); err != nil && !portal.IsItemNotFound(err) {
		return fmt.Errorf("unprotecting: %w", err)
	}
	return r.repo.RemoveItem(ctx, itemID)
}

func schemaVersionOf(item portal.Item) int {
	var probe struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if len(item.Raw) > 0 {
		_ = json.Unmarshal(item.Raw, &probe)
	}
	return probe.SchemaVersion
}
