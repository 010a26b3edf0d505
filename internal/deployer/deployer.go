// Package deployer drives the creation orchestration: it walks a
// Solution's build order one template at a time, interpolates each
// template against the run's dictionary, delegates materialization to
// the item-type adapters, and implements the two-checkpoint cancellation
// and rollback contract.
package deployer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/dependency"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/progress"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
)

// Options configures one deployment run.
type Options struct {
	// JobID identifies the run in progress events.
	JobID string
	// Name is the title given to the deployed container item.
	Name string
	// Folder is the destination folder for created items, when the
	// repository supports folders.
	Folder string
	// Progress receives report-only events. May be nil.
	Progress progress.Callback
	// Token is polled at the pre-create and post-create checkpoints.
	// May be nil, in which case the run never cancels.
	Token *progress.Token
}

// Deployer materializes Solutions against a destination repository.
type Deployer struct {
	reg  *registry.Registry
	repo portal.Repository
}

// New creates a Deployer that resolves adapters from reg and talks to repo.
func New(reg *registry.Registry, repo portal.Repository) *Deployer {
	return &Deployer{reg: reg, repo: repo}
}

// DeployItem fetches a persisted Solution container by id and deploys it.
func (d *Deployer) DeployItem(ctx context.Context, solutionItemID string, opts Options) (string, error) {
	item, err := d.repo.GetItem(ctx, solutionItemID)
	if err != nil {
		return "", fmt.Errorf("fetching solution %s: %w", solutionItemID, err)
	}
	if !hasKeyword(item.TypeKeywords, solution.KeywordSolution) {
		return "", fmt.Errorf("item %s is not a Solution", solutionItemID)
	}
	raw, err := d.repo.GetItemData(ctx, solutionItemID)
	if err != nil {
		return "", fmt.Errorf("fetching solution %s payload: %w", solutionItemID, err)
	}
	sol, err := solution.Unmarshal(raw)
	if err != nil {
		return "", err
	}
	if opts.Name == "" {
		opts.Name = item.Title
	}
	return d.Deploy(ctx, sol, schemaVersionOf(item), opts)
}

// Deploy materializes every template of the Solution in dependency
// order and returns the id of the deployed container item.
//
// Items are created strictly sequentially: a dependent's placeholders
// resolve against dictionary entries only its dependencies can have
// populated. Cancellation via the options token takes effect at the next
// checkpoint only. Cancelling before an item's creation leaves earlier
// items in place and reports this and all remaining items as Ignored;
// cancelling after an item's creation tears that item down first. Both
// cancellation paths resolve with an empty id and no error. An adapter
// failure aborts the remaining build order and is returned to the caller.
func (d *Deployer) Deploy(ctx context.Context, sol *solution.Solution, schemaVersion int, opts Options) (string, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := dependency.BuildOrder(sol, schemaVersion)
	if err != nil {
		return "", fmt.Errorf("computing build order: %w", err)
	}
	logger.Debug("Build order computed.", "items", len(order))

	// One extra weight unit accounts for the container item itself.
	tracker := progress.NewTracker(sol.TotalCostWeight()+1, opts.JobID, opts.Progress)
	dict := templatize.NewDictionary()

	containerID, err := d.createContainer(ctx, sol, order, opts)
	if err != nil {
		tracker.Complete(progress.Failed)
		return "", err
	}
	logger.Debug("Deployed solution container created.", "containerId", containerID)

	for i, id := range order {
		tpl, ok := sol.Template(id)
		if !ok {
			// Build order always derives from the template set, so a
			// missing template means the payload was modified mid-run.
			tracker.Complete(progress.Failed)
			return "", fmt.Errorf("build order names unknown template %q", id)
		}
		weight := tpl.CostWeight()

		// Pre-create checkpoint: stopping here is cheap, nothing is
		// rolled back and nothing further is attempted.
		if opts.Token.Cancelled() {
			logger.Info("Deployment cancelled before item creation.", "itemId", id)
			d.ignoreRemaining(tracker, sol, order[i:])
			tracker.Complete(progress.Cancelled)
			return "", nil
		}
		tracker.Report(id, "", progress.Started)

		created, err := d.createItem(ctx, tpl, dict)
		if err != nil {
			logger.Error("Item creation failed, aborting deployment.", "itemId", id, "error", err)
			tracker.Advance(weight, id, "", progress.Failed)
			tracker.Complete(progress.Failed)
			return "", fmt.Errorf("creating item %s (%s): %w", id, tpl.Type, err)
		}

		entry := templatize.Entry{
			templatize.FieldItemID: created.ID,
		}
		if created.URL != "" {
			entry[templatize.FieldURL] = created.URL
		}
		for k, v := range created.Extra {
			entry[k] = v
		}
		dict.Set(id, entry)

		if err := d.shareToGroups(ctx, tpl, created.ID, dict); err != nil {
			tracker.Advance(weight, id, created.ID, progress.Failed)
			tracker.Complete(progress.Failed)
			return "", fmt.Errorf("sharing item %s: %w", id, err)
		}

		tracker.Advance(weight, id, created.ID, progress.Finished)

		// Post-create checkpoint: a concrete resource now exists, so
		// cancelling here must tear it down rather than orphan it.
		if opts.Token.Cancelled() {
			logger.Info("Deployment cancelled after item creation, tearing down.", "itemId", id, "newItemId", created.ID)
			if err := d.removeItem(ctx, tpl.Type, created.ID); err != nil {
				tracker.Complete(progress.Failed)
				return "", fmt.Errorf("tearing down item %s after cancellation: %w", created.ID, err)
			}
			tracker.Report(id, created.ID, progress.Cancelled)
			if i+1 < len(order) {
				d.ignoreRemaining(tracker, sol, order[i+1:])
			}
			tracker.Complete(progress.Cancelled)
			return "", nil
		}
	}

	if err := d.finalizeContainer(ctx, containerID, sol, order, dict); err != nil {
		tracker.Complete(progress.Failed)
		return "", err
	}
	tracker.Advance(1, containerID, containerID, progress.Finished)
	tracker.Complete(progress.Finished)
	logger.Info("Deployment finished.", "containerId", containerID, "items", len(order))
	return containerID, nil
}

// createItem interpolates the template's payloads against the current
// dictionary and delegates materialization to the type's adapter.
func (d *Deployer) createItem(ctx context.Context, tpl solution.ItemTemplate, dict *templatize.Dictionary) (portal.CreatedItem, error) {
	adapter, err := d.reg.Adapter(tpl.Type)
	if err != nil {
		return portal.CreatedItem{}, err
	}
	if tpl.Item, err = templatize.Interpolate(tpl.Item, dict); err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating item payload: %w", err)
	}
	if tpl.Data, err = templatize.Interpolate(tpl.Data, dict); err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating data payload: %w", err)
	}
	if tpl.Properties, err = templatize.Interpolate(tpl.Properties, dict); err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating properties payload: %w", err)
	}
	return adapter.CreateFromTemplate(ctx, tpl, dict, d.repo)
}

// shareToGroups shares a newly created item into the already-created
// groups its template names. Group ids resolve through the dictionary;
// a group that was never part of this Solution is skipped.
func (d *Deployer) shareToGroups(ctx context.Context, tpl solution.ItemTemplate, newID string, dict *templatize.Dictionary) error {
	for _, groupID := range tpl.Groups {
		newGroupID, ok := dict.Resolve(groupID, templatize.FieldItemID)
		if !ok {
			continue
		}
		if err := d.repo.ShareItems(ctx, newGroupID, []string{newID}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) removeItem(ctx context.Context, itemType, itemID string) error {
	adapter, err := d.reg.Adapter(itemType)
	if err != nil {
		return err
	}
	return adapter.Remove(ctx, itemID, d.repo)
}

// ignoreRemaining reports every not-yet-started item as Ignored,
// advancing their weights so the run still terminates at 100 percent.
func (d *Deployer) ignoreRemaining(tracker *progress.Tracker, sol *solution.Solution, ids []string) {
	for _, id := range ids {
		weight := 1.0
		if tpl, ok := sol.Template(id); ok {
			weight = tpl.CostWeight()
		}
		tracker.Advance(weight, id, "", progress.Ignored)
	}
}

// createContainer creates the deployed Solution record that will own the
// run's items. Its payload is written up front so that a failed or
// cancelled run still leaves a container the deletion orchestrator can
// resolve members from.
func (d *Deployer) createContainer(ctx context.Context, sol *solution.Solution, order []string, opts Options) (string, error) {
	base, err := json.Marshal(map[string]any{
		"title":         opts.Name,
		"type":          "Solution",
		"typeKeywords":  []string{solution.KeywordSolution, solution.KeywordDeployed},
		"schemaVersion": solution.CurrentSchemaVersion,
	})
	if err != nil {
		return "", err
	}
	data, err := orderedPayload(sol, order)
	if err != nil {
		return "", err
	}
	created, err := d.repo.AddItem(ctx, portal.NewItem{
		Type:   "Solution",
		Folder: opts.Folder,
		Item:   base,
		Data:   data,
	})
	if err != nil {
		return "", fmt.Errorf("creating solution container: %w", err)
	}
	return created.ID, nil
}

// finalizeContainer rewrites the container payload after all members
// exist. The persisted templates must name the ids this run created,
// not the source ids: the deletion orchestrator resolves members from
// this record.
func (d *Deployer) finalizeContainer(ctx context.Context, containerID string, sol *solution.Solution, order []string, dict *templatize.Dictionary) error {
	data, err := deployedPayload(sol, order, dict)
	if err != nil {
		return err
	}
	if err := d.repo.UpdateItem(ctx, containerID, nil, data); err != nil {
		return fmt.Errorf("updating solution container %s: %w", containerID, err)
	}
	return nil
}

// deployedPayload serializes the Solution as deployed: templates in
// build order, with every template id, reference list, and payload
// rewritten through the run's dictionary.
func deployedPayload(sol *solution.Solution, order []string, dict *templatize.Dictionary) (json.RawMessage, error) {
	deployed := solution.Solution{Metadata: sol.Metadata}
	deployed.Templates = make([]solution.ItemTemplate, 0, len(order))
	for _, id := range order {
		tpl, ok := sol.Template(id)
		if !ok {
			continue
		}
		if newID, ok := dict.Resolve(id, templatize.FieldItemID); ok {
			tpl.ItemID = newID
		}
		tpl.Dependencies = resolveIDs(tpl.Dependencies, dict)
		tpl.Groups = resolveIDs(tpl.Groups, dict)
		var err error
		if tpl.Item, err = templatize.Interpolate(tpl.Item, dict); err != nil {
			return nil, fmt.Errorf("resolving item payload for %s: %w", id, err)
		}
		if tpl.Data, err = templatize.Interpolate(tpl.Data, dict); err != nil {
			return nil, fmt.Errorf("resolving data payload for %s: %w", id, err)
		}
		if tpl.Properties, err = templatize.Interpolate(tpl.Properties, dict); err != nil {
			return nil, fmt.Errorf("resolving properties payload for %s: %w", id, err)
		}
		deployed.Templates = append(deployed.Templates, tpl)
	}
	return deployed.Marshal()
}

// resolveIDs maps each id through the dictionary, keeping ids the run
// never created (dangling references) as they are.
func resolveIDs(ids []string, dict *templatize.Dictionary) []string {
	if len(ids) == 0 {
		return ids
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id
		if newID, ok := dict.Resolve(id, templatize.FieldItemID); ok {
			out[i] = newID
		}
	}
	return out
}

// orderedPayload serializes the Solution with its templates arranged in
// build order, the persisted convention from schema version 1 on.
func orderedPayload(sol *solution.Solution, order []string) (json.RawMessage, error) {
	ordered := solution.Solution{Metadata: sol.Metadata}
	ordered.Templates = make([]solution.ItemTemplate, 0, len(order))
	for _, id := range order {
		if tpl, ok := sol.Template(id); ok {
			ordered.Templates = append(ordered.Templates, tpl)
		}
	}
	return ordered.Marshal()
}

func hasKeyword(keywords []string, want string) bool {
	for _, kw := range keywords {
		if kw == want {
			return true
		}
	}
	return false
}

// schemaVersionOf extracts the container's schemaVersion property.
// Containers that predate versioning report 0.
func schemaVersionOf(item portal.Item) int {
	var probe struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if len(item.Raw) > 0 {
		_ = json.Unmarshal(item.Raw, &probe)
	}
	return probe.SchemaVersion
}
