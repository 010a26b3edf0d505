// Package creator builds a portable Solution from a live item graph: it
// converts a seed item and every dependency the type adapters discover
// into templatized snapshots, arranges them in build order, and persists
// the result as a Solution container item.
package creator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/dependency"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
)

// Options configures Solution creation and publication.
type Options struct {
	// Name is the title for the published Solution container.
	Name string
	// Folder is the destination folder for the container item.
	Folder string
	// Metadata is stored alongside the templates in the container payload.
	Metadata json.RawMessage
}

// Creator converts live items into Solutions.
type Creator struct {
	reg  *registry.Registry
	repo portal.Repository
}

// New creates a Creator that resolves adapters from reg and reads from repo.
func New(reg *registry.Registry, repo portal.Repository) *Creator {
	return &Creator{reg: reg, repo: repo}
}

// CreateSolution converts the seed item and, transitively, every
// dependency id the adapters surface, into a Solution whose templates
// are stored in build order. Each item is converted exactly once no
// matter how many dependents reference it.
func (c *Creator) CreateSolution(ctx context.Context, seedItemID string, opts Options) (*solution.Solution, error) {
	logger := ctxlog.FromContext(ctx)

	var templates []solution.ItemTemplate
	converted := make(map[string]bool)
	queue := []string{seedItemID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if converted[id] {
			continue
		}
		converted[id] = true

		item, err := c.repo.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching item %s: %w", id, err)
		}
		adapter, err := c.reg.Adapter(item.Type)
		if err != nil {
			return nil, err
		}
		tpl, err := adapter.ConvertToTemplate(ctx, id, c.repo)
		if err != nil {
			return nil, fmt.Errorf("converting item %s (%s): %w", id, item.Type, err)
		}
		logger.Debug("Item converted to template.", "itemId", id, "type", item.Type, "dependencies", len(tpl.Dependencies))
		templates = append(templates, tpl)
		queue = append(queue, tpl.Dependencies...)
	}

	order, err := dependency.SortTemplates(templates)
	if err != nil {
		return nil, fmt.Errorf("ordering templates: %w", err)
	}

	sol := &solution.Solution{Metadata: opts.Metadata}
	byID := make(map[string]solution.ItemTemplate, len(templates))
	for _, t := range templates {
		byID[t.ItemID] = t
	}
	for _, id := range order {
		sol.Templates = append(sol.Templates, byID[id])
	}
	logger.Info("Solution assembled.", "seedItemId", seedItemID, "templates", len(sol.Templates))
	return sol, nil
}

// PublishSolution persists the Solution as a container item and returns
// the container's id.
func (c *Creator) PublishSolution(ctx context.Context, sol *solution.Solution, opts Options) (string, error) {
	base, err := json.Marshal(map[string]any{
		"title":         opts.Name,
		"type":          "Solution",
		"typeKeywords":  []string{solution.KeywordSolution, "Template"},
		"schemaVersion": solution.CurrentSchemaVersion,
	})
	if err != nil {
		return "", err
	}
	data, err := sol.Marshal()
	if err != nil {
		return "", err
	}
	created, err := c.repo.AddItem(ctx, portal.NewItem{
		Type:   "Solution",
		Folder: opts.Folder,
		Item:   base,
		Data:   data,
	})
	if err != nil {
		return "", fmt.Errorf("publishing solution %q: %w", opts.Name, err)
	}
	return created.ID, nil
}
