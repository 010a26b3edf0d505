// Package group implements the adapter for Group containers. A group's
// members become template dependencies so they are built first, and
// creation is a two-step unit: create the group, then share the already
// created members into it.
package group

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
)

// ItemType is the content type this adapter handles.
const ItemType = "Group"

// Module wires the group adapter into a registry.
type Module struct{}

func (m *Module) Register(r *registry.Registry) {
	r.RegisterAdapter(ItemType, &Adapter{})
}

// Adapter converts and materializes Group containers.
type Adapter struct{}

var _ registry.ItemAdapter = (*Adapter)(nil)

// ConvertToTemplate snapshots the group's base record and lists its
// members as dependencies.
func (a *Adapter) ConvertToTemplate(ctx context.Context, itemID string, repo portal.Repository) (solution.ItemTemplate, error) {
	item, err := repo.GetItem(ctx, itemID)
	if err != nil {
		return solution.ItemTemplate{}, err
	}
	members, err := repo.GetGroupContent(ctx, itemID)
	if err != nil {
		return solution.ItemTemplate{}, fmt.Errorf("listing members of group %s: %w", itemID, err)
	}

	base, err := templatize.Templatize(item.Raw, itemID, templatize.SuffixItemID)
	if err != nil {
		return solution.ItemTemplate{}, fmt.Errorf("templatizing group %s: %w", itemID, err)
	}
	tpl := solution.ItemTemplate{
		ItemID:       itemID,
		Type:         ItemType,
		Key:          solution.Camelize(item.Title),
		Item:         base,
		Dependencies: members,
	}
	return tpl, nil
}

// CreateFromTemplate creates the group and shares the template's member
// items into it. Members without a dictionary entry were not part of
// this deployment and are skipped.
func (a *Adapter) CreateFromTemplate(ctx context.Context, tpl solution.ItemTemplate, dict *templatize.Dictionary, repo portal.Repository) (portal.CreatedItem, error) {
	logger := ctxlog.FromContext(ctx)

	base, err := templatize.Interpolate(tpl.Item, dict)
	if err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating group %s: %w", tpl.ItemID, err)
	}
	var fields struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(base, &fields); err != nil {
		return portal.CreatedItem{}, fmt.Errorf("parsing group record %s: %w", tpl.ItemID, err)
	}

	created, err := repo.CreateGroup(ctx, portal.NewGroup{Title: fields.Title, Raw: base})
	if err != nil {
		return portal.CreatedItem{}, err
	}
	logger.Debug("Group created.", "sourceItemId", tpl.ItemID, "groupId", created.ID)

	var members []string
	for _, dep := range tpl.Dependencies {
		if id, ok := dict.Resolve(dep, templatize.FieldItemID); ok {
			members = append(members, id)
		}
	}
	if len(members) > 0 {
		if err := repo.ShareItems(ctx, created.ID, members); err != nil {
			return portal.CreatedItem{}, fmt.Errorf("sharing members into group %s: %w", created.ID, err)
		}
		logger.Debug("Members shared into group.", "groupId", created.ID, "members", len(members))
	}
	return created, nil
}

// Remove deletes the group container.
func (a *Adapter) Remove(ctx context.Context, itemID string, repo portal.Repository) error {
	return repo.RemoveItem(ctx, itemID)
}
