// Package generic implements the fallback item adapter: a faithful
// snapshot of the base record, data payload, and resources, with no
// type-specific dependency discovery. Most item types deploy correctly
// through this path; dedicated adapters exist only where discovery or
// creation needs extra steps.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/solkit/internal/ctxlog"
	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
)

// Module wires the fallback adapter into a registry.
type Module struct{}

// Register installs the generic adapter as the registry fallback.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFallback(&Adapter{})
}

// Adapter is the generic item adapter. It is stateless and safe for
// concurrent use.
type Adapter struct{}

var _ registry.ItemAdapter = (*Adapter)(nil)

// ConvertToTemplate snapshots the item's base record, data payload, and
// resources, replacing every occurrence of the item's own id with a
// placeholder so the snapshot carries no source-organization ids.
func (a *Adapter) ConvertToTemplate(ctx context.Context, itemID string, repo portal.Repository) (solution.ItemTemplate, error) {
	item, err := repo.GetItem(ctx, itemID)
	if err != nil {
		return solution.ItemTemplate{}, err
	}
	data, err := repo.GetItemData(ctx, itemID)
	if err != nil {
		return solution.ItemTemplate{}, err
	}
	resources, err := repo.GetItemResources(ctx, itemID)
	if err != nil {
		return solution.ItemTemplate{}, err
	}

	tpl := solution.ItemTemplate{
		ItemID: itemID,
		Type:   item.Type,
		Key:    solution.Camelize(item.Title),
	}
	tpl.Item, err = templatizeBase(item)
	if err != nil {
		return solution.ItemTemplate{}, err
	}
	if len(data) > 0 {
		tpl.Data, err = templatize.Templatize(data, itemID, templatize.SuffixItemID)
		if err != nil {
			return solution.ItemTemplate{}, fmt.Errorf("templatizing data of %s: %w", itemID, err)
		}
	}
	tpl.Resources = resources
	return tpl, nil
}

// CreateFromTemplate materializes the item with a create-then-update
// round trip: the item is created from the interpolated payloads, and a
// second pass rewrites any self-references once the new id is known.
func (a *Adapter) CreateFromTemplate(ctx context.Context, tpl solution.ItemTemplate, dict *templatize.Dictionary, repo portal.Repository) (portal.CreatedItem, error) {
	logger := ctxlog.FromContext(ctx)

	base, err := templatize.Interpolate(tpl.Item, dict)
	if err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating item %s: %w", tpl.ItemID, err)
	}
	data, err := templatize.Interpolate(tpl.Data, dict)
	if err != nil {
		return portal.CreatedItem{}, fmt.Errorf("interpolating data of %s: %w", tpl.ItemID, err)
	}

	created, err := repo.AddItem(ctx, portal.NewItem{
		Type: tpl.Type,
		Item: base,
		Data: data,
	})
	if err != nil {
		return portal.CreatedItem{}, err
	}
	logger.Debug("Item created.", "sourceItemId", tpl.ItemID, "itemId", created.ID, "type", tpl.Type)

	// Self-referencing placeholders could not resolve before the new id
	// existed. Re-run interpolation with the new entry and push the
	// corrected payloads when anything changed.
	selfDict := templatize.NewDictionary()
	selfDict.Set(tpl.ItemID, templatize.Entry{templatize.FieldItemID: created.ID, templatize.FieldURL: created.URL})
	fixedBase, err := templatize.Interpolate(base, selfDict)
	if err != nil {
		return portal.CreatedItem{}, err
	}
	fixedData, err := templatize.Interpolate(data, selfDict)
	if err != nil {
		return portal.CreatedItem{}, err
	}
	if !rawEqual(base, fixedBase) || !rawEqual(data, fixedData) {
		if err := repo.UpdateItem(ctx, created.ID, fixedBase, fixedData); err != nil {
			return portal.CreatedItem{}, fmt.Errorf("updating self references of %s: %w", created.ID, err)
		}
	}
	return created, nil
}

// Remove deletes the item.
func (a *Adapter) Remove(ctx context.Context, itemID string, repo portal.Repository) error {
	return repo.RemoveItem(ctx, itemID)
}

// templatizeBase strips instance-specific fields from the base record
// and replaces the item's own id in what remains.
func templatizeBase(item portal.Item) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item.Raw, &fields); err != nil {
		return nil, fmt.Errorf("parsing base record of %s: %w", item.ID, err)
	}
	for _, f := range []string{"id", "owner", "created", "modified", "guid", "numViews", "size"} {
		delete(fields, f)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	// The URL goes first: it usually embeds the item id, and the id pass
	// skips text already inside a placeholder but not the other way around.
	if item.URL != "" {
		s := strings.ReplaceAll(string(raw), item.URL, templatize.Placeholder(item.ID, templatize.SuffixURL))
		raw = json.RawMessage(s)
	}
	raw, err = templatize.Templatize(raw, item.ID, templatize.SuffixItemID)
	if err != nil {
		return nil, fmt.Errorf("templatizing base record of %s: %w", item.ID, err)
	}
	return raw, nil
}

func rawEqual(a, b json.RawMessage) bool {
	return string(a) == string(b)
}
