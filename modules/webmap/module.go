// Package webmap implements the adapter for Web Map items. A web map's
// data payload references the layers it draws by item id; those ids are
// dependencies and must be templatized so the deployed map points at the
// deployed layers.
package webmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
	"github.com/vk/solkit/modules/generic"
)

// ItemType is the content type this adapter handles.
const ItemType = "Web Map"

// Module wires the web map adapter into a registry.
type Module struct{}

func (m *Module) Register(r *registry.Registry) {
	r.RegisterAdapter(ItemType, &Adapter{})
}

// Adapter converts Web Map items. Creation and removal are the generic
// create-then-update path.
type Adapter struct {
	generic.Adapter
}

var _ registry.ItemAdapter = (*Adapter)(nil)

// layerRef is the slice of a layer entry this adapter cares about.
type layerRef struct {
	ItemID string `json:"itemId"`
	URL    string `json:"url"`
}

// webMapData models the payload sections that reference other items.
type webMapData struct {
	OperationalLayers []layerRef `json:"operationalLayers"`
	Tables            []layerRef `json:"tables"`
	BaseMap           struct {
		BaseMapLayers []layerRef `json:"baseMapLayers"`
	} `json:"baseMap"`
}

// ConvertToTemplate extends the generic snapshot with dependency ids
// harvested from the map's layer references, and templatizes each
// referenced id and service URL in the payload.
func (a *Adapter) ConvertToTemplate(ctx context.Context, itemID string, repo portal.Repository) (solution.ItemTemplate, error) {
	tpl, err := a.Adapter.ConvertToTemplate(ctx, itemID, repo)
	if err != nil {
		return solution.ItemTemplate{}, err
	}
	if len(tpl.Data) == 0 {
		return tpl, nil
	}

	var payload webMapData
	if err := json.Unmarshal(tpl.Data, &payload); err != nil {
		return solution.ItemTemplate{}, fmt.Errorf("parsing web map data of %s: %w", itemID, err)
	}

	refs := payload.OperationalLayers
	refs = append(refs, payload.Tables...)
	refs = append(refs, payload.BaseMap.BaseMapLayers...)

	seen := make(map[string]bool)
	for _, ref := range refs {
		if ref.ItemID == "" || seen[ref.ItemID] {
			continue
		}
		seen[ref.ItemID] = true
		tpl.Dependencies = append(tpl.Dependencies, ref.ItemID)

		// The URL goes first: it usually embeds the item id, and the id
		// pass skips text already inside a placeholder but not the
		// other way around.
		if ref.URL != "" {
			s := strings.ReplaceAll(string(tpl.Data), ref.URL, templatize.Placeholder(ref.ItemID, templatize.SuffixURL))
			tpl.Data = json.RawMessage(s)
		}
		tpl.Data, err = templatize.Templatize(tpl.Data, ref.ItemID, templatize.SuffixItemID)
		if err != nil {
			return solution.ItemTemplate{}, fmt.Errorf("templatizing layer reference %s: %w", ref.ItemID, err)
		}
	}
	return tpl, nil
}
