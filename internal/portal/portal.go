// Package portal defines the repository contract the orchestration core
// requires from the remote content store, plus an HTTP implementation.
// Per-item business rules live in the type adapters; this package only
// moves items and their payloads.
package portal

import (
	"context"
	"encoding/json"
)

// Item is the parsed base record of a content item. Raw preserves the
// full JSON as returned so adapters can templatize fields this package
// does not model.
type Item struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	URL          string   `json:"url,omitempty"`
	TypeKeywords []string `json:"typeKeywords,omitempty"`
	Protected    bool     `json:"protected,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// NewItem is the payload for creating a content item.
type NewItem struct {
	Type   string
	Folder string
	Item   json.RawMessage
	Data   json.RawMessage
}

// CreatedItem reports the identifiers assigned to a newly created item.
// Extra carries type-specific values (service URLs and the like) that
// become additional dictionary fields.
type CreatedItem struct {
	ID    string
	URL   string
	Extra map[string]string
}

// NewGroup is the payload for creating a group container.
type NewGroup struct {
	Title string
	Raw   json.RawMessage
}

// Repository is the remote content store the adapters and orchestrators
// operate against. All calls block until the remote operation completes;
// timeouts are the transport's concern, not the orchestrators'.
type Repository interface {
	// GetItem fetches an item's base record.
	GetItem(ctx context.Context, itemID string) (Item, error)
	// GetItemData fetches an item's data payload. Items without a data
	// section return a nil payload and no error.
	GetItemData(ctx context.Context, itemID string) (json.RawMessage, error)
	// GetItemResources fetches an item's auxiliary resource payloads.
	GetItemResources(ctx context.Context, itemID string) ([]json.RawMessage, error)
	// GetGroupContent lists the ids of a group's member items.
	GetGroupContent(ctx context.Context, groupID string) ([]string, error)

	// AddItem creates a content item and returns its assigned identifiers.
	AddItem(ctx context.Context, item NewItem) (CreatedItem, error)
	// UpdateItem rewrites an existing item's base and data payloads.
	UpdateItem(ctx context.Context, itemID string, item, data json.RawMessage) error
	// CreateGroup creates an empty group container.
	CreateGroup(ctx context.Context, group NewGroup) (CreatedItem, error)
	// ShareItems shares the given items into a group.
	ShareItems(ctx context.Context, groupID string, itemIDs []string) error

	// UnprotectItem clears an item's delete protection. Clearing an
	// absent flag is not an error.
	UnprotectItem(ctx context.Context, itemID string) error
	// RemoveItem deletes an item. Deleting an item that is already gone
	// returns an error satisfying IsItemNotFound.
	RemoveItem(ctx context.Context, itemID string) error
}
