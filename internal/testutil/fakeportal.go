// Package testutil provides an in-memory portal.Repository for exercising
// the orchestrators without a live content store.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/solkit/internal/portal"
)

// StoredItem is an item held by the fake store.
type StoredItem struct {
	Base      portal.Item
	Data      json.RawMessage
	Resources []json.RawMessage
	Members   []string
}

// FakePortal is an in-memory portal.Repository. Every mutating call is
// recorded so tests can assert on call order and payloads. FailOn maps
// an operation key ("RemoveItem:<id>", "AddItem", ...) to the error that
// call should return.
type FakePortal struct {
	mu     sync.Mutex
	items  map[string]*StoredItem
	Calls  []string
	FailOn map[string]error

	nextID func() string
}

var _ portal.Repository = (*FakePortal)(nil)

// NewFakePortal creates an empty fake store.
func NewFakePortal() *FakePortal {
	return &FakePortal{
		items:  make(map[string]*StoredItem),
		FailOn: make(map[string]error),
		nextID: func() string { return uuid.NewString() },
	}
}

// Seed stores an item under the given id.
func (f *FakePortal) Seed(id string, item StoredItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.Base.ID = id
	f.items[id] = &item
}

// SeedJSON stores an item whose base record is parsed from raw JSON.
func (f *FakePortal) SeedJSON(id string, base string, data string) {
	var item portal.Item
	if err := json.Unmarshal([]byte(base), &item); err != nil {
		panic(fmt.Sprintf("testutil: bad base JSON for %s: %v", id, err))
	}
	item.Raw = json.RawMessage(base)
	stored := StoredItem{Base: item}
	if data != "" {
		stored.Data = json.RawMessage(data)
	}
	f.Seed(id, stored)
}

// Item returns the stored item, or nil when absent.
func (f *FakePortal) Item(id string) *StoredItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

// Has reports whether an item exists in the store.
func (f *FakePortal) Has(id string) bool {
	return f.Item(id) != nil
}

// Len returns the number of stored items.
func (f *FakePortal) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *FakePortal) record(op string) error {
	f.Calls = append(f.Calls, op)
	if err, ok := f.FailOn[op]; ok {
		return err
	}
	return nil
}

func notFound(id string) error {
	return &portal.RemoteError{Code: 400, Message: fmt.Sprintf("Item does not exist or is inaccessible: %s", id)}
}

func (f *FakePortal) GetItem(ctx context.Context, itemID string) (portal.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetItem:" + itemID); err != nil {
		return portal.Item{}, err
	}
	item, ok := f.items[itemID]
	if !ok {
		return portal.Item{}, notFound(itemID)
	}
	return item.Base, nil
}

func (f *FakePortal) GetItemData(ctx context.Context, itemID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetItemData:" + itemID); err != nil {
		return nil, err
	}
	item, ok := f.items[itemID]
	if !ok {
		return nil, notFound(itemID)
	}
	return item.Data, nil
}

func (f *FakePortal) GetItemResources(ctx context.Context, itemID string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetItemResources:" + itemID); err != nil {
		return nil, err
	}
	item, ok := f.items[itemID]
	if !ok {
		return nil, notFound(itemID)
	}
	return item.Resources, nil
}

func (f *FakePortal) GetGroupContent(ctx context.Context, groupID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetGroupContent:" + groupID); err != nil {
		return nil, err
	}
	item, ok := f.items[groupID]
	if !ok {
		return nil, notFound(groupID)
	}
	return item.Members, nil
}

func (f *FakePortal) AddItem(ctx context.Context, item portal.NewItem) (portal.CreatedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddItem"); err != nil {
		return portal.CreatedItem{}, err
	}
	id := f.nextID()
	base := portal.Item{ID: id, Type: item.Type, Raw: item.Item}
	if len(item.Item) > 0 {
		json.Unmarshal(item.Item, &base)
		base.ID = id
	}
	f.items[id] = &StoredItem{Base: base, Data: item.Data}
	return portal.CreatedItem{ID: id}, nil
}

func (f *FakePortal) UpdateItem(ctx context.Context, itemID string, item, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateItem:" + itemID); err != nil {
		return err
	}
	stored, ok := f.items[itemID]
	if !ok {
		return notFound(itemID)
	}
	if len(item) > 0 {
		stored.Base.Raw = item
		json.Unmarshal(item, &stored.Base)
		stored.Base.ID = itemID
	}
	if len(data) > 0 {
		stored.Data = data
	}
	return nil
}

func (f *FakePortal) CreateGroup(ctx context.Context, group portal.NewGroup) (portal.CreatedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateGroup"); err != nil {
		return portal.CreatedItem{}, err
	}
	id := f.nextID()
	f.items[id] = &StoredItem{Base: portal.Item{ID: id, Type: "Group", Title: group.Title, Raw: group.Raw}}
	return portal.CreatedItem{ID: id}, nil
}

func (f *FakePortal) ShareItems(ctx context.Context, groupID string, itemIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ShareItems:" + groupID); err != nil {
		return err
	}
	group, ok := f.items[groupID]
	if !ok {
		return notFound(groupID)
	}
	group.Members = append(group.Members, itemIDs...)
	return nil
}

func (f *FakePortal) UnprotectItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UnprotectItem:" + itemID); err != nil {
		return err
	}
	item, ok := f.items[itemID]
	if !ok {
		return notFound(itemID)
	}
	item.Base.Protected = false
	return nil
}

func (f *FakePortal) RemoveItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveItem:" + itemID); err != nil {
		return err
	}
	if _, ok := f.items[itemID]; !ok {
		return notFound(itemID)
	}
	delete(f.items, itemID)
	return nil
}

// SetIDSequence makes AddItem and CreateGroup hand out the given ids in
// order, then fall back to random ids.
func (f *FakePortal) SetIDSequence(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := 0
	f.nextID = func() string {
		if i < len(ids) {
			id := ids[i]
			i++
			return id
		}
		return uuid.NewString()
	}
}
