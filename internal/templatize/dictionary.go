package templatize

import "sync"

// Conventional entry fields. Adapters may add type-specific fields.
const (
	FieldItemID = "itemId"
	FieldURL    = "url"
)

// Entry records the values assigned to one item during a deployment run,
// keyed by placeholder field name.
type Entry map[string]string

// Dictionary maps original item ids to the values assigned during the
// current deployment run. It grows monotonically within one run and must
// not be shared across runs: stale identifiers would resolve incorrectly.
type Dictionary struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewDictionary creates an empty, run-scoped dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{entries: make(map[string]Entry)}
}

// Set records the entry for an original item id, replacing any previous
// entry for the same id.
func (d *Dictionary) Set(itemID string, e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[itemID] = e
}

// Entry returns the recorded entry for an original item id.
func (d *Dictionary) Entry(itemID string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[itemID]
	return e, ok
}

// Resolve looks up one field of the entry for an original item id.
func (d *Dictionary) Resolve(itemID, field string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[itemID]
	if !ok {
		return "", false
	}
	v, ok := e[field]
	return v, ok
}

// Len returns the number of recorded entries.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
