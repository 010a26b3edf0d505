// Package progress defines the per-item lifecycle states reported during a
// deployment or deletion run, the weighted percent tracker shared by both
// orchestrators, and the cooperative cancellation token polled at item
// checkpoints.
package progress

import (
	"math"
	"sync"
	"sync/atomic"
)

// Status is the lifecycle state of a single item within a run.
type Status int

const (
	// Started is reported when work on an item begins.
	Started Status = iota
	// Created marks the optional intermediate checkpoint between an item's
	// container being created and the item being fully configured.
	Created
	// Finished means the item completed successfully.
	Finished
	// Failed means the item's remote operation failed.
	Failed
	// Ignored means the item was skipped: either its removal was already
	// satisfied or the run was cancelled before work on it began.
	Ignored
	// Cancelled means the item was created and then torn down because the
	// run was cancelled at its post-creation checkpoint.
	Cancelled
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case Started:
		return "Started"
	case Created:
		return "Created"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	case Ignored:
		return "Ignored"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Event is a single progress report delivered to the caller's callback.
type Event struct {
	// Percent is the overall completed percentage, 0..100, monotonically
	// non-decreasing across a run.
	Percent int
	// JobID identifies the run the event belongs to.
	JobID string
	// ItemID is the original id of the item the event concerns. Empty for
	// run-level reports.
	ItemID string
	// NewItemID is the id assigned by the destination, when one exists.
	NewItemID string
	// Status is the item's lifecycle state at the time of the report.
	Status Status
}

// Callback receives progress events. It is report-only: cancellation is
// signalled through a Token, never through the callback's behavior.
type Callback func(Event)

// Token is an explicit cancellation flag polled by the orchestrators at
// their item checkpoints. Cancelling never pre-empts an in-flight remote
// call; it takes effect at the next checkpoint.
type Token struct {
	cancelled atomic.Bool
}

// Cancel requests that the run stop at its next checkpoint. Safe to call
// from any goroutine, including from inside a progress Callback.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested. A nil token
// never cancels.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}

// Tracker accumulates weighted completion and produces the monotonic
// percentage reported in events. One Tracker belongs to one run.
type Tracker struct {
	mu       sync.Mutex
	total    float64
	done     float64
	reported int
	jobID    string
	cb       Callback
}

// NewTracker creates a tracker for a run with the given total weight.
// A non-positive total is treated as 1 so that percent math stays defined
// for empty runs. The callback may be nil.
func NewTracker(total float64, jobID string, cb Callback) *Tracker {
	if total <= 0 {
		total = 1
	}
	return &Tracker{total: total, jobID: jobID, cb: cb}
}

// Report emits an event for the given item without advancing the
// completed weight.
func (t *Tracker) Report(itemID, newItemID string, status Status) {
	t.emit(0, itemID, newItemID, status)
}

// Advance adds weight to the completed total and emits an event for the
// given item at the new percentage.
func (t *Tracker) Advance(weight float64, itemID, newItemID string, status Status) {
	if weight < 0 {
		weight = 0
	}
	t.emit(weight, itemID, newItemID, status)
}

// Complete forces the percentage to 100 and emits a final run-level event.
// Success, failure, and cancellation all terminate at 100.
func (t *Tracker) Complete(status Status) {
	t.mu.Lock()
	t.done = t.total
	t.mu.Unlock()
	t.emit(0, "", "", status)
}

func (t *Tracker) emit(weight float64, itemID, newItemID string, status Status) {
	t.mu.Lock()
	t.done += weight
	if t.done > t.total {
		t.done = t.total
	}
	pct := int(math.Round(t.done / t.total * 100))
	// Never report a lower percentage than a previous event.
	if pct < t.reported {
		pct = t.reported
	}
	t.reported = pct
	cb := t.cb
	jobID := t.jobID
	t.mu.Unlock()

	if cb != nil {
		cb(Event{
			Percent:   pct,
			JobID:     jobID,
			ItemID:    itemID,
			NewItemID: newItemID,
			Status:    status,
		})
	}
}
