package auditor

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/thorwhalen/pacing/internal/models"
)

// Queue holds flagged items ordered by priority, highest first. Items with
// equal priority keep insertion order. All access goes through one lock so an
// insert and its re-sort are observed atomically by readers.
type Queue struct {
	mu    sync.RWMutex
	items []models.ReviewItem

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewQueue creates an empty review queue.
func NewQueue() *Queue {
	return &Queue{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// newID mints an id and its timestamp under one lock, so ids sort in the
// order items were flagged.
func (q *Queue) newID() (string, time.Time) {
	q.idMu.Lock()
	defer q.idMu.Unlock()
	now := time.Now()
	return ulid.MustNew(ulid.Timestamp(now), q.entropy).String(), now
}

// Add creates a review item for ev and inserts it. It returns the stored item
// and the queue length after insertion.
func (q *Queue) Add(ev models.TranscriptionEvent, reason string, priority int) (models.ReviewItem, int) {
	id, now := q.newID()
	item := models.ReviewItem{
		ID:        id,
		Event:     ev,
		FlaggedAt: now,
		Reason:    reason,
		Priority:  clampPriority(priority),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].Priority > q.items[j].Priority
	})
	return item, len(q.items)
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// List returns a copy of every item in queue order.
func (q *Queue) List() []models.ReviewItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.ReviewItem, len(q.items))
	copy(out, q.items)
	return out
}

// Unreviewed returns a copy of the items not yet reviewed, in queue order.
func (q *Queue) Unreviewed() []models.ReviewItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.ReviewItem, 0, len(q.items))
	for _, it := range q.items {
		if !it.Reviewed {
			out = append(out, it)
		}
	}
	return out
}

// MarkReviewed flags the item as reviewed and stores notes. Reviewing an item
// twice overwrites the notes. Returns false if no item has that id.
func (q *Queue) MarkReviewed(id, notes string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Reviewed = true
			q.items[i].ReviewerNotes = notes
			return true
		}
	}
	return false
}

// PurgeReviewed removes every reviewed item and returns how many were removed.
func (q *Queue) PurgeReviewed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !it.Reviewed {
			kept = append(kept, it)
		}
	}
	removed := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = models.ReviewItem{}
	}
	q.items = kept
	return removed
}

// Counts summarizes queue contents.
type Counts struct {
	Total      int         `json:"totalInQueue"`
	Unreviewed int         `json:"unreviewed"`
	Reviewed   int         `json:"reviewed"`
	ByPriority map[int]int `json:"priorityDistribution"`
}

// Counts returns queue totals and the priority distribution.
func (q *Queue) Counts() Counts {
	q.mu.RLock()
	defer q.mu.RUnlock()
	c := Counts{Total: len(q.items), ByPriority: make(map[int]int)}
	for _, it := range q.items {
		if it.Reviewed {
			c.Reviewed++
		} else {
			c.Unreviewed++
		}
		c.ByPriority[it.Priority]++
	}
	return c
}

func clampPriority(p int) int {
	if p < models.MinPriority {
		return models.MinPriority
	}
	if p > models.MaxPriority {
		return models.MaxPriority
	}
	return p
}
