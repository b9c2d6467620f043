package api

import (
	"sync"

	"github.com/scottgal/stylobot/pkg/models"
)

// RecentEvidence is a bounded ring of the latest evidence objects, feeding
// the dashboard's recent-activity view.
type RecentEvidence struct {
	mu      sync.RWMutex
	entries []*models.AggregatedEvidence
	max     int
}

// NewRecentEvidence builds a ring holding up to max entries.
func NewRecentEvidence(max int) *RecentEvidence {
	if max <= 0 {
		max = 500
	}
	return &RecentEvidence{max: max}
}

// Add appends one evidence object, evicting the oldest past capacity.
func (r *RecentEvidence) Add(ev *models.AggregatedEvidence) {
	r.mu.Lock()
	r.entries = append(r.entries, ev)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()
}

// List returns up to n most recent entries, newest first.
func (r *RecentEvidence) List(n int) []*models.AggregatedEvidence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]*models.AggregatedEvidence, 0, n)
	for i := len(r.entries) - 1; i >= len(r.entries)-n; i-- {
		out = append(out, r.entries[i])
	}
	return out
}
