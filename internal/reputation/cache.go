// Package reputation holds the in-memory pattern reputation cache consulted
// on the fast path of every request. The cache is read-mostly: the engine
// only reads during analysis, while the external maintenance service
// promotes and demotes records between requests.
package reputation

import (
	"sync"

	"github.com/scottgal/stylobot/pkg/models"
)

// Cache is the interface the contributors consume.
type Cache interface {
	Get(patternID string) (*models.PatternReputation, bool)
	Set(rep *models.PatternReputation)
	TryFastAllow(patternID string) bool
	TryFastAbort(patternID string) bool
}

// MemoryCache is a concurrent map from pattern ID to reputation record.
// Reads are lock-free (sync.Map); writers briefly lock internally.
type MemoryCache struct {
	patterns sync.Map // patternID -> *models.PatternReputation
	size     int64
	mu       sync.Mutex
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the record for a pattern ID.
func (c *MemoryCache) Get(patternID string) (*models.PatternReputation, bool) {
	if patternID == "" {
		return nil, false
	}
	v, ok := c.patterns.Load(patternID)
	if !ok {
		return nil, false
	}
	return v.(*models.PatternReputation), true
}

// Set stores or replaces a record. Records are replaced wholesale, never
// mutated in place, so concurrent readers always see a consistent record.
func (c *MemoryCache) Set(rep *models.PatternReputation) {
	if rep == nil || rep.PatternID == "" {
		return
	}
	c.mu.Lock()
	if _, loaded := c.patterns.LoadOrStore(rep.PatternID, rep); loaded {
		c.patterns.Store(rep.PatternID, rep)
	} else {
		c.size++
	}
	c.mu.Unlock()
}

// TryFastAllow reports whether the pattern can drive the early-exit allow
// path.
func (c *MemoryCache) TryFastAllow(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAllow()
}

// TryFastAbort reports whether the pattern can drive the early-exit abort
// path.
func (c *MemoryCache) TryFastAbort(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAbort()
}

// Len returns the number of cached patterns.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.size)
}
