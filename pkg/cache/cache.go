// Package cache stores evaluated meshes keyed by node identity and
// content version.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/mesh"
)

// Entry is a cached mesh together with the version it was computed for.
// The mesh is shared with every reader and must not be modified.
type Entry struct {
	Version graph.Version
	Mesh    *mesh.Mesh
}

// Cache maps node identities to their last evaluated mesh. It is safe
// for concurrent use; readers never block each other. Two concurrent
// misses on one identity may both compute and both store, and the last
// write wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[graph.NodeID]Entry

	// Statistics (atomic for lock-free reads)
	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[graph.NodeID]Entry)}
}

// Get returns the mesh stored for id if it was computed for version.
// An entry with another version counts as a miss.
func (c *Cache) Get(id graph.NodeID, version graph.Version) (*mesh.Mesh, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || e.Version != version {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.Mesh, true
}

// Peek returns the entry for id without touching the statistics.
func (c *Cache) Peek(id graph.NodeID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Put stores m for id at version, replacing any previous entry.
func (c *Cache) Put(id graph.NodeID, version graph.Version, m *mesh.Mesh) {
	c.mu.Lock()
	c.entries[id] = Entry{Version: version, Mesh: m}
	c.mu.Unlock()
}

// Evict removes the given identities and returns how many were present.
func (c *Cache) Evict(ids ...graph.NodeID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := c.entries[id]; ok {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Contains reports whether any mesh is stored for id.
func (c *Cache) Contains(id graph.NodeID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry and zeroes the statistics.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[graph.NodeID]Entry)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

// Stats contains cache performance statistics.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d entries=%d hitRate=%.1f%%",
		s.Hits, s.Misses, s.Entries, s.HitRate()*100)
}
