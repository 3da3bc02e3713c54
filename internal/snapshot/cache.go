// Package snapshot caches the pre-market analytics records the intake uses
// for validation and sizing. The cache is write-once-per-day: the daily
// scheduler replaces it wholesale, and the kill switch clears it.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/models"
)

// Cache holds the latest snapshot per ticker.
type Cache struct {
	mu        sync.RWMutex
	byTicker  map[string]models.ShareSnapshot
	updatedAt time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{byTicker: make(map[string]models.ShareSnapshot)}
}

// Update replaces the whole cache with a fresh batch.
func (c *Cache) Update(snapshots []models.ShareSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byTicker = make(map[string]models.ShareSnapshot, len(snapshots))
	for _, s := range snapshots {
		c.byTicker[s.Ticker] = s
	}
	c.updatedAt = time.Now().UTC()
}

// Get returns the snapshot for a ticker.
func (c *Cache) Get(ticker string) (models.ShareSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byTicker[ticker]
	return s, ok
}

// List returns all cached snapshots ordered by ticker.
func (c *Cache) List() []models.ShareSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ShareSnapshot, 0, len(c.byTicker))
	for _, s := range c.byTicker {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Clear drops everything. The kill switch calls this so stale levels cannot
// feed a later resume.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTicker = make(map[string]models.ShareSnapshot)
	c.updatedAt = time.Time{}
}

// UpdatedAt reports when the cache was last replaced; zero when empty.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Len returns the number of cached tickers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byTicker)
}

// LoadFile reads a snapshot batch from the JSON file the indicator
// pipeline produces.
func LoadFile(path string) ([]models.ShareSnapshot, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	var snapshots []models.ShareSnapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		return nil, fmt.Errorf("parsing snapshot file: %w", err)
	}
	return snapshots, nil
}
