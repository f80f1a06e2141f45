// Package cache keeps recent optimization responses in memory so identical
// requests skip the pipeline.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/promptopt/models"
)

type entry struct {
	response  models.OptimizeResponse
	createdAt time.Time
}

// Cache is an in-memory TTL cache of optimize responses. It is safe for
// concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries responses for ttl each.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key derives the cache key of a request. Requests that differ in any of
// the fields produce different keys.
func Key(prompt, model string, temperature *float64, strategy, targetLanguage string) string {
	temp := "default"
	if temperature != nil {
		temp = strconv.FormatFloat(*temperature, 'f', -1, 64)
	}
	h := sha256.New()
	for i, part := range []string{prompt, model, temp, strategy, targetLanguage} {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached response for key if it has not expired.
func (c *Cache) Get(key string) (*models.OptimizeResponse, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil, false
	}

	resp := e.response
	if e.response.Metrics != nil {
		m := *e.response.Metrics
		resp.Metrics = &m
	}
	return &resp, true
}

// Set stores a successful response. Failed responses are not cached. At
// capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, resp *models.OptimizeResponse) {
	if c.ttl <= 0 || resp == nil || !resp.Success {
		return
	}
	stored := *resp
	if resp.Metrics != nil {
		m := *resp.Metrics
		stored.Metrics = &m
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{response: stored, createdAt: c.now()}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
			n++
		}
	}
	return n
}

// Run purges expired entries every interval until stop is closed.
func (c *Cache) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-stop:
			return
		}
	}
}
