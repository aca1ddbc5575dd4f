// Package cache provides a bounded, TTL-aware response cache for complete
// pipeline outputs, keyed by normalized query parameters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxSize is the default entry capacity.
	DefaultMaxSize = 500

	// DefaultTTL is the default entry lifetime.
	DefaultTTL = 24 * time.Hour
)

// signature is the normalized, deterministic representation of a request.
// Field order is fixed by the struct, so equal inputs always serialize to the
// same bytes regardless of argument order or query casing/whitespace.
type signature struct {
	Query  string   `json:"query"`
	DocIDs []string `json:"doc_ids"`
	TopK   int      `json:"top_k"`
}

type entry struct {
	response any
	cachedAt time.Time
}

// ResponseCache memoizes end-to-end pipeline responses. Entries expire after
// the TTL and, at capacity, are evicted strictly in insertion order (FIFO,
// not LRU: access recency never changes eviction order). All operations,
// including check-expire-delete and check-full-evict-insert, run under one
// lock so concurrent requests cannot corrupt the eviction order.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string // keys in insertion order, oldest first
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

// Option is a functional option for configuring a ResponseCache.
type Option func(*ResponseCache)

// WithMaxSize sets the entry capacity.
func WithMaxSize(n int) Option {
	return func(c *ResponseCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) {
		c.now = now
	}
}

// New creates a response cache with the given options.
func New(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]entry),
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Key derives the cache key: a SHA-256 digest of the stable serialization of
// the lower-cased, trimmed query, the sorted document ID set, and the
// effective result count.
func Key(query string, docIDs []string, topK int) string {
	sorted := make([]string, len(docIDs))
	copy(sorted, docIDs)
	sort.Strings(sorted)

	sig := signature{
		Query:  strings.ToLower(strings.TrimSpace(query)),
		DocIDs: sorted,
		TopK:   topK,
	}

	// Marshaling a fixed-shape struct cannot fail.
	data, _ := json.Marshal(sig)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for the parameters, or false on a miss.
// An expired entry is deleted and reported as a miss.
func (c *ResponseCache) Get(query string, docIDs []string, topK int) (any, bool) {
	key := Key(query, docIDs, topK)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.now().Before(e.cachedAt.Add(c.ttl)) {
		c.removeLocked(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.response, true
}

// Set stores a response under the parameters' signature. At capacity the
// oldest inserted entry is evicted first.
func (c *ResponseCache) Set(query string, docIDs []string, topK int, response any) {
	key := Key(query, docIDs, topK)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		// Refresh in place; insertion order is unchanged.
		c.entries[key] = entry{response: response, cachedAt: c.now()}
		return
	}

	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}

	c.entries[key] = entry{response: response, cachedAt: c.now()}
	c.order = append(c.order, key)
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
	c.order = nil
}

// Stats describes the cache's current state.
type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
}

// GetStats returns a snapshot of cache statistics.
func (c *ResponseCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func (c *ResponseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
