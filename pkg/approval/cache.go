// Package approval remembers human decisions for a while so identical
// requests are not asked about again.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// DefaultTTL is how long a remembered decision stays valid.
const DefaultTTL = 600 * time.Second

// ErrNotCacheable is returned when asked to remember an "ask" decision.
var ErrNotCacheable = errors.New("approval: only allow and deny decisions can be cached")

type entry struct {
	decision  types.Decision
	expiresAt time.Time
}

// Cache maps request fingerprints to allow/deny decisions with a TTL.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured lifetime of an entry.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Fingerprint identifies a request by method, target and canonical arguments.
// Argument key order and whitespace do not affect the result.
func Fingerprint(req *types.Request) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.Target))
	h.Write([]byte{0})
	h.Write([]byte(req.CanonicalParams()))
	return hex.EncodeToString(h.Sum(nil))
}

// Set remembers decision for req until now+TTL. Setting the same request again
// refreshes the entry.
func (c *Cache) Set(req *types.Request, decision types.Decision) error {
	if decision != types.DecisionAllow && decision != types.DecisionDeny {
		return fmt.Errorf("%w: got %q", ErrNotCacheable, decision)
	}
	key := Fingerprint(req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{decision: decision, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Get returns the remembered decision for req. Expired entries are evicted and
// reported as absent.
func (c *Cache) Get(req *types.Request) (types.Decision, bool) {
	key := Fingerprint(req)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.decision, true
}

// Prune evicts every expired entry and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear forgets everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of stored entries, expired ones included until they
// are evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
