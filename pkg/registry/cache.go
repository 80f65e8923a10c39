package registry

import (
	"context"
	"sync"
	"time"

	"github.com/capiscio/hap-core/pkg/crypto"
)

// DefaultCacheTTL is the key cache lifetime used by NewCachingResolver
// when no TTL is given.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	keys      *crypto.KeySet
	expiresAt time.Time
}

// CachingResolver wraps a Resolver and caches key sets per domain.
// Claim records are always fetched fresh so revocation is seen at once.
type CachingResolver struct {
	next  Resolver
	cache map[string]cacheEntry
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingResolver creates a caching wrapper around next.
func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingResolver{
		next:  next,
		cache: make(map[string]cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetTTL configures the cache time-to-live.
func (c *CachingResolver) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// FlushCache clears all cached key sets.
func (c *CachingResolver) FlushCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// FetchKeys returns the cached key set for domain, fetching on a miss.
// Errors are never cached.
func (c *CachingResolver) FetchKeys(ctx context.Context, domain string) (*crypto.KeySet, error) {
	c.mu.RLock()
	entry, found := c.cache[domain]
	c.mu.RUnlock()

	if found && c.now().Before(entry.expiresAt) {
		return entry.keys, nil
	}

	keys, err := c.next.FetchKeys(ctx, domain)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[domain] = cacheEntry{
		keys:      keys,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()

	return keys, nil
}

// FetchClaim passes through to the wrapped resolver.
func (c *CachingResolver) FetchClaim(ctx context.Context, domain, id string) (*ClaimRecord, error) {
	return c.next.FetchClaim(ctx, domain, id)
}
