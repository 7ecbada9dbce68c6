package data

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultCacheTTL keeps upstream responses for a few hours; the values
// only seed initial state.
const DefaultCacheTTL = 3 * time.Hour

// Cache holds raw response bodies keyed by CacheKey.
type Cache struct {
	items *ttlcache.Cache[string, []byte]
	stop  sync.Once
}

// NewCache starts a cache whose entries expire after ttl. Call Stop to end
// the expiry goroutine.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	items := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Cache{items: items}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

func (c *Cache) Set(key string, body []byte) {
	if c == nil {
		return
	}
	c.items.Set(key, body, ttlcache.DefaultTTL)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.items.Len()
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	if c != nil {
		c.items.DeleteAll()
	}
}

func (c *Cache) Stop() {
	if c != nil {
		c.stop.Do(c.items.Stop)
	}
}

// CacheKey hashes the request identity to keep keys short and free of secrets.
func CacheKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
