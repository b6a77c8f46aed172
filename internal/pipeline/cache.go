package pipeline

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/aegis-clinical/triage/internal/schema"
)

// Cache stores finished results keyed by normalized query text. The
// pipeline populates it on first compute and reuses it on repeats; Clear is
// for tests and operator tooling.
type Cache interface {
	Get(key string) (schema.HybridAnalysisResult, bool)
	Put(key string, result schema.HybridAnalysisResult)
	Clear()
}

type ttlCache struct {
	c *gocache.Cache
}

// NewTTLCache returns a Cache whose entries expire after ttl. A zero ttl
// keeps entries until Clear.
func NewTTLCache(ttl time.Duration) Cache {
	expiry := ttl
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	return &ttlCache{c: gocache.New(expiry, 2*ttl)}
}

func (t *ttlCache) Get(key string) (schema.HybridAnalysisResult, bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return schema.HybridAnalysisResult{}, false
	}
	return v.(schema.HybridAnalysisResult), true
}

func (t *ttlCache) Put(key string, result schema.HybridAnalysisResult) {
	t.c.SetDefault(key, result)
}

func (t *ttlCache) Clear() {
	t.c.Flush()
}

// cacheKey normalizes query text so trivially different phrasings of the
// same request share a cache entry.
func cacheKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
