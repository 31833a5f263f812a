package matchcache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/matcher"
)

// decisionCache is an LRU-backed matcher.DecisionCache with hit, miss and
// eviction counters.
type decisionCache struct {
	lru       *lru.Cache[string, domain.MatchDecision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

var newLRU = func(size int, onEvict func(string, domain.MatchDecision)) (*lru.Cache[string, domain.MatchDecision], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a DecisionCache holding up to size decisions. If size <= 0
// the returned cache always misses.
func New(size int) (matcher.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}
	dc := &decisionCache{}
	// purges count as evictions
	cache, err := newLRU(size, func(string, domain.MatchDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(key string) (domain.MatchDecision, bool) {
	if d, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return d, true
	}
	c.misses.Add(1)
	return domain.MatchDecision{}, false
}

func (c *decisionCache) Put(key string, d domain.MatchDecision) {
	c.lru.Add(key, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit, miss and eviction counters.
func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (d *disabledCache) Get(string) (domain.MatchDecision, bool) {
	return domain.MatchDecision{}, false
}

func (d *disabledCache) Put(string, domain.MatchDecision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ matcher.DecisionCache = (*decisionCache)(nil)
var _ matcher.DecisionCache = (*disabledCache)(nil)
