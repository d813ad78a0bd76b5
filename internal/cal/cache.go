package cal

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// cacheKey identifies one cached CAL result. Per spec §4.1 the key
// shape is (subscription, resource-group, project-or-resource,
// operation); collisions are impossible under this shape because the
// fields are joined with a separator no Azure identifier contains.
func cacheKey(operation, subscriptionID, rg, projectOrResource string) string {
	return strings.Join([]string{operation, subscriptionID, rg, projectOrResource}, "\x1f")
}

// cache is the per-run response cache described in §4.1: it stores
// immutable snapshots of provider responses for the lifetime of one
// engine run, with single-flight semantics on writes so that N
// concurrent callers requesting the same uncached key produce exactly
// one upstream call (spec §8 invariant 6).
type cache struct {
	group singleflight.Group

	mu    sync.RWMutex
	items map[string]interface{}
}

func newCache() *cache {
	return &cache{items: make(map[string]interface{})}
}

// getOrLoad returns the cached value for key, computing it with load
// exactly once even under concurrent callers. A failed load is not
// cached: a subsequent call retries the upstream fetch, matching the
// "retry budget is per-call" design note (§9) rather than caching a
// transient failure for the life of the run.
func getOrLoad[T any](c *cache, key string, load func() (T, error)) (T, error) {
	c.mu.RLock()
	if v, ok := c.items[key]; ok {
		c.mu.RUnlock()
		return v.(T), nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the singleflight critical section: another
		// caller may have populated the cache between our RUnlock
		// above and entering Do.
		c.mu.RLock()
		if cached, ok := c.items[key]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		result, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = result
		c.mu.Unlock()
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
