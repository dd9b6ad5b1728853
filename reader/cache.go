package reader

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tsawler/gutenberg/core"
)

// objectCache memoizes loaded objects by reference for the lifetime of a
// document. Concurrent requests for one reference share a single load.
// Entries are never evicted and failures are never stored.
type objectCache struct {
	mu      sync.RWMutex
	objects map[core.IndirectRef]core.Object
	group   singleflight.Group
	loads   atomic.Int64
}

func newObjectCache() *objectCache {
	return &objectCache{objects: make(map[core.IndirectRef]core.Object)}
}

func (c *objectCache) lookup(ref core.IndirectRef) (core.Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[ref]
	return obj, ok
}

// get returns the cached object for ref, calling load at most once per
// reference while it succeeds.
func (c *objectCache) get(ref core.IndirectRef, load func(core.IndirectRef) (core.Object, error)) (core.Object, error) {
	if obj, ok := c.lookup(ref); ok {
		return obj, nil
	}

	v, err, _ := c.group.Do(ref.String(), func() (interface{}, error) {
		if obj, ok := c.lookup(ref); ok {
			return obj, nil
		}
		c.loads.Add(1)
		obj, err := load(ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.objects[ref] = obj
		c.mu.Unlock()
		return obj, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Object), nil
}

func (c *objectCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
