// Package collab provides default, in-memory implementations of the
// collaborator interfaces declared in pkg/collab, purely so the rest
// of this module is unit-testable end to end without a real engine or
// page server (§6.3's collaborators remain external, consumed,
// interfaces for production use).
package collab

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
)

// RelSizeCache is an LRU-bounded in-memory get/set/update/forget_cached_relsize.
type RelSizeCache struct {
	cache *lru.Cache[blockid.RelFork, uint32]
}

func NewRelSizeCache(capacity int) *RelSizeCache {
	c, err := lru.New[blockid.RelFork, uint32](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; this is a
		// programmer error in the caller's wiring.
		panic(err)
	}
	return &RelSizeCache{cache: c}
}

func (r *RelSizeCache) GetCachedRelSize(rf blockid.RelFork) (uint32, bool) {
	return r.cache.Get(rf)
}

func (r *RelSizeCache) SetCachedRelSize(rf blockid.RelFork, nblocks uint32) {
	r.cache.Add(rf, nblocks)
}

func (r *RelSizeCache) UpdateCachedRelSize(rf blockid.RelFork, nblocks uint32) {
	if cur, ok := r.cache.Get(rf); !ok || nblocks > cur {
		r.cache.Add(rf, nblocks)
	}
}

func (r *RelSizeCache) ForgetCachedRelSize(rf blockid.RelFork) {
	r.cache.Remove(rf)
}
