package collab

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
)

// LocalFileCache is an LRU-bounded in-memory stand-in for lfc_read /
// lfc_write / lfc_cache_contains / lfc_evict.
type LocalFileCache struct {
	cache *lru.Cache[blockid.BlockId, [8192]byte]
}

func NewLocalFileCache(capacity int) *LocalFileCache {
	c, err := lru.New[blockid.BlockId, [8192]byte](capacity)
	if err != nil {
		panic(err)
	}
	return &LocalFileCache{cache: c}
}

func (f *LocalFileCache) Read(tag blockid.BlockId) ([8192]byte, bool) {
	return f.cache.Get(tag)
}

func (f *LocalFileCache) Write(tag blockid.BlockId, page [8192]byte) {
	f.cache.Add(tag, page)
}

func (f *LocalFileCache) Contains(tag blockid.BlockId) bool {
	return f.cache.Contains(tag)
}

func (f *LocalFileCache) Evict(tag blockid.BlockId) {
	f.cache.Remove(tag)
}
