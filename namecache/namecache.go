// Package namecache is the (directory, name) -> inum cache spec.md's
// external interfaces section lists alongside the block buffer and
// inode-cache collaborators: a lookup that skips re-scanning a
// directory's bytes for a name namex has already resolved. Grounded
// on the shape of dcache/dcache.go's per-directory map, widened to a
// single fs-wide cache keyed by (dir inum, name) rather than one
// instance per open directory inode, since spec.md's namex invalidates
// entries by dir+name pair directly rather than through a pointer
// living on the directory's own cache slot.
package namecache

import (
	"sync"

	"github.com/mit-pdos/xv6fs/common"
)

type key struct {
	dir  common.Inum
	name string
}

// Cache is an unbounded map with no eviction: directory name caches
// in this lineage stay valid until explicitly invalidated by Link or
// Unlink, never aged out.
type Cache struct {
	mu      sync.Mutex
	entries map[key]common.Inum
}

func New() *Cache {
	return &Cache{entries: make(map[key]common.Inum)}
}

func (c *Cache) Lookup(dir common.Inum, name string) (common.Inum, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inum, ok := c.entries[key{dir, name}]
	return inum, ok
}

func (c *Cache) Insert(dir common.Inum, name string, inum common.Inum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{dir, name}] = inum
}

// Invalidate drops the (dir, name) entry, if present. FileSystem's
// Dirlink and Unlink call it after a successful edit, so a stale hit
// never outlives a directory edit made through them; a direct
// dirent.Link or dirent.Unlink call does not invalidate anything.
func (c *Cache) Invalidate(dir common.Inum, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key{dir, name})
}
