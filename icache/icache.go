// Package icache is the fixed-size inode cache: a pool of NINODE
// slots, always full, where a miss means evicting some other slot
// rather than growing. It is grounded on cache/cache.go's
// reference-counted Cslot map, generalized with the non-blocking
// read-side lookup and deferred-reclamation discipline
// original_source/fs.c layers on top of the same idea (ns_lookup
// under rcu_begin_read/rcu_end_read, eviction via ns_enumerate plus
// rcu_delayed) so that a cache hit never takes a lock a concurrent
// evictor could be holding.
//
// icache only manages slot identity and reference counts. It knows
// nothing about inodes, dinodes, or disk I/O — that is package
// inode's job, reached through the Entry interface below, the same
// division cache.Cslot draws between the slot and its Obj.
package icache

import (
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/epoch"
	"github.com/mit-pdos/xv6fs/nsmap"
)

// Entry is what a cache slot must support for icache to manage its
// lifecycle. package inode's *Inode implements it.
type Entry interface {
	// Sentinel is this slot's permanent idle identity, fixed for the
	// slot's lifetime and disjoint from every real key.
	Sentinel() uint64
	// CurrentKey is the namespace key the slot is presently stored
	// under: its sentinel while idle, or a real key while claimed.
	CurrentKey() uint64
	// TryMarkFree claims the slot as an eviction candidate if it has
	// no outstanding references, without touching the namespace.
	TryMarkFree() bool
	// BumpRefUnlessFree is the cache-hit fast path.
	BumpRefUnlessFree(dev uint32) (ok bool, devMismatch bool)
	// ClaimUsed publishes the slot under a new identity with one
	// reference held on the caller's behalf.
	ClaimUsed(dev uint32, key uint64)
	// Abandon reverts a slot that lost the race to claim a new
	// identity back to idle.
	Abandon()
}

type Cache struct {
	ns    *nsmap.Namespace
	epoch *epoch.Domain
}

// New builds a cache pre-populated with slots, each inserted under
// its own sentinel identity so the namespace starts (and stays) at
// capacity — every subsequent Get is therefore either a hit or an
// eviction, never a plain insert into free space.
func New(ep *epoch.Domain, slots []Entry) *Cache {
	ns := nsmap.New()
	for _, e := range slots {
		ns.Insert(e.Sentinel(), e)
	}
	return &Cache{ns: ns, epoch: ep}
}

// Get returns the slot for (dev, key), filling it from an evicted
// slot on a miss. The returned Entry carries one reference on the
// caller's behalf; the caller releases it through package inode's
// Iput, not through this package.
func (c *Cache) Get(dev uint32, key uint64) Entry {
	for {
		e, retry := c.tryHit(dev, key)
		if e != nil {
			return e
		}
		if retry {
			continue
		}
		break
	}
	return c.getByEviction(dev, key)
}

// tryHit is the non-blocking read-side lookup. retry means the
// lookup found a slot but lost a race with its eviction and must be
// retried; a (nil, false) result means a genuine miss.
func (c *Cache) tryHit(dev uint32, key uint64) (hit Entry, retry bool) {
	tok := c.epoch.ReadBegin()
	v := c.ns.Lookup(key)
	if v == nil {
		c.epoch.ReadEnd(tok)
		return nil, false
	}
	e := v.(Entry)
	ok, mismatch := e.BumpRefUnlessFree(dev)
	c.epoch.ReadEnd(tok)
	if mismatch {
		common.Fatal("icache: inode reused under a different device")
	}
	if !ok {
		return nil, true
	}
	return e, false
}

// getByEviction handles a genuine miss: find an unreferenced slot,
// remove it from the namespace, wait for every reader that might
// still be inspecting it under its old identity to quiesce, then
// publish it under the new key. Losing the publish race (another
// goroutine's Get for the same key won first) sends the slot back to
// idle and starts over.
func (c *Cache) getByEviction(dev uint32, key uint64) Entry {
	for {
		victimV := c.ns.Enumerate(func(k uint64, v interface{}) bool {
			return v.(Entry).TryMarkFree()
		})
		if victimV == nil {
			common.Fatal("icache: no free inode slots")
		}
		victim := victimV.(Entry)
		c.ns.Remove(victim.CurrentKey(), victim)
		c.waitQuiescent()

		victim.ClaimUsed(dev, key)
		if c.ns.Insert(key, victim) {
			return victim
		}
		victim.Abandon()
		c.ns.Insert(victim.Sentinel(), victim)

		if e, _ := c.tryHit(dev, key); e != nil {
			return e
		}
	}
}

// waitQuiescent blocks until every read-side section that started
// before this call has ended, guaranteeing no concurrent lookup still
// holds a raw pointer to a slot under the identity being evicted.
func (c *Cache) waitQuiescent() {
	done := make(chan struct{})
	c.epoch.Defer(func() { close(done) })
	<-done
}

// Defer2 schedules a (dev, blockno) free for once every read-side
// section that might still observe the block under its old identity
// has quiesced, delegating to the cache's own epoch domain. This is
// package inode's route to spec.md §6's defer_free2(a, b, fn): a
// freed data block is reclaimed through the exact same mechanism an
// evicted cache slot is.
func (c *Cache) Defer2(a, b uint64, fn func(uint64, uint64)) {
	c.epoch.Defer2(a, b, fn)
}

// Retire removes entry from the namespace under its current key and
// hands it back to the idle pool under its sentinel identity once
// quiescent, used by a caller that just freed an inode's on-disk
// content. Until the deferred reinsertion runs, the slot is in the
// namespace under neither key, so no Get can claim it.
func (c *Cache) Retire(entry Entry) {
	c.ns.Remove(entry.CurrentKey(), entry)
	entry.Abandon()
	sentinel := entry.Sentinel()
	c.epoch.Defer(func() {
		c.ns.Insert(sentinel, entry)
	})
}
