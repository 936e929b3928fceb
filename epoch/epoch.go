// Package epoch is a minimal instance of the "read-side deferred
// reclamation" collaborator spec.md §1 and §9 call quiescence: a
// non-blocking read-side section (ReadBegin/ReadEnd) plus a Defer
// queue that only runs once every reader that could have been inside
// a section when it was scheduled has left. icache uses it exactly
// the way original_source/fs.c uses rcu_begin_read/rcu_end_read/
// rcu_delayed around ns_lookup and slot eviction: a reader that
// bumped a slot's ref count before the section ended must never see
// the slot's backing memory reused out from under it.
package epoch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tchajed/goose/machine"
)

// nbuckets is the number of epoch generations kept live at once. Two
// is the minimum for correctness (the reclaimer needs one full past
// generation with zero readers before it is safe to run that
// generation's deferred work); three gives head-room so ReadBegin
// never blocks on the reclaimer.
const nbuckets = 3

type Domain struct {
	epoch   uint64
	active  [nbuckets]int64
	mu      sync.Mutex
	pending [nbuckets][]func()

	shutdown chan struct{}
	condShut *sync.Cond
	running  bool
}

// NewDomain starts a background reclaimer goroutine, spawned the
// same way inode/shrinker.go spawns its shrink-thread worker
// (machine.Spawn), and returns a Domain ready for ReadBegin/Defer.
func NewDomain() *Domain {
	d := &Domain{shutdown: make(chan struct{}), running: true}
	d.condShut = sync.NewCond(&d.mu)
	machine.Spawn(func() { d.reclaimLoop() })
	return d
}

// ReadBegin enters a read-side section: non-blocking, safe to call
// from any number of concurrent goroutines. The returned token must
// be passed to ReadEnd exactly once.
func (d *Domain) ReadBegin() uint64 {
	idx := atomic.LoadUint64(&d.epoch) % nbuckets
	atomic.AddInt64(&d.active[idx], 1)
	return idx
}

func (d *Domain) ReadEnd(token uint64) {
	atomic.AddInt64(&d.active[token], -1)
}

// Defer schedules fn to run once every reader that was in a section
// when Defer was called has since called ReadEnd. Use it for
// anything a concurrent reader inside a read-side section might
// still be inspecting: an evicted cache slot, a freed data block.
func (d *Domain) Defer(fn func()) {
	d.mu.Lock()
	idx := atomic.LoadUint64(&d.epoch) % nbuckets
	d.pending[idx] = append(d.pending[idx], fn)
	d.mu.Unlock()
}

// Defer2 is Defer for a two-argument callback, matching spec.md §6's
// defer_free2(a, b, fn) — used to schedule a (dev, blockno) free
// without allocating a closure at every call site by hand.
func (d *Domain) Defer2(a, b common64, fn func(common64, common64)) {
	d.Defer(func() { fn(a, b) })
}

type common64 = uint64

func (d *Domain) reclaimLoop() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.shutdown:
			d.mu.Lock()
			d.running = false
			d.condShut.Broadcast()
			d.mu.Unlock()
			return
		case <-ticker.C:
			d.tryAdvance()
		}
	}
}

// tryAdvance retires the oldest generation once it has no active
// readers, then advances the global epoch so new readers land in a
// fresh bucket.
func (d *Domain) tryAdvance() {
	cur := atomic.LoadUint64(&d.epoch)
	oldest := (cur + 1) % nbuckets
	if atomic.LoadInt64(&d.active[oldest]) != 0 {
		return
	}
	d.mu.Lock()
	work := d.pending[oldest]
	d.pending[oldest] = nil
	atomic.StoreUint64(&d.epoch, cur+1)
	d.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}

// Stop drains any remaining deferred work and stops the reclaimer
// goroutine, waiting for it to exit the same way
// inode/shrinker.go's ShrinkerSt.Shutdown waits on its nthread
// counter via a Cond.
func (d *Domain) Stop() {
	close(d.shutdown)
	d.mu.Lock()
	for d.running {
		d.condShut.Wait()
	}
	d.mu.Unlock()
	for i := 0; i < nbuckets; i++ {
		d.mu.Lock()
		work := d.pending[i]
		d.pending[i] = nil
		d.mu.Unlock()
		for _, fn := range work {
			fn()
		}
	}
}
