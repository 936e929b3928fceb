// Package bcache is the buffered-block layer: the external
// collaborator spec.md §1 places out of scope, narrowed to the three
// operations the rest of the module actually calls through —
// ReadBlock, WriteBlock, ReleaseBlock. It is write-through: a write
// lands on the underlying disk.Disk before WriteBlock returns, so
// there is no log and no crash-consistency ordering to reason about
// (spec.md's "writes are immediate block writes, no WAL" Non-goal).
package bcache

import (
	"sync"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs/common"
)

// BCACHESZ is the number of blocks the cache holds resident at once.
const BCACHESZ uint64 = 512

type slot struct {
	mu   sync.Mutex
	ref  uint32
	blk  disk.Block
	have bool
}

type Bcache struct {
	mu      sync.Mutex
	d       disk.Disk
	entries map[common.Bnum]*slot
}

func MkBcache(d disk.Disk) *Bcache {
	return &Bcache{
		d:       d,
		entries: make(map[common.Bnum]*slot, BCACHESZ),
	}
}

func (bc *Bcache) evict() {
	for bn, s := range bc.entries {
		if s.ref == 0 {
			delete(bc.entries, bn)
			return
		}
	}
}

func (bc *Bcache) slotFor(bn common.Bnum) *slot {
	bc.mu.Lock()
	s := bc.entries[bn]
	if s != nil {
		s.ref++
		bc.mu.Unlock()
		return s
	}
	if uint64(len(bc.entries)) >= BCACHESZ {
		bc.evict()
	}
	s = &slot{ref: 1}
	bc.entries[bn] = s
	bc.mu.Unlock()
	return s
}

// Buf is a handle on one cached block. Dirty marks it for write-back
// on Release.
type Buf struct {
	bn    common.Bnum
	Data  disk.Block
	dirty bool
	slot  *slot
}

func (b *Buf) SetDirty() {
	b.dirty = true
}

func (b *Buf) Bnum() common.Bnum {
	return b.bn
}

// ReadBlock returns a handle on block bn, reading it from disk on a
// cold cache miss. writer is advisory (spec.md §6's read_block takes
// a writer_intent flag); this implementation doesn't need it because
// the cache's own mutex already serializes readers and writers of
// the same slot, but the parameter is kept so callers read the same
// as spec.md's interface.
func (bc *Bcache) ReadBlock(bn common.Bnum, writer bool) *Buf {
	s := bc.slotFor(bn)
	s.mu.Lock()
	if !s.have {
		s.blk = bc.d.Read(uint64(bn))
		s.have = true
	}
	blk := make(disk.Block, len(s.blk))
	copy(blk, s.blk)
	s.mu.Unlock()
	return &Buf{bn: bn, Data: blk, slot: s}
}

// WriteBlock writes buf's contents through to disk immediately and
// clears its dirty bit.
func (bc *Bcache) WriteBlock(buf *Buf) {
	buf.slot.mu.Lock()
	buf.slot.blk = make(disk.Block, len(buf.Data))
	copy(buf.slot.blk, buf.Data)
	buf.slot.have = true
	buf.slot.mu.Unlock()
	bc.d.Write(uint64(buf.bn), buf.Data)
	buf.dirty = false
}

// ReleaseBlock gives up the caller's hold on buf. If dirty (or the
// buffer was marked dirty since the read), its contents are written
// through first.
func (bc *Bcache) ReleaseBlock(buf *Buf, dirty bool) {
	if dirty || buf.dirty {
		bc.WriteBlock(buf)
	}
	bc.mu.Lock()
	s := bc.entries[buf.bn]
	if s != nil {
		s.ref--
	}
	bc.mu.Unlock()
}

func (bc *Bcache) Barrier() {
	bc.d.Barrier()
}

func (bc *Bcache) Size() uint64 {
	return bc.d.Size()
}
