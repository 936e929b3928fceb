// Package inode is the in-memory inode: its cache-slot bookkeeping
// (ref count, busy/free/valid flags, the per-slot lock and condition
// variable) and the reader/writer lock protocol built on top of them.
// Both halves are grounded directly on original_source/fs.c's struct
// inode and its ilock/iunlock/iunlockput: a cache slot and its lock
// are the same object there, and they stay the same object here.
//
// icache owns slot lifecycle (which dev/inum a slot currently
// represents); this package owns what callers actually do with a
// slot once they hold a reference to it.
package inode

import (
	"sync"
	"sync/atomic"

	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/util"
)

// Flags mirrors spec's four inode-slot flags. VALID means the on-disk
// fields below have been read in; BUSYR/BUSYW track the
// reader/writer lock; FREE means the slot is idle and may be claimed
// by the cache for any dev/inum.
type Flags uint32

const (
	FlagValid Flags = 1 << iota
	FlagBusyR
	FlagBusyW
	FlagFree
)

// Inode is one slot of the fixed-size inode cache. Dev/Inum/Gen/Kind/
// Nlink/Size/Addrs are the fields a dinode holds on disk; everything
// else exists purely to manage the slot.
type Inode struct {
	sentinel common.Inum // permanent idle-pool identity, never a real inum
	curKey   uint64       // namespace key this slot is presently stored under

	mu       sync.Mutex
	cond     *sync.Cond
	ref      int32
	flags    Flags
	readbusy int32

	Dev   uint32
	Inum  common.Inum
	Kind  common.Kind
	Major int16
	Minor int16
	Nlink int16
	Gen   uint32
	Size  uint64
	Addrs [common.NDIRECT + 1]common.Bnum
}

// NewPool allocates n idle inode slots, each given a unique sentinel
// identity in a key space disjoint from any real inum, mirroring
// fs.c's iinit() pre-populating the namespace with negative inums so
// the cache is always "full" and every miss goes through eviction.
func NewPool(n int) []*Inode {
	pool := make([]*Inode, n)
	for i := range pool {
		sentinel := ^common.Inum(0) - common.Inum(i)
		ip := &Inode{sentinel: sentinel, curKey: uint64(sentinel), flags: FlagFree}
		ip.cond = sync.NewCond(&ip.mu)
		pool[i] = ip
	}
	return pool
}

// The following methods implement icache.Entry; icache never reaches
// into an Inode's fields directly, only through these.

func (ip *Inode) Sentinel() uint64   { return uint64(ip.sentinel) }
func (ip *Inode) CurrentKey() uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.curKey
}

// TryMarkFree claims ip as an eviction candidate if nobody holds a
// reference to it, whether it was already idle or is presently
// resident under some real inum. It does not touch the namespace.
func (ip *Inode) TryMarkFree() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.ref != 0 {
		return false
	}
	ip.flags |= FlagFree
	return true
}

// BumpRefUnlessFree is the cache-hit fast path: bump the ref count
// first, then check whether the slot is (or just became) free. If it
// is, back off — the caller lost a race with eviction and must retry
// its lookup — matching fs.c's iget comment that ref must be bumped
// before FREE is checked, never the other way around.
func (ip *Inode) BumpRefUnlessFree(dev uint32) (ok bool, devMismatch bool) {
	atomic.AddInt32(&ip.ref, 1)
	ip.mu.Lock()
	free := ip.flags&FlagFree != 0
	d := ip.Dev
	ip.mu.Unlock()
	if free {
		atomic.AddInt32(&ip.ref, -1)
		return false, false
	}
	if d != dev {
		atomic.AddInt32(&ip.ref, -1)
		return false, true
	}
	return true, false
}

// ClaimUsed transitions an evicted, quiesced slot into representing
// (dev, key) with one reference held on behalf of the caller that
// evicted it. The slot is not VALID: its on-disk fields are read in
// on the next Ilock.
func (ip *Inode) ClaimUsed(dev uint32, key uint64) {
	ip.mu.Lock()
	ip.Dev = dev
	ip.Inum = common.Inum(key)
	ip.curKey = key
	ip.ref = 1
	ip.flags = 0
	ip.readbusy = 0
	ip.Kind = common.KindFree
	ip.mu.Unlock()
}

// Abandon reverts a slot to idle under its sentinel identity, used
// when ClaimUsed lost the race to insert under its new key (someone
// else's iget got there first).
func (ip *Inode) Abandon() {
	ip.mu.Lock()
	ip.ref = 0
	ip.flags = FlagFree
	ip.curKey = uint64(ip.sentinel)
	ip.mu.Unlock()
}

// DropRef releases the caller's reference and returns the ref count
// that remains.
func (ip *Inode) DropRef() int32 {
	return atomic.AddInt32(&ip.ref, -1)
}

// Idup adds a reference to an inode the caller already holds one on.
// Safe without any locking or retry: the caller's existing reference
// already rules out the slot becoming FREE underneath it.
func Idup(ip *Inode) *Inode {
	atomic.AddInt32(&ip.ref, 1)
	return ip
}

// Ilock acquires ip's reader or writer lock, blocking on ip's
// condition variable while it conflicts with the current holder(s),
// then fills ip's on-disk fields in if they are not already VALID.
// Matches fs.c's ilock: the disk read happens here, not in iget,
// because a cache hit must never block on I/O before a caller even
// asks to use the inode.
func (fs *FS) Ilock(ip *Inode, writer bool) {
	ip.mu.Lock()
	if writer {
		for ip.flags&(FlagBusyR|FlagBusyW) != 0 {
			ip.cond.Wait()
		}
		ip.flags |= FlagBusyW
	} else {
		for ip.flags&FlagBusyW != 0 {
			ip.cond.Wait()
		}
		ip.readbusy++
		ip.flags |= FlagBusyR
	}
	needFill := ip.flags&FlagValid == 0
	ip.mu.Unlock()

	if needFill {
		fs.fillFromDisk(ip)
		ip.mu.Lock()
		ip.flags |= FlagValid
		ip.cond.Broadcast()
		ip.mu.Unlock()
	}
}

// Iunlock releases the lock acquired by the matching Ilock call.
// writer must match the value passed to Ilock.
func (fs *FS) Iunlock(ip *Inode, writer bool) {
	ip.mu.Lock()
	if writer {
		if ip.flags&FlagBusyW == 0 {
			common.Fatal("iunlock: not held for writing")
		}
		ip.flags &^= FlagBusyW
	} else {
		if ip.readbusy == 0 {
			common.Fatal("iunlock: not held for reading")
		}
		ip.readbusy--
		if ip.readbusy == 0 {
			ip.flags &^= FlagBusyR
		}
	}
	ip.cond.Broadcast()
	ip.mu.Unlock()
}

// Iput drops the caller's reference to ip. It never touches disk: a
// write-locked caller that just dropped Nlink to zero is responsible
// for freeing ip's content (via IunlockPut) before the last reference
// goes away, matching the separation spec draws between the cache's
// iget/idup/iput and the metadata-sync operations that run under a
// write lock.
func (fs *FS) Iput(ip *Inode) (lastRef bool) {
	return ip.DropRef() == 0
}

// IunlockPut is iunlock followed by iput, with the on-disk cleanup
// that classic iput performs inline: if this was the last reference
// to an inode whose link count has already dropped to zero, truncate
// its content, mark it free on disk, and hand the slot back to the
// cache so it can be reclaimed for a different inum. A path walk that
// only ever read-locks directories along the way calls this exact
// function after every step (fs.c's namex does too), so the cleanup
// only runs when writer is true: a reader has no business truncating
// anything, and an inode found with Nlink == 0 while only read-locked
// is simply left for whoever holds it write-locked to clean up.
func (fs *FS) IunlockPut(ip *Inode, writer bool) {
	ip.mu.Lock()
	shouldFree := writer && ip.flags&FlagValid != 0 && ip.Nlink == 0 &&
		atomic.LoadInt32(&ip.ref) == 1
	ip.mu.Unlock()

	if shouldFree {
		fs.itrunc(ip)
		ip.mu.Lock()
		ip.Kind = common.KindFree
		ip.Major = 0
		ip.Minor = 0
		ip.Gen++
		ip.mu.Unlock()
		fs.writeDinode(ip)
		util.DPrintf(1, "iunlockput: freed inode %d\n", ip.Inum)
	}

	fs.Iunlock(ip, writer)
	last := fs.Iput(ip)
	if shouldFree && last {
		fs.icache.Retire(ip)
	}
}
