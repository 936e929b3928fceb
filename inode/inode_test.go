package inode

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIdupIputRefCounting(t *testing.T) {
	pool := NewPool(2)
	ip := pool[0]
	ip.ClaimUsed(0, 5)

	Idup(ip)
	Idup(ip)
	if ip.ref != 3 {
		t.Fatalf("ref = %d, want 3 after two Idups on top of ClaimUsed's 1", ip.ref)
	}
	if last := ip.DropRef(); last != 2 {
		t.Fatalf("DropRef = %d, want 2", last)
	}
	ip.DropRef()
	if last := ip.DropRef(); last != 0 {
		t.Fatalf("DropRef = %d, want 0 once every reference is gone", last)
	}
}

func TestBumpRefUnlessFreeBacksOffWhenFree(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0] // idle, FlagFree set by NewPool

	ok, mismatch := ip.BumpRefUnlessFree(0)
	if ok || mismatch {
		t.Fatalf("BumpRefUnlessFree on a free slot should back off cleanly")
	}
	if ip.ref != 0 {
		t.Fatalf("ref = %d, want 0 after backing off", ip.ref)
	}
}

func TestBumpRefUnlessFreeDetectsDevMismatch(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0]
	ip.ClaimUsed(1, 5)

	ok, mismatch := ip.BumpRefUnlessFree(2)
	if ok || !mismatch {
		t.Fatalf("BumpRefUnlessFree should report a device mismatch")
	}
	if ip.ref != 1 {
		t.Fatalf("ref = %d, want 1: a mismatched bump must be undone", ip.ref)
	}
}

// fsForLocking builds just enough of an FS to exercise Ilock/Iunlock:
// these two methods only touch ip's own mutex/condvar/flags, never
// fs's fields, so a zero-value FS is sufficient.
func fsForLocking() *FS { return &FS{} }

func TestMultipleReadersCoexist(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0]
	ip.ClaimUsed(0, 1)
	ip.flags |= FlagValid // skip the disk-fill path
	fs := fsForLocking()

	fs.Ilock(ip, false)
	fs.Ilock(ip, false)
	if ip.readbusy != 2 {
		t.Fatalf("readbusy = %d, want 2", ip.readbusy)
	}
	fs.Iunlock(ip, false)
	if ip.readbusy != 1 {
		t.Fatalf("readbusy = %d, want 1 after one Iunlock", ip.readbusy)
	}
	fs.Iunlock(ip, false)
	if ip.flags&FlagBusyR != 0 {
		t.Fatalf("BUSYR should clear once every reader has unlocked")
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0]
	ip.ClaimUsed(0, 1)
	ip.flags |= FlagValid
	fs := fsForLocking()

	fs.Ilock(ip, true)

	readerDone := make(chan struct{})
	go func() {
		fs.Ilock(ip, false)
		close(readerDone)
		fs.Iunlock(ip, false)
	}()

	select {
	case <-readerDone:
		t.Fatalf("reader proceeded while the writer lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	fs.Iunlock(ip, true)

	select {
	case <-readerDone:
	case <-time.After(time.Second):
		t.Fatalf("reader never proceeded after the writer released the lock")
	}
}

func TestWriterWaitsForAllReaders(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0]
	ip.ClaimUsed(0, 1)
	ip.flags |= FlagValid
	fs := fsForLocking()

	fs.Ilock(ip, false)
	fs.Ilock(ip, false)

	writerDone := make(chan struct{})
	go func() {
		fs.Ilock(ip, true)
		close(writerDone)
		fs.Iunlock(ip, true)
	}()

	select {
	case <-writerDone:
		t.Fatalf("writer proceeded while readers were still active")
	case <-time.After(20 * time.Millisecond):
	}

	fs.Iunlock(ip, false)
	select {
	case <-writerDone:
		t.Fatalf("writer proceeded while one reader was still active")
	case <-time.After(20 * time.Millisecond):
	}

	fs.Iunlock(ip, false)
	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatalf("writer never proceeded once both readers left")
	}
}

func TestConcurrentIlockNeverSeesBothBusyWAndBusyR(t *testing.T) {
	pool := NewPool(1)
	ip := pool[0]
	ip.ClaimUsed(0, 1)
	ip.flags |= FlagValid
	fs := fsForLocking()

	var wg sync.WaitGroup
	var violated int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(writer bool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fs.Ilock(ip, writer)
				if writer && ip.flags&FlagBusyR != 0 {
					atomic.StoreInt32(&violated, 1)
				}
				fs.Iunlock(ip, writer)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	if atomic.LoadInt32(&violated) != 0 {
		t.Fatalf("observed BUSYW set alongside BUSYR")
	}
}
