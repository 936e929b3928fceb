package namei_test

import (
	"testing"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs"
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/inode"
)

func mkfs(t *testing.T) *xv6fs.FileSystem {
	t.Helper()
	fsys := xv6fs.Mkfs(disk.NewMemDisk(1000), 1000, 200)
	t.Cleanup(fsys.Shutdown)
	return fsys
}

// mkdir allocates a directory, links it into parent (already held
// write-locked by the caller) under name, and returns it unlocked.
func mkdir(t *testing.T, fsys *xv6fs.FileSystem, parent *inode.Inode, name string) *inode.Inode {
	t.Helper()
	d := fsys.Ialloc(common.KindDir)
	if !fsys.Dirlink(d, ".", d.Inum) || !fsys.Dirlink(d, "..", parent.Inum) {
		t.Fatalf("could not bootstrap . and .. for %q", name)
	}
	fsys.Iunlock(d, true)
	if !fsys.Dirlink(parent, name, d.Inum) {
		t.Fatalf("could not link %q into parent", name)
	}
	return d
}

func TestNameiResolvesNestedPath(t *testing.T) {
	fsys := mkfs(t)

	fsys.Ilock(fsys.Root, true)
	a := mkdir(t, fsys, fsys.Root, "a")
	fsys.Iunlock(fsys.Root, true)

	fsys.Ilock(a, true)
	file := fsys.Ialloc(common.KindFile)
	fsys.Writei(file, []byte("x"), 0)
	fsys.Iunlock(file, true)
	if !fsys.Dirlink(a, "b", file.Inum) {
		t.Fatalf("could not link b under a")
	}
	fsys.Iunlock(a, true)
	// Capture file's inum before dropping the last reference to it or
	// to a: once Iput runs, either slot may be evicted and reclaimed
	// under a different identity, so reading .Inum afterward is unsafe.
	fileInum := file.Inum
	fsys.Iput(a)
	fsys.Iput(file)

	got := fsys.Namei(fsys.Root, "/a/b")
	if got == nil {
		t.Fatalf("Namei(/a/b) = nil, want a handle")
	}
	if got.Inum != fileInum {
		t.Fatalf("Namei(/a/b) resolved to inum %d, want %d", got.Inum, fileInum)
	}
	fsys.Iput(got)
}

func TestNameiCollapsesRepeatedSlashes(t *testing.T) {
	fsys := mkfs(t)

	fsys.Ilock(fsys.Root, true)
	a := mkdir(t, fsys, fsys.Root, "a")
	fsys.Iunlock(fsys.Root, true)

	fsys.Ilock(a, true)
	file := fsys.Ialloc(common.KindFile)
	fsys.Iunlock(file, true)
	fsys.Dirlink(a, "b", file.Inum)
	fsys.Iunlock(a, true)
	fsys.Iput(a)
	fsys.Iput(file)

	clean := fsys.Namei(fsys.Root, "/a/b")
	messy := fsys.Namei(fsys.Root, "///a//b")
	if clean == nil || messy == nil {
		t.Fatalf("both lookups should succeed")
	}
	if clean.Inum != messy.Inum {
		t.Fatalf("namei(\"///a//b\") should equal namei(\"/a/b\")")
	}
	fsys.Iput(clean)
	fsys.Iput(messy)
}

func TestNameiparentYieldsParentAndLastElement(t *testing.T) {
	fsys := mkfs(t)

	fsys.Ilock(fsys.Root, true)
	a := mkdir(t, fsys, fsys.Root, "a")
	fsys.Iunlock(fsys.Root, true)
	// Capture a's inum before dropping the last reference to it: once
	// Iput runs, a's slot may be evicted and reclaimed under a
	// different identity, so a.Inum is no longer safe to read.
	aInum := a.Inum
	fsys.Iput(a)

	parent, name := fsys.Nameiparent(fsys.Root, "/a/b")
	if parent == nil {
		t.Fatalf("Nameiparent(/a/b) = nil parent")
	}
	if parent.Inum != aInum {
		t.Fatalf("Nameiparent(/a/b) parent = inum %d, want a's inum %d", parent.Inum, aInum)
	}
	if name != "b" {
		t.Fatalf("Nameiparent(/a/b) name = %q, want \"b\"", name)
	}
	fsys.Iput(parent)
}

func TestNameiparentOnRootReturnsNil(t *testing.T) {
	fsys := mkfs(t)

	parent, _ := fsys.Nameiparent(fsys.Root, "/")
	if parent != nil {
		t.Fatalf("Nameiparent(/) should return nil: root has no parent within the path")
	}
}

func TestNameiMissingElementFails(t *testing.T) {
	fsys := mkfs(t)

	got := fsys.Namei(fsys.Root, "/nope")
	if got != nil {
		t.Fatalf("Namei of a nonexistent name should return nil")
	}
}

func TestNameCacheHitAndInvalidationStayConsistent(t *testing.T) {
	fsys := mkfs(t)

	fsys.Ilock(fsys.Root, true)
	file := fsys.Ialloc(common.KindFile)
	fileInum := file.Inum
	fsys.Iunlock(file, true)
	fsys.Dirlink(fsys.Root, "f", fileInum)
	fsys.Iunlock(fsys.Root, true)
	fsys.Iput(file)

	first := fsys.Namei(fsys.Root, "/f")
	second := fsys.Namei(fsys.Root, "/f") // should hit the name cache
	if first == nil || second == nil || first.Inum != second.Inum {
		t.Fatalf("repeated lookups of the same path should agree")
	}
	fsys.Iput(first)
	fsys.Iput(second)

	// Re-point "f" at a different inode. If the cached (root, "f") ->
	// fileInum entry were not invalidated, this lookup would still
	// return the old inum instead of the replacement's.
	fsys.Ilock(fsys.Root, true)
	replacement := fsys.Ialloc(common.KindFile)
	replacementInum := replacement.Inum
	fsys.Iunlock(replacement, true)
	if !fsys.Unlink(fsys.Root, "f") {
		t.Fatalf("Unlink(root, \"f\") should succeed")
	}
	if !fsys.Dirlink(fsys.Root, "f", replacementInum) {
		t.Fatalf("Dirlink(root, \"f\", replacement) should succeed after Unlink")
	}
	fsys.Iunlock(fsys.Root, true)
	fsys.Iput(replacement)

	third := fsys.Namei(fsys.Root, "/f")
	if third == nil {
		t.Fatalf("Namei(/f) after replacement = nil, want a handle")
	}
	if third.Inum != replacementInum {
		t.Fatalf("Namei(/f) after replacement = inum %d, want the replacement's inum %d (stale name cache entry not invalidated)", third.Inum, replacementInum)
	}
	fsys.Iput(third)
}
