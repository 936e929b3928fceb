// Package xv6fs wires the block allocator, the inode cache, the
// directory encoding, and the path resolver into one mountable file
// system, re-exporting spec.md §6's syscall-layer surface
// (Iget/Idup/Iput/Ilock/Iunlock/IunlockPut/Readi/Writei/Stati/
// Dirlookup/Dirlink/Namei/Nameiparent/Ialloc) as methods on
// FileSystem. Grounded on the teacher's top-level goose_nfs package,
// which wires cache/bcache/dir/inode into one NFS server the same
// way; here there is no NFS layer above it, just this facade.
package xv6fs

import (
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs/bcache"
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/devsw"
	"github.com/mit-pdos/xv6fs/dirent"
	"github.com/mit-pdos/xv6fs/epoch"
	"github.com/mit-pdos/xv6fs/icache"
	"github.com/mit-pdos/xv6fs/inode"
	"github.com/mit-pdos/xv6fs/namecache"
	"github.com/mit-pdos/xv6fs/namei"
	"github.com/mit-pdos/xv6fs/super"
)

// FileSystem bundles every collaborator a mounted file system needs
// and re-exports the operations spec.md §6 lists as exposed to
// callers. Root is fetched once at mount time and kept referenced
// for the lifetime of the FileSystem, so an absolute path lookup
// never has to special-case "is this the very first Iget".
type FileSystem struct {
	Bc        *bcache.Bcache
	Super     *super.Super
	Devsw     *devsw.Table
	NameCache *namecache.Cache
	FS        *inode.FS
	Root      *inode.Inode

	epoch *epoch.Domain
}

func wire(bc *bcache.Bcache, sup *super.Super) *FileSystem {
	ep := epoch.NewDomain()
	pool := inode.NewPool(common.NINODE)
	entries := make([]icache.Entry, len(pool))
	for i, ip := range pool {
		entries[i] = ip
	}
	ic := icache.New(ep, entries)
	dt := devsw.NewTable()
	fs := inode.NewFS(bc, sup, ic, dt)

	fsys := &FileSystem{
		Bc:        bc,
		Super:     sup,
		Devsw:     dt,
		NameCache: namecache.New(),
		FS:        fs,
		epoch:     ep,
	}
	fsys.Root = fs.Iget(common.ROOTDEV, common.ROOTINUM)
	return fsys
}

// Mount opens an existing file system image on d: reads the
// superblock, builds the inode cache and device table, and returns a
// FileSystem ready to serve Namei/Ialloc/Readi/Writei calls.
func Mount(d disk.Disk) *FileSystem {
	bc := bcache.MkBcache(d)
	sup := super.Read(bc)
	return wire(bc, sup)
}

// Mkfs formats a fresh file system of the given size (in blocks) and
// inode count onto d, then mounts it. The superblock, inode region,
// and bitmap region are all written from scratch; the root directory
// is allocated and populated with "." and ".." before Mkfs returns,
// matching the teacher's mkfs.go's initFs (minus the reserved
// null-inode bookkeeping the log-based layout needed: this layout has
// no log, so inode 0 is simply never allocated).
func Mkfs(d disk.Disk, size, ninodes uint64) *FileSystem {
	bc := bcache.MkBcache(d)
	sup := super.Write(bc, size, ninodes)
	zeroRegion(bc, sup.InodeStart, sup.BitmapStart)
	zeroRegion(bc, sup.BitmapStart, sup.DataStart)

	fsys := wire(bc, sup)

	root := fsys.Ialloc(common.KindDir)
	if root.Inum != common.ROOTINUM {
		common.Fatal("mkfs: root did not get ROOTINUM")
	}
	if !dirent.InitDir(fsys.FS, root, common.ROOTINUM) {
		common.Fatal("mkfs: could not initialize root directory")
	}
	// root and fsys.Root are the same cache slot: wire's Iget and this
	// Ialloc each hold one reference to it. IunlockPut here drops the
	// Ialloc call's reference, leaving fsys.Root's own reference (from
	// wire) as the one that keeps it pinned for the FileSystem's life.
	fsys.FS.IunlockPut(root, true)
	return fsys
}

func zeroRegion(bc *bcache.Bcache, from, to common.Bnum) {
	for bn := from; bn < to; bn++ {
		buf := bc.ReadBlock(bn, true)
		for i := range buf.Data {
			buf.Data[i] = 0
		}
		buf.SetDirty()
		bc.ReleaseBlock(buf, true)
	}
}

// Shutdown stops the background reclamation goroutine started by
// Mount/Mkfs, draining any deferred frees first. Callers that are
// about to drop their last reference to a FileSystem (tests in
// particular) should call this so Defer'd work for freed blocks and
// evicted slots actually runs.
func (fsys *FileSystem) Shutdown() {
	fsys.epoch.Stop()
}

// Iget returns a handle on (dev, inum), bumping its reference count.
func (fsys *FileSystem) Iget(dev uint32, inum common.Inum) *inode.Inode {
	return fsys.FS.Iget(dev, inum)
}

// Idup adds a reference to an inode the caller already holds one on.
func (fsys *FileSystem) Idup(ip *inode.Inode) *inode.Inode {
	return inode.Idup(ip)
}

// Iput drops the caller's reference without touching disk.
func (fsys *FileSystem) Iput(ip *inode.Inode) {
	fsys.FS.Iput(ip)
}

// Ilock/Iunlock/IunlockPut are the reader/writer lock protocol,
// spec.md §4.3.
func (fsys *FileSystem) Ilock(ip *inode.Inode, writer bool)   { fsys.FS.Ilock(ip, writer) }
func (fsys *FileSystem) Iunlock(ip *inode.Inode, writer bool) { fsys.FS.Iunlock(ip, writer) }
func (fsys *FileSystem) IunlockPut(ip *inode.Inode, writer bool) {
	fsys.FS.IunlockPut(ip, writer)
}

// Readi/Writei/Stati/Itrunc/Iupdate are spec.md §4.5/§4.8. Readi and
// Writei return a negative count for an invalid request (off past
// the end of the file), matching spec.md §7's error model.
func (fsys *FileSystem) Readi(ip *inode.Inode, dst []byte, off uint64) int64 {
	return fsys.FS.Readi(ip, dst, off)
}
func (fsys *FileSystem) Writei(ip *inode.Inode, src []byte, off uint64) int64 {
	return fsys.FS.Writei(ip, src, off)
}
func (fsys *FileSystem) Stati(ip *inode.Inode) inode.Stat {
	var st inode.Stat
	fsys.FS.Stati(ip, &st)
	return st
}
func (fsys *FileSystem) Itrunc(ip *inode.Inode) { fsys.FS.Itrunc(ip) }
func (fsys *FileSystem) Iupdate(ip *inode.Inode) { fsys.FS.Iupdate(ip) }

// Dirlookup/Dirlink are spec.md §4.6, layered on package dirent's
// byte-level scan plus an Iget for the match.
func (fsys *FileSystem) Dirlookup(dp *inode.Inode, name string) (*inode.Inode, uint64) {
	inum, off := dirent.Lookup(fsys.FS, dp, name)
	if inum == common.NULLINUM {
		return nil, 0
	}
	return fsys.FS.Iget(dp.Dev, inum), off
}

func (fsys *FileSystem) Dirlink(dp *inode.Inode, name string, inum common.Inum) bool {
	ok := dirent.Link(fsys.FS, dp, name, inum)
	if ok {
		fsys.NameCache.Invalidate(dp.Inum, name)
	}
	return ok
}

// Unlink clears name's entry in dp, invalidating any cached
// resolution for (dp, name) so a later lookup never returns the
// removed inum.
func (fsys *FileSystem) Unlink(dp *inode.Inode, name string) bool {
	ok := dirent.Unlink(fsys.FS, dp, name)
	if ok {
		fsys.NameCache.Invalidate(dp.Inum, name)
	}
	return ok
}

// Namei/Nameiparent are spec.md §4.7, given cwd explicitly since the
// process table is an out-of-scope collaborator.
func (fsys *FileSystem) Namei(cwd *inode.Inode, path string) *inode.Inode {
	return namei.Namei(fsys.FS, fsys.NameCache, cwd, path)
}

func (fsys *FileSystem) Nameiparent(cwd *inode.Inode, path string) (*inode.Inode, string) {
	return namei.Nameiparent(fsys.FS, fsys.NameCache, cwd, path)
}

// Ialloc allocates a fresh on-disk inode of the given kind and
// returns a write-locked handle on it, spec.md §6's ialloc.
func (fsys *FileSystem) Ialloc(kind common.Kind) *inode.Inode {
	return fsys.FS.Ialloc(common.ROOTDEV, kind, fsys.FS.Iget)
}
