// Package common holds the on-disk layout constants and the small
// value types shared by every layer of the file system: the block
// allocator, the inode cache, the directory encoding, and the path
// resolver.
package common

import "github.com/tchajed/goose/machine/disk"

// BSIZE is the size in bytes of a disk block. It is pinned to the
// underlying disk package's block size rather than a separate
// constant, the same way every teacher package below it (bcache,
// super, goose/fs.go) sizes its on-disk structures off disk.BlockSize
// instead of hand-picking a number that has to be kept in sync.
const BSIZE uint64 = disk.BlockSize

// NDIRECT is the number of direct block pointers in a dinode's
// address array. NINDIRECT is the number of block numbers that fit
// in a single indirect block. MAXFILE is the largest file size, in
// blocks, addressable by NDIRECT direct blocks plus one singly
// indirect block (spec.md §3: no multi-level indirection).
const (
	NDIRECT   uint64 = 12
	NINDIRECT uint64 = BSIZE / 4 // one uint32 block number per slot
	MAXFILE   uint64 = NDIRECT + NINDIRECT
)

// DIRSIZ is the fixed width, in bytes, of a directory entry's name
// field. Names longer than DIRSIZ are truncated to exactly DIRSIZ
// bytes with no terminator (spec.md §3, §4.7).
const DIRSIZ = 14

// IPB is the number of on-disk inodes packed per block, and BPB is
// the number of bitmap bits tracked per bitmap block.
const (
	// INODESZ is sizeof(dinode) on disk: four int16 fields (type,
	// major, minor, nlink) + one uint32 field (gen) + one uint64
	// field (size) + a (NDIRECT+1)-entry uint32 address array.
	INODESZ uint64 = 4*2 + 4 + 8 + (NDIRECT+1)*4
	IPB     uint64 = BSIZE / INODESZ
	BPB     uint64 = BSIZE * 8
)

// NINODE is the fixed number of slots in the in-memory inode cache
// (spec.md §3).
const NINODE = 50

// Inum identifies an on-disk inode; Bnum identifies a disk block.
// Zero means "none" for both.
type Inum uint32
type Bnum uint32

const NULLINUM Inum = 0
const NULLBNUM Bnum = 0
const ROOTINUM Inum = 1
const ROOTDEV uint32 = 0

// Kind is the type tag stored in a dinode: free, regular file,
// directory, or device special file.
type Kind int16

const (
	KindFree   Kind = 0
	KindFile   Kind = 1
	KindDir    Kind = 2
	KindDevice Kind = 3
)

// IBLOCK returns the block number holding the dinode for inum, given
// the block the inode region starts at.
func IBLOCK(inum Inum, inodeStart Bnum) Bnum {
	return inodeStart + Bnum(uint64(inum)/IPB)
}

// BBLOCK returns the bitmap block covering data block b, given the
// block the bitmap region starts at.
func BBLOCK(b Bnum, bitmapStart Bnum) Bnum {
	return bitmapStart + Bnum(uint64(b)/BPB)
}

// Fatal aborts the process with a tagged message. Every condition
// spec.md §7 classifies as a "fatal invariant violation" — double
// free, out of inodes, out of blocks, lock misuse, a corrupt on-disk
// inode observed through a valid cache slot, or a file grown past
// MAXFILE in Bmap — calls Fatal instead of returning an error: none
// of these are meant to be recoverable by a caller.
func Fatal(tag string) {
	panic(tag)
}
