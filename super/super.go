// Package super reads and computes the on-disk layout spec.md §3
// calls the superblock: total block count and inode count are stored
// on disk at block 1; every other region boundary (inode blocks,
// bitmap blocks, data blocks) is derived from those two numbers the
// same way original_source/fs.c's readsb and BBLOCK/IBLOCK macros do,
// rather than being stored redundantly.
package super

import (
	"encoding/binary"

	"github.com/mit-pdos/xv6fs/bcache"
	"github.com/mit-pdos/xv6fs/common"
)

// SuperBlockNum is the fixed block holding the on-disk superblock.
// Block 0 is reserved for a boot sector, never read by this package.
const SuperBlockNum common.Bnum = 1

// Super is the computed disk layout, derived once at mount time from
// the two fields actually stored on disk (Size, NInodes).
type Super struct {
	Size    uint64 // total blocks on the disk, including boot+super
	NInodes uint64

	InodeStart  common.Bnum
	BitmapStart common.Bnum
	DataStart   common.Bnum
	NDataBlocks uint64
}

const diskLayoutSize = 16

func computeLayout(size, ninodes uint64) *Super {
	inodeBlocks := (ninodes + common.IPB - 1) / common.IPB
	inodeStart := common.Bnum(2) // block 0: boot, block 1: superblock
	bitmapStart := inodeStart + common.Bnum(inodeBlocks)

	dataStart := uint64(bitmapStart)
	// The bitmap occupies ceil(ndata/BPB) blocks, but ndata depends
	// on dataStart, which depends on the bitmap size. Iterate to a
	// fixed point: growing the bitmap can only ever claim one more
	// block, so this converges in a couple of passes, same as mkfs.
	for {
		ndata := size - dataStart
		bitmapBlocks := (ndata + common.BPB - 1) / common.BPB
		next := uint64(bitmapStart) + bitmapBlocks
		if next == dataStart {
			break
		}
		dataStart = next
	}

	return &Super{
		Size:        size,
		NInodes:     ninodes,
		InodeStart:  inodeStart,
		BitmapStart: bitmapStart,
		DataStart:   common.Bnum(dataStart),
		NDataBlocks: size - dataStart,
	}
}

// Read loads the superblock from bc and computes the derived layout.
func Read(bc *bcache.Bcache) *Super {
	buf := bc.ReadBlock(SuperBlockNum, false)
	size := binary.LittleEndian.Uint64(buf.Data[0:8])
	ninodes := binary.LittleEndian.Uint64(buf.Data[8:16])
	bc.ReleaseBlock(buf, false)
	return computeLayout(size, ninodes)
}

// Write initializes a fresh superblock for a disk of the given total
// size and inode count. Used by mkfs only; a mounted filesystem never
// rewrites its own superblock.
func Write(bc *bcache.Bcache, size, ninodes uint64) *Super {
	sup := computeLayout(size, ninodes)
	buf := bc.ReadBlock(SuperBlockNum, true)
	binary.LittleEndian.PutUint64(buf.Data[0:8], size)
	binary.LittleEndian.PutUint64(buf.Data[8:16], ninodes)
	for i := diskLayoutSize; i < len(buf.Data); i++ {
		buf.Data[i] = 0
	}
	buf.SetDirty()
	bc.ReleaseBlock(buf, true)
	return sup
}

// IBlock returns the block holding inum's on-disk inode.
func (s *Super) IBlock(inum common.Inum) common.Bnum {
	return s.InodeStart + common.Bnum(uint64(inum)/common.IPB)
}

// BBlock returns the bitmap block holding bn's free/used bit.
func (s *Super) BBlock(bn common.Bnum) common.Bnum {
	rel := uint64(bn - s.DataStart)
	return s.BitmapStart + common.Bnum(rel/common.BPB)
}
