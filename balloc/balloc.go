// Package balloc is the block allocator: spec.md §4.1. It scans the
// on-disk bitmap a block at a time through bcache and never holds
// more than one bitmap block locked at once, so allocations are not
// totally ordered across bitmap blocks — they simply proceed in scan
// order (spec.md §5).
package balloc

import (
	"github.com/mit-pdos/xv6fs/bcache"
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/util"
)

// Alloc scans the bitmap blocks starting at bitmapStart,
// covering nblocks data blocks starting at dataStart, for the first
// clear bit, sets it, and returns the corresponding data block
// number. It panics (spec.md §7: fatal invariant violation) if every
// bit is set.
func Alloc(bc *bcache.Bcache, bitmapStart common.Bnum, nblocks uint64, dataStart common.Bnum) common.Bnum {
	for b := uint64(0); b < nblocks; b += common.BPB {
		bn := bitmapStart + common.Bnum(b/common.BPB)
		buf := bc.ReadBlock(bn, true)
		for bi := uint64(0); bi < common.BPB && b+bi < nblocks; bi++ {
			byteIdx := bi / 8
			mask := byte(1 << (bi % 8))
			if buf.Data[byteIdx]&mask == 0 {
				buf.Data[byteIdx] |= mask
				buf.SetDirty()
				bc.ReleaseBlock(buf, true)
				blkno := dataStart + common.Bnum(b+bi)
				util.DPrintf(5, "balloc: alloc %d\n", blkno)
				return blkno
			}
		}
		bc.ReleaseBlock(buf, false)
	}
	common.Fatal("balloc: out of blocks")
	return common.NULLBNUM
}

// Free zeroes the data block and then clears its bitmap bit, in that
// order: an allocator racing with a free must never observe a bit
// that is clear while the block still holds the old occupant's
// bytes. Freeing an already-free block is fatal (double free).
func Free(bc *bcache.Bcache, bitmapStart common.Bnum, dataStart common.Bnum, bn common.Bnum) {
	zbuf := bc.ReadBlock(bn, true)
	for i := range zbuf.Data {
		zbuf.Data[i] = 0
	}
	zbuf.SetDirty()
	bc.ReleaseBlock(zbuf, true)

	rel := uint64(bn - dataStart)
	bbn := bitmapStart + common.Bnum(rel/common.BPB)
	bi := rel % common.BPB
	buf := bc.ReadBlock(bbn, true)
	byteIdx := bi / 8
	mask := byte(1 << (bi % 8))
	if buf.Data[byteIdx]&mask == 0 {
		common.Fatal("balloc: freeing free block")
	}
	buf.Data[byteIdx] &^= mask
	buf.SetDirty()
	bc.ReleaseBlock(buf, true)
	util.DPrintf(5, "balloc: free %d\n", bn)
}
