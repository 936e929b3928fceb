package balloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs/bcache"
	"github.com/mit-pdos/xv6fs/common"
)

func mkBcache(t *testing.T, nblocks uint64) *bcache.Bcache {
	t.Helper()
	return bcache.MkBcache(disk.NewMemDisk(nblocks))
}

func TestAllocLowestFirst(t *testing.T) {
	bc := mkBcache(t, 64)
	const bitmapStart common.Bnum = 1
	const dataStart common.Bnum = 2
	const ndata = 20

	a := Alloc(bc, bitmapStart, ndata, dataStart)
	assert.Equal(t, dataStart, a)

	b := Alloc(bc, bitmapStart, ndata, dataStart)
	assert.Equal(t, dataStart+1, b)
}

func TestFreeThenReallocReusesBlock(t *testing.T) {
	bc := mkBcache(t, 64)
	const bitmapStart common.Bnum = 1
	const dataStart common.Bnum = 2
	const ndata = 20

	a := Alloc(bc, bitmapStart, ndata, dataStart)
	Alloc(bc, bitmapStart, ndata, dataStart)
	Free(bc, bitmapStart, dataStart, a)

	c := Alloc(bc, bitmapStart, ndata, dataStart)
	assert.Equal(t, a, c, "a freed low block should be the next one allocated")
}

func TestFreeZeroesBlock(t *testing.T) {
	bc := mkBcache(t, 64)
	const bitmapStart common.Bnum = 1
	const dataStart common.Bnum = 2
	const ndata = 20

	a := Alloc(bc, bitmapStart, ndata, dataStart)
	buf := bc.ReadBlock(a, true)
	for i := range buf.Data {
		buf.Data[i] = 0xAB
	}
	buf.SetDirty()
	bc.ReleaseBlock(buf, true)

	Free(bc, bitmapStart, dataStart, a)

	zbuf := bc.ReadBlock(a, false)
	for i, b := range zbuf.Data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after free: %d", i, b)
		}
	}
	bc.ReleaseBlock(zbuf, false)
}

func TestDoubleFreeIsFatal(t *testing.T) {
	bc := mkBcache(t, 64)
	const bitmapStart common.Bnum = 1
	const dataStart common.Bnum = 2
	const ndata = 20

	a := Alloc(bc, bitmapStart, ndata, dataStart)
	Free(bc, bitmapStart, dataStart, a)

	defer func() {
		if recover() == nil {
			t.Errorf("double free should be fatal")
		}
	}()
	Free(bc, bitmapStart, dataStart, a)
}

func TestAllocOutOfBlocksIsFatal(t *testing.T) {
	bc := mkBcache(t, 64)
	const bitmapStart common.Bnum = 1
	const dataStart common.Bnum = 2
	const ndata = 3

	for i := 0; i < ndata; i++ {
		Alloc(bc, bitmapStart, ndata, dataStart)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("alloc past capacity should be fatal")
		}
	}()
	Alloc(bc, bitmapStart, ndata, dataStart)
}
