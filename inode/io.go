package inode

import (
	"encoding/binary"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/xv6fs/balloc"
	"github.com/mit-pdos/xv6fs/bcache"
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/devsw"
	"github.com/mit-pdos/xv6fs/icache"
	"github.com/mit-pdos/xv6fs/super"
	"github.com/mit-pdos/xv6fs/util"
)

// FS bundles the disk-backed collaborators every blocking inode
// operation needs: the block cache, the computed superblock layout,
// the inode cache a freed slot is handed back to, and the device
// table Readi/Writei dispatch through for a device-special inode. It
// plays the role op *FsTxn plays in the teacher's inode.go, minus the
// transaction: every method here takes effect on bc immediately.
type FS struct {
	Bc     *bcache.Bcache
	Super  *super.Super
	Devsw  *devsw.Table
	icache *icache.Cache
}

func NewFS(bc *bcache.Bcache, sup *super.Super, ic *icache.Cache, dt *devsw.Table) *FS {
	return &FS{Bc: bc, Super: sup, icache: ic, Devsw: dt}
}

// Iget is spec's cache-filling entry point: an unlocked handle on
// (dev, inum) with one reference held on the caller's behalf, fetched
// from icache on a hit or filled by eviction on a miss. The disk read
// that populates a fresh slot's fields happens lazily, on the first
// Ilock, not here (see Ilock's doc comment).
func (fs *FS) Iget(dev uint32, inum common.Inum) *Inode {
	return fs.icache.Get(dev, uint64(inum)).(*Inode)
}

// dinodeHeader is the fixed fields of an on-disk inode, everything
// but its address array.
type dinodeHeader struct {
	Kind  int16
	Major int16
	Minor int16
	Nlink int16
	Gen   uint32
	Size  uint64
}

func (fs *FS) dinodeOffset(inum common.Inum) uint64 {
	return (uint64(inum) % common.IPB) * common.INODESZ
}

// fillFromDisk reads ip's dinode off disk and populates its in-memory
// fields, the work fs.c's ilock does on a cache slot that isn't
// VALID yet. Caller must already hold ip locked.
func (fs *FS) fillFromDisk(ip *Inode) {
	bn := fs.Super.IBlock(ip.Inum)
	buf := fs.Bc.ReadBlock(bn, false)
	off := fs.dinodeOffset(ip.Inum)
	r := byteReader{data: buf.Data[off : off+common.INODESZ]}

	var hdr dinodeHeader
	if err := binary.Read(&r, binary.LittleEndian, &hdr); err != nil {
		common.Fatal("inode: corrupt dinode header")
	}
	ip.mu.Lock()
	ip.Kind = common.Kind(hdr.Kind)
	ip.Major = hdr.Major
	ip.Minor = hdr.Minor
	ip.Nlink = hdr.Nlink
	ip.Gen = hdr.Gen
	ip.Size = hdr.Size
	for i := range ip.Addrs {
		var a uint32
		if err := binary.Read(&r, binary.LittleEndian, &a); err != nil {
			common.Fatal("inode: corrupt dinode addrs")
		}
		ip.Addrs[i] = common.Bnum(a)
	}
	ip.mu.Unlock()
	fs.Bc.ReleaseBlock(buf, false)
	util.DPrintf(5, "inode: filled %d from disk\n", ip.Inum)
}

// writeDinode is Iupdate: write ip's in-memory fields back to its
// on-disk dinode. Caller must hold ip write-locked.
func (fs *FS) writeDinode(ip *Inode) {
	ip.mu.Lock()
	hdr := dinodeHeader{
		Kind:  int16(ip.Kind),
		Major: ip.Major,
		Minor: ip.Minor,
		Nlink: ip.Nlink,
		Gen:   ip.Gen,
		Size:  ip.Size,
	}
	addrs := ip.Addrs
	ip.mu.Unlock()

	bn := fs.Super.IBlock(ip.Inum)
	buf := fs.Bc.ReadBlock(bn, true)
	off := fs.dinodeOffset(ip.Inum)
	w := byteWriter{data: buf.Data[off : off+common.INODESZ]}
	binary.Write(&w, binary.LittleEndian, &hdr)
	for _, a := range addrs {
		binary.Write(&w, binary.LittleEndian, uint32(a))
	}
	buf.SetDirty()
	fs.Bc.ReleaseBlock(buf, true)
	util.DPrintf(1, "inode: wrote dinode %d\n", ip.Inum)
}

// Iupdate is the exported form of writeDinode, spec's §4.8 metadata
// sync operation: flush an inode's in-memory fields to disk.
func (fs *FS) Iupdate(ip *Inode) {
	fs.writeDinode(ip)
}

// byteReader/byteWriter let binary.Read/Write work directly against a
// block's backing byte slice without an intermediate bytes.Buffer
// copy.
type byteReader struct{ data []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type byteWriter struct{ data []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	n := copy(w.data, p)
	w.data = w.data[n:]
	return n, nil
}

// decodeIndirect/encodeIndirect (de)serialize a single indirect
// block's NINDIRECT 4-byte block numbers using tchajed/marshal's
// 4-byte lane, the same lane the teacher's inode.go uses for every
// other 4-byte dinode field — encoding/binary handles the dinode's
// mixed int16/uint32/uint64 header instead, since marshal has no
// lane narrower than 4 bytes and the dinode header needs one.
func decodeIndirect(data []byte) []common.Bnum {
	dec := marshal.NewDec(data)
	out := make([]common.Bnum, common.NINDIRECT)
	for i := range out {
		out[i] = common.Bnum(dec.GetInt32())
	}
	return out
}

func encodeIndirect(addrs []common.Bnum) []byte {
	enc := marshal.NewEnc(common.BSIZE)
	for _, a := range addrs {
		enc.PutInt32(uint32(a))
	}
	return enc.Finish()
}

// Bmap maps ip's logical block bn to a physical block number,
// allocating a direct or indirect block (and the indirect block
// itself, if this is its first use) on demand. Caller must hold ip
// write-locked if bn might need a fresh allocation.
func (fs *FS) Bmap(ip *Inode, bn uint64) common.Bnum {
	if bn < common.NDIRECT {
		ip.mu.Lock()
		addr := ip.Addrs[bn]
		ip.mu.Unlock()
		if addr == common.NULLBNUM {
			addr = fs.allocBlock()
			ip.mu.Lock()
			ip.Addrs[bn] = addr
			ip.mu.Unlock()
		}
		return addr
	}

	bn -= common.NDIRECT
	if bn >= common.NINDIRECT {
		common.Fatal("bmap: offset beyond MAXFILE")
	}

	ip.mu.Lock()
	indAddr := ip.Addrs[common.NDIRECT]
	ip.mu.Unlock()
	if indAddr == common.NULLBNUM {
		indAddr = fs.allocBlock()
		zbuf := fs.Bc.ReadBlock(indAddr, true)
		for i := range zbuf.Data {
			zbuf.Data[i] = 0
		}
		zbuf.SetDirty()
		fs.Bc.ReleaseBlock(zbuf, true)
		ip.mu.Lock()
		ip.Addrs[common.NDIRECT] = indAddr
		ip.mu.Unlock()
	}

	buf := fs.Bc.ReadBlock(indAddr, true)
	addrs := decodeIndirect(buf.Data)
	addr := addrs[bn]
	if addr == common.NULLBNUM {
		addr = fs.allocBlock()
		addrs[bn] = addr
		copy(buf.Data, encodeIndirect(addrs))
		buf.SetDirty()
	}
	fs.Bc.ReleaseBlock(buf, addr != common.NULLBNUM)
	return addr
}

func (fs *FS) allocBlock() common.Bnum {
	return balloc.Alloc(fs.Bc, fs.Super.BitmapStart, fs.Super.NDataBlocks, fs.Super.DataStart)
}

func (fs *FS) freeBlock(bn common.Bnum) {
	balloc.Free(fs.Bc, fs.Super.BitmapStart, fs.Super.DataStart, bn)
}

// Readi reads up to len(dst) bytes starting at off into dst. Caller
// must hold ip locked for reading (or writing). Returns the number of
// bytes actually read (short only at end of file), or -1 if off is
// past the end of the file (spec.md §4.5/§7: an invalid request, not
// a fatal one — off == size is a valid zero-byte read at EOF, off >
// size is not).
func (fs *FS) Readi(ip *Inode, dst []byte, off uint64) int64 {
	ip.mu.Lock()
	kind, major, minor, size := ip.Kind, ip.Major, ip.Minor, ip.Size
	ip.mu.Unlock()

	if kind == common.KindDevice {
		d, ok := fs.Devsw.Lookup(major)
		if !ok {
			common.Fatal("readi: no such device")
		}
		n, err := d.Read(minor, dst, off)
		if err != nil {
			common.Fatal("readi: device read failed")
		}
		return int64(n)
	}
	if off > size {
		return -1
	}
	n := uint64(len(dst))
	if off+n > size {
		n = size - off
	}
	var done uint64
	for done < n {
		bn := (off + done) / common.BSIZE
		boff := (off + done) % common.BSIZE
		nbytes := util.Min(common.BSIZE-boff, n-done)
		blkno := fs.Bmap(ip, bn)
		if blkno == common.NULLBNUM {
			break
		}
		buf := fs.Bc.ReadBlock(blkno, false)
		copy(dst[done:done+nbytes], buf.Data[boff:boff+nbytes])
		fs.Bc.ReleaseBlock(buf, false)
		done += nbytes
	}
	return int64(done)
}

// Writei writes src at offset off, growing ip's size and allocating
// blocks as needed, and updates the dinode on disk before returning.
// Caller must hold ip write-locked. Returns the number of bytes
// actually written, clamped (not failed) if the write would run past
// MAXFILE, or -1 if off is past the current end of file (spec.md
// §4.5/§7, fs.c:510-513: off > size is invalid, but a write extending
// past MAXFILE is simply truncated to however much of it fits).
func (fs *FS) Writei(ip *Inode, src []byte, off uint64) int64 {
	ip.mu.Lock()
	kind, major, minor, size := ip.Kind, ip.Major, ip.Minor, ip.Size
	ip.mu.Unlock()
	if kind == common.KindDevice {
		d, ok := fs.Devsw.Lookup(major)
		if !ok {
			common.Fatal("writei: no such device")
		}
		n, err := d.Write(minor, src, off)
		if err != nil {
			common.Fatal("writei: device write failed")
		}
		return int64(n)
	}

	if off > size {
		return -1
	}
	max := common.MAXFILE * common.BSIZE
	n := uint64(len(src))
	if off+n > max {
		n = max - off
	}
	var done uint64
	for done < n {
		bn := (off + done) / common.BSIZE
		boff := (off + done) % common.BSIZE
		nbytes := util.Min(common.BSIZE-boff, n-done)
		blkno := fs.Bmap(ip, bn)
		if blkno == common.NULLBNUM {
			common.Fatal("writei: bmap failed")
		}
		if boff == 0 && nbytes == common.BSIZE {
			buf := fs.Bc.ReadBlock(blkno, true)
			copy(buf.Data, src[done:done+nbytes])
			fs.Bc.ReleaseBlock(buf, true)
		} else {
			buf := fs.Bc.ReadBlock(blkno, true)
			copy(buf.Data[boff:boff+nbytes], src[done:done+nbytes])
			fs.Bc.ReleaseBlock(buf, true)
		}
		done += nbytes
	}
	ip.mu.Lock()
	if off+done > ip.Size {
		ip.Size = off + done
	}
	ip.mu.Unlock()
	fs.writeDinode(ip)
	return int64(done)
}

// deferFreeBlock schedules bn to be freed once every read-side
// section that might still hold the address array entry pointing at
// it has quiesced, spec.md §9's requirement that a concurrent reader
// which captured an address array before truncation never reads a
// reallocated block's new contents. dev travels alongside bn only
// because defer_free2's signature carries it (spec.md §6); freeBlock
// itself is single-device, per common.ROOTDEV.
func (fs *FS) deferFreeBlock(dev uint32, bn common.Bnum) {
	fs.icache.Defer2(uint64(dev), uint64(bn), func(_, b uint64) {
		fs.freeBlock(common.Bnum(b))
	})
}

// itrunc frees every block ip owns — direct, the indirect block's
// contents, and the indirect block itself — and zeroes its address
// array and size. The frees are deferred (see deferFreeBlock), not
// inline: the address that pointed to each block is cleared here and
// flushed to disk by the writeDinode the caller performs afterward,
// before the block it pointed to is actually returned to the
// allocator, matching spec's truncation/block-free ordering
// requirement — a crash mid-truncation must never leave a freed
// block still reachable from the dinode, and a reader still inside a
// read-side section must never observe one of these blocks recycled.
func (fs *FS) itrunc(ip *Inode) {
	ip.mu.Lock()
	dev := ip.Dev
	addrs := ip.Addrs
	ip.mu.Unlock()

	for i := uint64(0); i < common.NDIRECT; i++ {
		if addrs[i] != common.NULLBNUM {
			fs.deferFreeBlock(dev, addrs[i])
		}
	}
	if addrs[common.NDIRECT] != common.NULLBNUM {
		buf := fs.Bc.ReadBlock(addrs[common.NDIRECT], false)
		ind := decodeIndirect(buf.Data)
		fs.Bc.ReleaseBlock(buf, false)
		for _, a := range ind {
			if a != common.NULLBNUM {
				fs.deferFreeBlock(dev, a)
			}
		}
		fs.deferFreeBlock(dev, addrs[common.NDIRECT])
	}

	ip.mu.Lock()
	ip.Addrs = [common.NDIRECT + 1]common.Bnum{}
	ip.Size = 0
	ip.mu.Unlock()
}

// Itrunc is the exported, independently lockable form of itrunc,
// spec's explicit truncate-to-zero operation distinct from the
// cleanup IunlockPut performs for a deleted inode.
func (fs *FS) Itrunc(ip *Inode) {
	fs.itrunc(ip)
	fs.writeDinode(ip)
}

// Stat is the subset of a dinode's fields spec's stati exposes to
// callers: everything but the raw address array.
type Stat struct {
	Dev   uint32
	Inum  common.Inum
	Kind  common.Kind
	Nlink int16
	Size  uint64
}

// Stati fills in st from ip. Caller must hold ip locked.
func (fs *FS) Stati(ip *Inode, st *Stat) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	st.Dev = ip.Dev
	st.Inum = ip.Inum
	st.Kind = ip.Kind
	st.Nlink = ip.Nlink
	st.Size = ip.Size
}

// Ialloc scans the inode region for a dinode with Kind == KindFree,
// claims it by writing its new kind back to disk, and returns an
// Iget'd, write-locked handle on it. The caller must Iunlock (or
// IunlockPut) the result.
//
// The scan's "kind looks free" check and the write that actually
// claims the slot happen under separate Ilock acquisitions, so two
// callers can race to claim the same on-disk slot; the loser simply
// discovers on its own Ilock that Kind is no longer free and moves on
// to the next candidate, the same diagnostic-then-continue behavior
// fs.c's ialloc uses rather than treating the race as fatal.
func (fs *FS) Ialloc(dev uint32, kind common.Kind, get func(dev uint32, inum common.Inum) *Inode) *Inode {
	for inum := common.Inum(1); uint64(inum) < fs.Super.NInodes; inum++ {
		bn := fs.Super.IBlock(inum)
		buf := fs.Bc.ReadBlock(bn, false)
		off := fs.dinodeOffset(inum)
		k := common.Kind(binary.LittleEndian.Uint16(buf.Data[off : off+2]))
		fs.Bc.ReleaseBlock(buf, false)
		if k != common.KindFree {
			continue
		}

		ip := get(dev, inum)
		fs.Ilock(ip, true)
		if ip.Kind != common.KindFree {
			// lost the race; someone else claimed inum first.
			util.DPrintf(1, "ialloc: lost race for inode %d, trying the next one\n", inum)
			fs.Iunlock(ip, true)
			fs.Iput(ip)
			continue
		}
		ip.mu.Lock()
		ip.Kind = kind
		ip.Nlink = 1
		ip.Gen++
		ip.Size = 0
		ip.Addrs = [common.NDIRECT + 1]common.Bnum{}
		ip.mu.Unlock()
		fs.writeDinode(ip)
		util.DPrintf(1, "ialloc: allocated inode %d kind %d\n", inum, kind)
		return ip
	}
	common.Fatal("ialloc: no free inodes")
	return nil
}
