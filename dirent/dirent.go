// Package dirent is the fixed-width directory entry format and the
// scans built on it: dirlookup, dirlink, and the "." / ".." bootstrap
// a freshly allocated directory needs. Grounded directly on
// original_source/fs.c's dirlookup/dirlink/namecmp and the on-disk
// struct dirent shape confirmed against
// other_examples/frenchwr-xv6-riscv__mkfs.go's dirent{inum uint16;
// name[14]byte} — a directory is just a file whose bytes are packed
// DirentSize-byte records, read and written through the same
// inode.FS.Readi/Writei every other file uses.
package dirent

import (
	"bytes"
	"encoding/binary"

	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/inode"
)

// DirentSize is 2 bytes of inum plus DIRSIZ bytes of name, no
// terminator: a name that fills all DIRSIZ bytes is not NUL-padded.
const DirentSize = 2 + common.DIRSIZ

// Entry is one directory entry. Inum == common.NULLINUM marks an
// empty (deleted or never-used) slot.
type Entry struct {
	Inum common.Inum
	Name [common.DIRSIZ]byte
}

// NameString returns name trimmed of trailing zero bytes, for short
// names that didn't fill the fixed field.
func (e *Entry) NameString() string {
	n := bytes.IndexByte(e.Name[:], 0)
	if n < 0 {
		n = len(e.Name)
	}
	return string(e.Name[:n])
}

func setName(e *Entry, name string) {
	n := copy(e.Name[:], name) // truncates to DIRSIZ, per spec's no-terminator-at-exactly-DIRSIZ rule
	for i := n; i < len(e.Name); i++ {
		e.Name[i] = 0
	}
}

func encode(e *Entry) []byte {
	buf := make([]byte, DirentSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(e.Inum))
	copy(buf[2:], e.Name[:])
	return buf
}

func decode(buf []byte) Entry {
	var e Entry
	e.Inum = common.Inum(binary.LittleEndian.Uint16(buf[0:2]))
	copy(e.Name[:], buf[2:DirentSize])
	return e
}

// NameEq compares a name against an on-disk entry's name the way
// fs.c's namecmp does: both sides are truncated to DIRSIZ bytes
// before comparing, so two names that only differ past byte DIRSIZ
// compare equal.
func NameEq(name string, e *Entry) bool {
	var want [common.DIRSIZ]byte
	setNameBytes(&want, name)
	return want == e.Name
}

func setNameBytes(dst *[common.DIRSIZ]byte, name string) {
	n := copy(dst[:], name)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Lookup scans dip (which must be a directory) for name, returning
// its inum and the byte offset of its entry, or NULLINUM if absent.
func Lookup(fs *inode.FS, dip *inode.Inode, name string) (common.Inum, uint64) {
	var st inode.Stat
	fs.Stati(dip, &st)
	if st.Kind != common.KindDir {
		common.Fatal("dirent: lookup on a non-directory")
	}
	buf := make([]byte, DirentSize)
	for off := uint64(0); off+DirentSize <= st.Size; off += DirentSize {
		n := fs.Readi(dip, buf, off)
		if n != DirentSize {
			break
		}
		e := decode(buf)
		if e.Inum == common.NULLINUM {
			continue
		}
		if NameEq(name, &e) {
			return e.Inum, off
		}
	}
	return common.NULLINUM, 0
}

func direntScanSize(fs *inode.FS, dip *inode.Inode) uint64 {
	var st inode.Stat
	fs.Stati(dip, &st)
	return st.Size
}

// Link adds name -> inum to dip, reusing the first empty slot if one
// exists and otherwise appending. Returns false if name already
// exists or the entry could not be written. A name longer than
// DIRSIZ bytes is not an error: it is silently truncated to DIRSIZ
// bytes, matching fs.c's namei, which has no length check either.
func Link(fs *inode.FS, dip *inode.Inode, name string, inum common.Inum) bool {
	if existing, _ := Lookup(fs, dip, name); existing != common.NULLINUM {
		return false
	}

	buf := make([]byte, DirentSize)
	size := direntScanSize(fs, dip)
	off := size
	for o := uint64(0); o+DirentSize <= size; o += DirentSize {
		n := fs.Readi(dip, buf, o)
		if n != DirentSize {
			break
		}
		e := decode(buf)
		if e.Inum == common.NULLINUM {
			off = o
			break
		}
	}

	e := Entry{Inum: inum}
	setName(&e, name)
	written := fs.Writei(dip, encode(&e), off)
	return written == DirentSize
}

// Unlink clears name's entry in dip, leaving an empty slot that a
// later Link may reuse. Returns false if name is not present.
func Unlink(fs *inode.FS, dip *inode.Inode, name string) bool {
	inum, off := Lookup(fs, dip, name)
	if inum == common.NULLINUM {
		return false
	}
	e := Entry{Inum: common.NULLINUM}
	written := fs.Writei(dip, encode(&e), off)
	return written == DirentSize
}

// InitDir writes the "." and ".." entries a freshly allocated
// directory needs, matching fs.c's convention that every directory's
// first two entries are "." and "..". On a fresh directory they land
// at offsets 0 and DirentSize, the two slots IsEmpty skips. Unlink
// does not itself refuse to remove them.
func InitDir(fs *inode.FS, dip *inode.Inode, parent common.Inum) bool {
	if !Link(fs, dip, ".", dip.Inum) {
		return false
	}
	return Link(fs, dip, "..", parent)
}

// IsEmpty reports whether dip has any entries besides "." and "..".
func IsEmpty(fs *inode.FS, dip *inode.Inode) bool {
	buf := make([]byte, DirentSize)
	size := direntScanSize(fs, dip)
	for off := uint64(2 * DirentSize); off+DirentSize <= size; off += DirentSize {
		n := fs.Readi(dip, buf, off)
		if n != DirentSize {
			break
		}
		e := decode(buf)
		if e.Inum != common.NULLINUM {
			return false
		}
	}
	return true
}
