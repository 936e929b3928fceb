// Package namei is the path resolver: spec.md §4.7. It walks a path
// one element at a time, consulting package namecache before falling
// back to a directory scan through package dirent, and never holds
// more than one inode locked at a time — grounded directly on
// original_source/fs.c:604-700's skipelem/namex/namei/nameiparent.
//
// The process-local current-directory pointer is an out-of-scope
// collaborator (spec.md §1); Go idiom is to take it as a parameter
// instead of reaching into a global proc->cwd.
package namei

import (
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/dirent"
	"github.com/mit-pdos/xv6fs/inode"
	"github.com/mit-pdos/xv6fs/namecache"
)

// SkipElem strips path's leading slashes, consumes the next
// non-slash run as an element (truncated to exactly DIRSIZ bytes,
// matching the directory encoding's fixed-width name field and
// dirent.NameEq's comparison), strips trailing slashes, and returns
// the element plus what remains. ok is false once path has no more
// elements (skipelem's NULL return in fs.c).
func SkipElem(path string) (elem string, rest string, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", "", false
	}
	start := i
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem = path[start:i]
	if len(elem) > common.DIRSIZ {
		elem = elem[:common.DIRSIZ]
	}
	for i < len(path) && path[i] == '/' {
		i++
	}
	return elem, path[i:], true
}

// Namex is the shared engine behind Namei and Nameiparent. cwd is
// duplicated (not consumed) when path is relative; the root is
// fetched fresh through Iget when path is absolute, exactly as fs.c's
// namex does (iget(ROOTDEV, ROOTINO), not idup, since the caller owns
// no prior reference to root).
//
// For a non-parent lookup, a name-cache hit on an element skips that
// directory's scan entirely. Every element along the way other than
// the chosen return value is released (via IunlockPut after a scan,
// via Iput after a name-cache hit) before the next one is locked, so
// two walkers crossing paths can
// never deadlock on each other's ancestors (spec.md §4.7, §5: "path
// resolution never holds more than one inode lock at a time").
func Namex(fs *inode.FS, nc *namecache.Cache, cwd *inode.Inode, path string, wantParent bool) (*inode.Inode, string) {
	var ip *inode.Inode
	if len(path) > 0 && path[0] == '/' {
		ip = fs.Iget(common.ROOTDEV, common.ROOTINUM)
	} else {
		ip = inode.Idup(cwd)
	}

	var name string
	rest := path
	for {
		var elem string
		var ok bool
		elem, rest, ok = SkipElem(rest)
		if !ok {
			break
		}
		name = elem

		var next *inode.Inode
		if !wantParent {
			if inum, hit := nc.Lookup(ip.Inum, name); hit {
				next = fs.Iget(ip.Dev, inum)
				fs.Iput(ip)
			}
		}
		if next == nil {
			fs.Ilock(ip, false)
			if ip.Kind == common.KindFree {
				common.Fatal("namex: inode has no type")
			}
			if ip.Kind != common.KindDir {
				fs.IunlockPut(ip, false)
				return nil, ""
			}
			if wantParent && rest == "" {
				// Stop one level early: caller wanted the
				// directory containing the last element, not
				// the element itself.
				fs.Iunlock(ip, false)
				return ip, name
			}
			inum, _ := dirent.Lookup(fs, ip, name)
			if inum == common.NULLINUM {
				fs.IunlockPut(ip, false)
				return nil, ""
			}
			next = fs.Iget(ip.Dev, inum)
			nc.Insert(ip.Inum, name, inum)
			fs.IunlockPut(ip, false)
		}
		ip = next
	}
	if wantParent {
		fs.Iput(ip)
		return nil, ""
	}
	return ip, name
}

// Namei resolves path to the inode it names, or nil if any element
// along the way does not exist.
func Namei(fs *inode.FS, nc *namecache.Cache, cwd *inode.Inode, path string) *inode.Inode {
	ip, _ := Namex(fs, nc, cwd, path, false)
	return ip
}

// Nameiparent resolves path to the inode of its final element's
// containing directory, returning that element's name alongside it.
// It returns nil if path has no parent to stop at (path resolves to
// root) or any ancestor element does not exist.
func Nameiparent(fs *inode.FS, nc *namecache.Cache, cwd *inode.Inode, path string) (*inode.Inode, string) {
	return Namex(fs, nc, cwd, path, true)
}
