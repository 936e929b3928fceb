// Command fsstat mounts an xv6fs image, runs a small workload against
// it, and prints disk-latency and occupancy tables — the
// stats-reporting counterpart to the teacher's cmd/go-nfsd, which
// prints NFS operation counts the same way through util/stats.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs"
	"github.com/mit-pdos/xv6fs/common"
	"github.com/mit-pdos/xv6fs/util/stats"
	"github.com/mit-pdos/xv6fs/util/timed_disk"
)

func main() {
	diskfile := flag.String("disk", "", "existing disk image to mount (mkfs'd fresh in memory if empty)")
	size := flag.Uint64("size", 10*1000, "total disk size, in blocks: of a fresh in-memory disk, or the size the -disk image is opened with")
	ninodes := flag.Uint64("ninodes", 200, "number of on-disk inodes when creating a fresh in-memory disk")
	flag.Parse()

	var d disk.Disk
	var fresh bool
	if *diskfile != "" {
		fd, err := disk.NewFileDisk(*diskfile, *size)
		if err != nil {
			log.Fatalf("fsstat: could not open %s: %v", *diskfile, err)
		}
		d = fd
	} else {
		d = disk.NewMemDisk(*size)
		fresh = true
	}
	td := timed_disk.New(d)

	var fsys *xv6fs.FileSystem
	if fresh {
		fsys = xv6fs.Mkfs(td, *size, *ninodes)
	} else {
		fsys = xv6fs.Mount(td)
	}
	defer fsys.Shutdown()

	exerciseWorkload(fsys)

	fmt.Println("disk latency:")
	td.WriteStats(os.Stdout)
	fmt.Println()
	fsys.Ilock(fsys.Root, false)
	rootLinks := fsys.Stati(fsys.Root).Nlink
	fsys.Iunlock(fsys.Root, false)

	fmt.Println("occupancy:")
	stats.WriteCountTable(
		[]string{"total blocks", "inodes", "root links"},
		[]uint64{fsys.Super.Size, fsys.Super.NInodes, uint64(rootLinks)},
		os.Stdout,
	)
}

// exerciseWorkload creates a handful of files and directory entries
// under root so fsstat always has something to report, even against
// a freshly formatted disk with no other workload driving it.
func exerciseWorkload(fsys *xv6fs.FileSystem) {
	fsys.Ilock(fsys.Root, true)
	for i := 0; i < 4; i++ {
		ip := fsys.Ialloc(common.KindFile)
		name := fmt.Sprintf("f%d", i)
		fsys.Writei(ip, []byte("hello, xv6fs\n"), 0)
		fsys.IunlockPut(ip, true)
		if !fsys.Dirlink(fsys.Root, name, ip.Inum) {
			log.Printf("fsstat: could not link %s\n", name)
		}
	}
	fsys.Iunlock(fsys.Root, true)
}
