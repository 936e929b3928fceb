// Command mkfs formats a fresh xv6fs disk image, the Go-native
// analogue of the teacher's root-level mkfs.go initFs/markAlloc.
package main

import (
	"flag"
	"log"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs"
)

func main() {
	diskfile := flag.String("disk", "xv6fs.img", "path to the disk image to create")
	size := flag.Uint64("size", 10*1000, "total disk size, in blocks")
	ninodes := flag.Uint64("ninodes", 200, "number of on-disk inodes")
	flag.Parse()

	d, err := disk.NewFileDisk(*diskfile, *size)
	if err != nil {
		log.Fatalf("mkfs: could not create disk image %s: %v", *diskfile, err)
	}

	fsys := xv6fs.Mkfs(d, *size, *ninodes)
	fsys.Shutdown()
	d.Close()

	log.Printf("mkfs: formatted %s: %d blocks, %d inodes\n", *diskfile, *size, *ninodes)
}
