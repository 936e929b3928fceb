// Package timed_disk wraps a disk.Disk with per-operation latency
// counters, the same instrumentation idiom the teacher's
// util/stats.Op provides for RPC and transaction counters, applied
// here one layer lower so cmd/fsstat can report raw disk latency
// alongside its block, inode and root-link counts.
package timed_disk

import (
	"io"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/xv6fs/util/stats"
)

type Disk struct {
	d   disk.Disk
	ops [3]stats.Op
}

func New(d disk.Disk) *Disk {
	return &Disk{d: d}
}

const (
	readOp int = iota
	writeOp
	barrierOp
)

var opNames = []string{"disk.Read", "disk.Write", "disk.Barrier"}

// assert that Disk implements disk.Disk
var _ disk.Disk = &Disk{}

func (d *Disk) Read(a uint64) disk.Block {
	defer d.ops[readOp].Record(time.Now())
	return d.d.Read(a)
}

func (d *Disk) ReadTo(a uint64, b disk.Block) {
	defer d.ops[readOp].Record(time.Now())
	d.d.ReadTo(a, b)
}

func (d *Disk) Write(a uint64, b disk.Block) {
	defer d.ops[writeOp].Record(time.Now())
	d.d.Write(a, b)
}

func (d *Disk) Barrier() {
	defer d.ops[barrierOp].Record(time.Now())
	d.d.Barrier()
}

func (d *Disk) Size() uint64 {
	return d.d.Size()
}

func (d *Disk) Close() {
	d.d.Close()
}

func (d *Disk) WriteStats(w io.Writer) {
	stats.WriteTable(opNames, d.ops[:], w)
}

func (d *Disk) ResetStats() {
	for i := range d.ops {
		d.ops[i] = stats.Op{}
	}
}
