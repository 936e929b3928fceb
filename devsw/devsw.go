// Package devsw is the device switch table spec.md §6's readi/writei
// dispatch through for an inode whose Kind is KindDevice: a major
// number indexes into a small table of Read/Write functions, the same
// indirection original_source/fs.c's devsw[ip->major] provides for
// device special files.
package devsw

type ReadFn func(minor int16, dst []byte, off uint64) (int, error)
type WriteFn func(minor int16, src []byte, off uint64) (int, error)

type Device struct {
	Read  ReadFn
	Write WriteFn
}

// Table is indexed by a dinode's Major field. A nil entry means no
// such device is registered.
type Table struct {
	devices map[int16]Device
}

func NewTable() *Table {
	t := &Table{devices: make(map[int16]Device)}
	t.Register(NullMajor, NullDevice())
	return t
}

func (t *Table) Register(major int16, d Device) {
	t.devices[major] = d
}

func (t *Table) Lookup(major int16) (Device, bool) {
	d, ok := t.devices[major]
	return d, ok
}

// NullMajor is the major number of the always-registered null device,
// matching the convention of reserving device 0 for something safe to
// dispatch to by default.
const NullMajor int16 = 0

// NullDevice reads as EOF and discards every write, the minimal
// device that lets Readi/Writei's device-dispatch branch be exercised
// without any real hardware or file behind it.
func NullDevice() Device {
	return Device{
		Read: func(minor int16, dst []byte, off uint64) (int, error) {
			return 0, nil
		},
		Write: func(minor int16, src []byte, off uint64) (int, error) {
			return len(src), nil
		},
	}
}
