// Package util holds the small helpers shared across the file system
// layers: leveled debug logging, and a couple of arithmetic helpers
// that otherwise get reimplemented in every package that needs them.
package util

import "log"

// Debug is the global debug level threshold; DPrintf calls at or
// below this level reach the log, the rest are compiled-in no-ops at
// runtime. Raise it (e.g. in a test's init) to see the inode cache
// and path walk traces.
var Debug = 0

func DPrintf(level int, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// RoundUp rounds n up to the nearest multiple of size.
func RoundUp(n, size uint64) uint64 {
	return (n + size - 1) / size * size
}
