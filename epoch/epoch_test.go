package epoch

import (
	"testing"
	"time"
)

func TestDeferRunsAfterReaderLeaves(t *testing.T) {
	d := NewDomain()
	defer d.Stop()

	tok := d.ReadBegin()

	ran := make(chan struct{})
	d.Defer(func() { close(ran) })

	select {
	case <-ran:
		t.Fatalf("deferred work ran while a reader was still active")
	case <-time.After(20 * time.Millisecond):
	}

	d.ReadEnd(tok)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("deferred work never ran after the reader left")
	}
}

func TestStopDrainsPending(t *testing.T) {
	d := NewDomain()
	tok := d.ReadBegin()
	ran := make(chan struct{})
	d.Defer(func() { close(ran) })
	d.ReadEnd(tok)
	d.Stop()

	select {
	case <-ran:
	default:
		t.Fatalf("Stop should drain any remaining deferred work")
	}
}
