// Package copy implements file copy as a single byte pump between a tar
// source and a tar destination, independent of the multiplexer: a copy
// source produces a tar stream of known size, a copy destination consumes
// one, and Pump moves fixed-size chunks between them while reporting
// progress. Grounded on spec.md §4.5 and original_source's
// core/endpoint/stdio.rs get_copy_source/get_copy_destination shape.
package copy

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// chunkSize is the fixed read/write size the pump uses, per spec.md §4.5
// ("fixed-size chunks (~10 KiB)").
const chunkSize = 10 * 1024

// progressCapacity bounds the progress channel, per spec.md §4.5.
const progressCapacity = 100

// precheckWindow is how long a destination's stderr watchdog waits for
// output before assuming the remote tar started cleanly, per spec.md §4.5.
const precheckWindow = time.Second

// Source is a readable tar stream of known total size.
type Source interface {
	io.ReadCloser
	// Size returns the exact byte count of the tar stream, established by
	// the `tar cf - | wc -c` precheck before the real tar exec starts.
	Size() uint64
}

// Destination is a writable sink that unpacks a tar stream as it arrives.
type Destination interface {
	io.WriteCloser
}

// Pump copies src to dst in fixed-size chunks, sending each chunk's byte
// count on the returned channel. The channel is closed when the pump
// finishes: on EOF from src, on a read or write error, or when ctx is
// cancelled. Pump does not report which of these ended it; the closed
// channel is its only completion signal.
func Pump(ctx context.Context, src Source, dst Destination) <-chan int {
	progress := make(chan int, progressCapacity)

	go func() {
		defer close(progress)
		buf := make([]byte, chunkSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return
				}
				select {
				case progress <- n:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return progress
}

// Close releases both ends of a copy, used after a Pump completes or the
// caller aborts early.
func Close(src Source, dst Destination) {
	src.Close()
	dst.Close()
}

// WatchPrecheck reads from stderr for precheckWindow; if any bytes arrive in
// that window, it returns an error wrapping their text (spec.md's
// CopyPrecheckFailed: "wrong path, missing tar, etc."). If nothing arrives
// within the window, it returns nil and the caller should continue draining
// stderr to the host's stderr for the copy's duration.
func WatchPrecheck(stderr io.Reader) error {
	type result struct {
		n   int
		buf []byte
		err error
	}
	read := make(chan result, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := stderr.Read(buf)
		read <- result{n: n, buf: buf[:n], err: err}
	}()

	select {
	case r := <-read:
		if r.n > 0 {
			return errors.Errorf("remote tar reported an error: %s", string(r.buf))
		}
		return nil
	case <-time.After(precheckWindow):
		return nil
	}
}
