// Package forward implements the forwarding engine: the coupled-termination
// byte pump between two endpoints (Connect) and the accept-loop that spawns
// one pump per inbound connection (Engine.Serve). Both are grounded on the
// teacher's pkg/forwarding: Connect mirrors forwarding.ForwardAndClose, and
// Engine.Serve mirrors controller.forward's accept/open/spawn loop.
package forward

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/internal/must"
	"github.com/portrelay/portrelay/pkg/endpoint"
	"github.com/portrelay/portrelay/pkg/logging"
)

// closeWriter is implemented by write halves that expose a true half-close
// as a separate CloseWrite method. None of this module's write halves do:
// the local TCP, multiplexed-stream and exec write halves already half-close
// or signal EOF in Close, so halfClose calls Close for them.
type closeWriter interface {
	CloseWrite() error
}

// halfClose closes the write side of w, preferring a true half-close
// (leaving the opposite direction free to keep flowing) over a full close.
func halfClose(w io.WriteCloser) error {
	if cw, ok := w.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return w.Close()
}

// Connect is the forwarder primitive: it splits both endpoints and runs two
// unidirectional byte copies, from.read->to.write and to.read->from.write,
// each in its own goroutine. When one direction finishes (EOF or error), it
// half-closes the write half it was copying into and closes the read half of
// that same endpoint, which unblocks the opposite goroutine's pending read
// — the coupled-termination property required because the peer endpoint is
// often a remote exec whose lifetime is bound to a single pipe. Connect
// returns once both directions have finished, reporting the larger of the
// two byte counts.
func Connect(ctx context.Context, from, to endpoint.Endpoint) (int64, error) {
	fromRead, fromWrite := from.Split()
	toRead, toWrite := to.Split()

	type result struct {
		n   int64
		err error
	}
	results := make(chan result, 2)

	go func() {
		n, err := io.Copy(toWrite, fromRead)
		halfClose(toWrite)
		toRead.Close()
		results <- result{n, err}
	}()
	go func() {
		n, err := io.Copy(fromWrite, toRead)
		halfClose(fromWrite)
		fromRead.Close()
		results <- result{n, err}
	}()

	var largest int64
	var firstErr error
	remaining := 2
loop:
	for remaining > 0 {
		select {
		case r := <-results:
			remaining--
			if r.n > largest {
				largest = r.n
			}
			if r.err != nil && firstErr == nil {
				firstErr = r.err
			}
		case <-ctx.Done():
			firstErr = ctx.Err()
			break loop
		}
	}

	fromRead.Close()
	fromWrite.Close()
	toRead.Close()
	toWrite.Close()

	return largest, firstErr
}

// Engine drives one or more accept loops, each coupling a Source to a
// Destination via Connect.
type Engine struct {
	// Logger receives per-connection diagnostics. It may be nil.
	Logger *logging.Logger
}

// Serve runs the accept loop for one origin/destination pair: for each
// connection the origin's Source accepts, it resolves a fresh endpoint from
// destination and spawns a Connect in the background. It returns when the
// origin's Source closes or ctx is cancelled.
func (e *Engine) Serve(ctx context.Context, origin endpoint.Source, destination endpoint.Destination) error {
	go func() {
		<-ctx.Done()
		origin.Close()
	}()

	for {
		incoming, err := origin.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "unable to accept connection")
		}

		outgoing, err := destination.Open()
		if err != nil {
			closeEndpoint(incoming, e.Logger)
			e.Logger.Warn(errors.Wrap(err, "unable to open destination"))
			continue
		}

		connectionID := uuid.NewString()
		if e.Logger != nil {
			e.Logger.Debugf("forward[%s]: accepted connection", connectionID)
		}
		go func() {
			n, err := Connect(ctx, incoming, outgoing)
			if err != nil && e.Logger != nil {
				e.Logger.Debugf("forward[%s]: connection ended after %d bytes: %v", connectionID, n, err)
			}
		}()
	}
}

// closeEndpoint closes both halves of an endpoint that was never handed to
// Connect (for instance because opening the destination failed), logging
// any close error as a warning rather than dropping it silently.
func closeEndpoint(e endpoint.Endpoint, logger *logging.Logger) {
	read, write := e.Split()
	must.Close(read, logger)
	must.Close(write, logger)
}
