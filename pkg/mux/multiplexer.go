package mux

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/logging"
)

// submittedEndpoint is a consumer-mode request to open a new logical stream
// around an existing local endpoint.
type submittedEndpoint struct {
	read   io.ReadCloser
	write  io.WriteCloser
	result chan error
}

// multiplexer is the supervisor state for one physical duplex. Exactly one
// goroutine (run) ever touches ids and streams, per spec.md's single-owner
// invariant.
type multiplexer struct {
	logger *logging.Logger

	ids     idAllocator
	streams map[byte]*stream

	outbound chan Frame // fed by per-stream outgoing pumps, drained by supervisor
	wireOut  chan Frame // fed by supervisor, drained by the encoder goroutine
	wireIn   chan Frame // fed by the decoder goroutine, drained by supervisor

	// produced, when non-nil, receives newly accepted connections
	// (producer mode).
	produced chan *Conn
	// submissions, when non-nil, receives local endpoints to bridge
	// (consumer mode).
	submissions chan submittedEndpoint

	producer bool
}

// Listener is the producer-mode handle: it surfaces logical streams that the
// peer opened.
type Listener struct {
	m    *multiplexer
	done <-chan struct{}
}

// Dialer is the consumer-mode handle: callers submit local endpoints to be
// bridged onto new logical streams.
type Dialer struct {
	m *multiplexer
}

// Produce constructs a multiplexer in producer mode: it surfaces a stream of
// logical connections opened by the peer. The multiplexer runs until ctx is
// cancelled or the physical duplex closes.
func Produce(ctx context.Context, logger *logging.Logger, reader io.Reader, writer io.Writer) *Listener {
	m := &multiplexer{
		logger:   logger,
		streams:  make(map[byte]*stream),
		outbound: make(chan Frame, 1),
		wireOut:  make(chan Frame, 1),
		wireIn:   make(chan Frame, 1),
		produced: make(chan *Conn, 1),
		producer: true,
	}
	done := m.start(ctx, reader, writer)
	return &Listener{m: m, done: done}
}

// Consume constructs a multiplexer in consumer mode: callers submit local
// endpoints via Dialer.Open, and each becomes a new logical stream on the
// wire. The multiplexer runs until ctx is cancelled or the physical duplex
// closes.
func Consume(ctx context.Context, logger *logging.Logger, reader io.Reader, writer io.Writer) *Dialer {
	m := &multiplexer{
		logger:      logger,
		streams:     make(map[byte]*stream),
		outbound:    make(chan Frame, 1),
		wireOut:     make(chan Frame, 1),
		wireIn:      make(chan Frame, 1),
		submissions: make(chan submittedEndpoint, 1),
		producer:    false,
	}
	m.start(ctx, reader, writer)
	return &Dialer{m: m}
}

// start launches the codec goroutines and the supervisor loop, returning a
// channel closed when the supervisor exits.
func (m *multiplexer) start(ctx context.Context, reader io.Reader, writer io.Writer) <-chan struct{} {
	done := make(chan struct{})

	go m.runEncoder(writer)
	go m.runDecoder(reader)
	go func() {
		defer close(done)
		m.run(ctx)
	}()

	return done
}

// runEncoder drains wireOut and writes each frame to the physical duplex. It
// owns the writer exclusively, per spec.md's resource-ownership rule.
func (m *multiplexer) runEncoder(writer io.Writer) {
	encoder := NewEncoder(writer)
	for frame := range m.wireOut {
		if err := encoder.Encode(frame); err != nil {
			m.logger.Debugf("mux: encode failed: %v", err)
			return
		}
	}
}

// runDecoder reads frames from the physical duplex and forwards them to
// wireIn until the wire closes or errors. It owns the reader exclusively.
func (m *multiplexer) runDecoder(reader io.Reader) {
	defer close(m.wireIn)
	decoder := NewDecoder(reader)
	for {
		frame, err := decoder.Decode()
		if err != nil {
			if err != io.EOF {
				m.logger.Debugf("mux: decode failed: %v", err)
			}
			return
		}
		m.wireIn <- frame
	}
}

// run is the supervisor loop: the single goroutine allowed to mutate ids and
// streams. It fairly serves three event sources, per spec.md §4.2.
func (m *multiplexer) run(ctx context.Context) {
	defer close(m.wireOut)
	defer m.teardown()

	var pending *Frame // outbound frame waiting for the encoder
	for {
		outbound, wireOut, next := m.outbound, chan Frame(nil), Frame{}
		if pending != nil {
			outbound, wireOut, next = nil, m.wireOut, *pending
		}
		select {
		case <-ctx.Done():
			return

		case sub, ok := <-m.submissions:
			if !ok {
				m.submissions = nil
				continue
			}
			m.handleSubmission(sub)

		case frame, ok := <-outbound:
			if !ok {
				continue
			}
			if frame.isClose() && len(frame.Payload) > 0 {
				m.release(frame.Payload[0])
			}
			pending = &frame

		case wireOut <- next:
			pending = nil

		case frame, ok := <-m.wireIn:
			if !ok {
				return
			}
			if !m.handleInbound(ctx, frame) {
				return
			}
		}
	}
}

// handleSubmission services a consumer-mode request to bridge a local
// endpoint onto a new logical stream.
func (m *multiplexer) handleSubmission(sub submittedEndpoint) {
	id, ok := m.ids.allocate()
	if !ok {
		m.logger.Error(errors.New("mux: id space exhausted, rejecting new stream"))
		sub.result <- errors.New("no logical stream ids available")
		return
	}
	m.streams[id] = spawnPumps(id, sub.read, sub.write, m.outbound)
	sub.result <- nil
}

// handleInbound routes a single wire-read frame, per spec.md §4.2 bullet 3.
// It returns false if the supervisor should stop (context cancelled while
// forwarding a rejection CLOSE).
func (m *multiplexer) handleInbound(ctx context.Context, frame Frame) bool {
	switch {
	case frame.isOpen():
		if !m.producer {
			// Consumer mode never accepts peer-originated OPENs in the
			// current protocol; drop it.
			return true
		}
		return m.openFromPeer(ctx, frame.Payload[0])

	case frame.isClose():
		id := frame.Payload[0]
		if st, exists := m.streams[id]; exists {
			select {
			case st.mailbox <- frame:
			default:
			}
		}
		m.release(id)
		return true

	default:
		if st, exists := m.streams[frame.StreamID]; exists {
			st.mailbox <- frame
		}
		// Unknown stream id: drop silently, per spec.md §4.2.
		return true
	}
}

// openFromPeer creates a new logical stream in response to an inbound OPEN,
// rejecting it immediately if the proposed id collides with one already in
// use locally (spec.md §4.2, "Id collisions on OPEN"). It returns false if
// the supervisor should stop because ctx was cancelled while delivering the
// rejection.
func (m *multiplexer) openFromPeer(ctx context.Context, id byte) bool {
	if !m.ids.reserve(id) {
		m.logger.Debugf("mux: rejecting OPEN for in-use id %d", id)
		select {
		case m.wireOut <- Frame{StreamID: closeStreamID, Payload: []byte{id}}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	conn, pumpReader, pumpWriter := newConnPair(id)
	m.streams[id] = spawnPumps(id, pumpReader, pumpWriter, m.outbound)

	select {
	case m.produced <- conn:
		return true
	case <-ctx.Done():
		return false
	}
}

// release removes a stream's bookkeeping and frees its id. It is idempotent,
// since both an inbound and an outbound CLOSE for the same id can observe
// the stream as already released.
func (m *multiplexer) release(id byte) {
	delete(m.streams, id)
	m.ids.release(id)
}

// teardown runs when the supervisor exits: every stream's outgoing pump is
// sent its kill signal and its mailbox is closed, so that both pumps
// terminate at their next channel operation rather than outliving a dead
// physical duplex (spec.md §4.1, "WireClosed ... all streams die"). An
// outgoing pump blocked in a read of its local endpoint stops once that read
// returns.
func (m *multiplexer) teardown() {
	for id, st := range m.streams {
		st.stopOutgoing()
		close(st.mailbox)
		delete(m.streams, id)
	}
	if m.produced != nil {
		close(m.produced)
	}
}

// Accept blocks until a new logical connection arrives from the peer, the
// context is cancelled, or the physical duplex closes.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case conn, ok := <-l.m.produced:
		if !ok {
			return nil, errors.New("mux: listener closed")
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Open submits a local endpoint to be bridged onto a new logical stream. It
// blocks until the stream has been accepted for multiplexing (not until it
// closes).
func (d *Dialer) Open(ctx context.Context, read io.ReadCloser, write io.WriteCloser) error {
	result := make(chan error, 1)
	submission := submittedEndpoint{read: read, write: write, result: result}
	select {
	case d.m.submissions <- submission:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
