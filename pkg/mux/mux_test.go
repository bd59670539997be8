package mux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/portrelay/portrelay/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, io.Discard)
}

// TestFrameCodecRoundTrip exercises the wire format directly: small, empty,
// and maximum-size payloads must decode to exactly what was encoded.
func TestFrameCodecRoundTrip(t *testing.T) {
	cases := []Frame{
		{StreamID: 5, Payload: []byte("hello")},
		{StreamID: openStreamID, Payload: []byte{7}},
		{StreamID: closeStreamID, Payload: []byte{7}},
		{StreamID: 1, Payload: nil},
		{StreamID: 1, Payload: bytes.Repeat([]byte{0xAB}, maxPayloadLength)},
	}

	var buf bytes.Buffer
	encoder := NewEncoder(&buf)
	for _, frame := range cases {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("encode failed for %+v: %v", frame, err)
		}
	}

	decoder := NewDecoder(&buf)
	for _, want := range cases {
		got, err := decoder.Decode()
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got.StreamID != want.StreamID {
			t.Fatalf("stream id mismatch: got %d, want %d", got.StreamID, want.StreamID)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("payload mismatch: got %v, want %v", got.Payload, want.Payload)
		}
	}

	if _, err := decoder.Decode(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

// TestFrameCodecRejectsOversizedPayload verifies the single-byte length field
// invariant: a payload beyond maxPayloadLength must be rejected, not
// truncated or split.
func TestFrameCodecRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf)
	oversized := Frame{StreamID: 1, Payload: bytes.Repeat([]byte{0x01}, maxPayloadLength+1)}
	if err := encoder.Encode(oversized); err == nil {
		t.Fatal("expected error encoding oversized payload, got nil")
	}
}

// TestIDAllocator exercises lowest-first allocation, idempotent release, and
// exhaustion of the 254-id space.
func TestIDAllocator(t *testing.T) {
	var a idAllocator

	first, ok := a.allocate()
	if !ok || first != 1 {
		t.Fatalf("expected first allocation to be id 1, got %d (ok=%v)", first, ok)
	}

	second, ok := a.allocate()
	if !ok || second != 2 {
		t.Fatalf("expected second allocation to be id 2, got %d (ok=%v)", second, ok)
	}

	a.release(first)
	third, ok := a.allocate()
	if !ok || third != 1 {
		t.Fatalf("expected released id 1 to be reused first, got %d (ok=%v)", third, ok)
	}

	// Releasing an id twice must not panic or corrupt state.
	a.release(first)
	a.release(first)

	// Reserve must reject an id already in use and accept a free one.
	if a.reserve(second) {
		t.Fatal("expected reserve to reject an in-use id")
	}
	if !a.reserve(200) {
		t.Fatal("expected reserve to accept a free id")
	}

	for i := 0; i < 252; i++ {
		if _, ok := a.allocate(); !ok {
			t.Fatalf("expected allocation %d to succeed before exhaustion", i)
		}
	}
	if _, ok := a.allocate(); ok {
		t.Fatal("expected allocation to fail once all 254 ids are in use")
	}
}

// pipePair returns the two halves of an in-memory connection: everything
// written to outW is readable from outR, simulating a local endpoint handed
// to a consumer-mode Dialer.
func pipePair() (outR io.ReadCloser, outW io.WriteCloser, inR io.ReadCloser, inW io.WriteCloser) {
	or, ow := io.Pipe()
	ir, iw := io.Pipe()
	return or, ow, ir, iw
}

// TestMultiplexerRoundTrip drives one logical stream end-to-end: a consumer
// submits a local endpoint, the producer accepts it as a Conn, and data
// flows correctly in both directions.
func TestMultiplexerRoundTrip(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := Consume(ctx, logger, consumerSide, consumerSide)
	listener := Produce(ctx, logger, producerSide, producerSide)

	localOutR, localOutW, localInR, localInW := pipePair()

	openErr := make(chan error, 1)
	go func() { openErr <- dialer.Open(ctx, localOutR, localInW) }()

	conn, err := listener.Accept(ctx)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := <-openErr; err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Local side -> wire -> producer's Conn.
	go func() {
		localOutW.Write([]byte("ping"))
	}()
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("conn read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected \"ping\", got %q", buf)
	}

	// Producer's Conn -> wire -> local side.
	go func() {
		conn.Write([]byte("pong"))
	}()
	buf2 := make([]byte, 4)
	if _, err := io.ReadFull(localInR, buf2); err != nil {
		t.Fatalf("local read failed: %v", err)
	}
	if string(buf2) != "pong" {
		t.Fatalf("expected \"pong\", got %q", buf2)
	}
}

// TestMultiplexerLargePayloadSplitting sends a payload much larger than a
// single frame and verifies it arrives intact, exercising the outgoing
// pump's frame splitting.
func TestMultiplexerLargePayloadSplitting(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := Consume(ctx, logger, consumerSide, consumerSide)
	listener := Produce(ctx, logger, producerSide, producerSide)

	localOutR, localOutW, _, localInW := pipePair()

	go dialer.Open(ctx, localOutR, localInW)
	conn, err := listener.Accept(ctx)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	const size = 64 * 1024
	payload := bytes.Repeat([]byte{0x5A}, size)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		localOutW.Write(payload)
	}()

	received := make([]byte, size)
	if _, err := io.ReadFull(conn, received); err != nil {
		t.Fatalf("conn read failed: %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Fatal("received payload does not match sent payload")
	}
	wg.Wait()
}

// TestMultiplexerManyParallelStreams opens several logical streams
// concurrently and verifies each gets its own id and carries its own data
// without cross-talk.
func TestMultiplexerManyParallelStreams(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := Consume(ctx, logger, consumerSide, consumerSide)
	listener := Produce(ctx, logger, producerSide, producerSide)

	const streams = 10
	var wg sync.WaitGroup
	for i := 0; i < streams; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outR, outW, _, inW := pipePair()
			tag := byte('A' + i)
			go func() {
				if err := dialer.Open(ctx, outR, inW); err != nil {
					t.Errorf("open %d failed: %v", i, err)
				}
			}()
			conn, err := listener.Accept(ctx)
			if err != nil {
				t.Errorf("accept %d failed: %v", i, err)
				return
			}
			go outW.Write([]byte{tag, tag, tag})
			buf := make([]byte, 3)
			if _, err := io.ReadFull(conn, buf); err != nil {
				t.Errorf("stream %d read failed: %v", i, err)
				return
			}
			for _, b := range buf {
				if b != tag {
					t.Errorf("stream %d saw cross-talk: %v", i, buf)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

// TestMultiplexerIDExhaustion verifies that once all 254 logical stream ids
// are in use, the 255th submission is rejected cleanly rather than hanging
// or corrupting existing streams.
func TestMultiplexerIDExhaustion(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := Consume(ctx, logger, consumerSide, consumerSide)
	listener := Produce(ctx, logger, producerSide, producerSide)

	go func() {
		for {
			if _, err := listener.Accept(ctx); err != nil {
				return
			}
		}
	}()

	const max = 254
	var held []io.WriteCloser
	for i := 0; i < max; i++ {
		outR, outW, _, inW := pipePair()
		held = append(held, outW)
		if err := dialer.Open(ctx, outR, inW); err != nil {
			t.Fatalf("open %d failed before exhaustion: %v", i, err)
		}
	}

	outR, _, _, inW := pipePair()
	if err := dialer.Open(ctx, outR, inW); err == nil {
		t.Fatal("expected the 255th stream submission to be rejected")
	}

	_ = held
}

// TestMultiplexerWireClosed verifies that when the physical duplex closes,
// the supervisor exits and existing streams are torn down rather than
// hanging forever.
func TestMultiplexerWireClosed(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := Consume(ctx, logger, consumerSide, consumerSide)
	listener := Produce(ctx, logger, producerSide, producerSide)

	outR, _, inR, inW := pipePair()
	go dialer.Open(ctx, outR, inW)
	if _, err := listener.Accept(ctx); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// Closing the physical duplex should unblock the local endpoint's
	// incoming side rather than leaving it hanging forever.
	consumerSide.Close()
	producerSide.Close()

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		inR.Read(buf)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream outlived the closed physical duplex")
	}
}

// TestMultiplexerContextCancellation verifies that cancelling the context
// passed to Accept unblocks it even if no connection ever arrives.
func TestMultiplexerContextCancellation(t *testing.T) {
	consumerSide, producerSide := net.Pipe()
	defer consumerSide.Close()
	defer producerSide.Close()
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	listener := Produce(ctx, logger, producerSide, producerSide)

	acceptCtx, acceptCancel := context.WithCancel(context.Background())
	acceptCancel()

	if _, err := listener.Accept(acceptCtx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	cancel()
}
