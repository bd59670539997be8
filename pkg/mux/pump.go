package mux

import (
	"io"
	"sync"
)

// stream tracks the bookkeeping the supervisor goroutine needs for one
// logical stream. It is only ever touched by the supervisor goroutine,
// matching spec.md's "only the multiplexer task mutates the id allocator and
// the id-to-mailbox mapping" invariant.
type stream struct {
	mailbox chan Frame
	// stopOutgoing fires the outgoing pump's kill signal, which the pump
	// checks between reads and while waiting to send; it does not interrupt
	// a read already blocked on the local endpoint. The supervisor calls it
	// during teardown so that streams don't outlive a dead physical duplex.
	stopOutgoing func()
}

// spawnPumps starts the outgoing and incoming goroutines for a logical
// stream and returns the channels the supervisor uses to route frames to and
// from it.
//
// readHalf/writeHalf are the local side of the stream: for a producer-mode
// connection they are the pump-facing ends of an internally created pipe
// pair (see newConnPair); for a consumer-mode submission they are the
// caller's own endpoint halves.
func spawnPumps(id byte, readHalf io.ReadCloser, writeHalf io.WriteCloser, outbound chan<- Frame) *stream {
	mailbox := make(chan Frame, 1)
	killOutgoing := make(chan struct{})
	killIncoming := make(chan struct{})

	var once sync.Once
	signalIncoming := func() { once.Do(func() { close(killIncoming) }) }

	var onceOut sync.Once
	signalOutgoing := func() { onceOut.Do(func() { close(killOutgoing) }) }

	go runOutgoingPump(id, readHalf, outbound, killOutgoing, signalIncoming)
	go runIncomingPump(id, writeHalf, mailbox, killIncoming, signalOutgoing)

	return &stream{mailbox: mailbox, stopOutgoing: signalOutgoing}
}

// runOutgoingPump reads from the local endpoint and frames the data onto the
// shared outbound channel. It emits the OPEN control frame as its first
// action (so OPEN always precedes data for this stream, per spec.md's
// ordering invariant) and a CLOSE control frame when it observes EOF or a
// read error on its own initiative. It never emits CLOSE when stopped by the
// peer pump's kill signal, since that close has already been accounted for.
func runOutgoingPump(id byte, src io.ReadCloser, outbound chan<- Frame, killSelf <-chan struct{}, signalPeer func()) {
	defer src.Close()
	defer signalPeer()

	select {
	case outbound <- Frame{StreamID: openStreamID, Payload: []byte{id}}:
	case <-killSelf:
		return
	}

	buffer := make([]byte, maxPayloadLength)
	for {
		select {
		case <-killSelf:
			return
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buffer[:n])
			select {
			case outbound <- Frame{StreamID: id, Payload: payload}:
			case <-killSelf:
				return
			}
		}
		if err != nil {
			select {
			case <-killSelf:
				return
			default:
			}
			select {
			case outbound <- Frame{StreamID: closeStreamID, Payload: []byte{id}}:
			case <-killSelf:
			}
			return
		}
	}
}

// runIncomingPump receives frames destined for this stream and writes their
// payloads to the local endpoint. It stops on a CLOSE control frame, a write
// error, or the peer pump's kill signal.
func runIncomingPump(id byte, dst io.WriteCloser, mailbox <-chan Frame, killSelf <-chan struct{}, signalPeer func()) {
	defer dst.Close()
	defer signalPeer()

	for {
		select {
		case <-killSelf:
			return
		case frame, ok := <-mailbox:
			if !ok {
				return
			}
			if frame.isClose() {
				return
			}
			if len(frame.Payload) > 0 {
				if _, err := dst.Write(frame.Payload); err != nil {
					return
				}
			}
		}
	}
}
