// Package mux implements the stream multiplexing protocol used to carry many
// independent logical connections over a single physical duplex, such as the
// standard input/output of an exec'd agent process.
package mux

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

const (
	// openStreamID is the reserved stream id that announces a new logical
	// stream. The first payload byte is the proposed id for that stream.
	openStreamID byte = 0
	// closeStreamID is the reserved stream id that announces a logical
	// stream's closure. The first payload byte is the id being closed.
	closeStreamID byte = 255

	// maxPayloadLength is the largest payload a single frame may carry. It is
	// bounded by the single-byte length field in the wire header.
	maxPayloadLength = 253
)

// Frame is a unit on the physical duplex: a stream identifier plus a payload
// of at most maxPayloadLength bytes.
type Frame struct {
	// StreamID identifies the logical stream this frame belongs to, or one of
	// the reserved control values openStreamID/closeStreamID.
	StreamID byte
	// Payload is the frame's data. For control frames it is exactly one byte
	// (the id being opened or closed).
	Payload []byte
}

// isOpen reports whether the frame is an OPEN control frame.
func (f Frame) isOpen() bool {
	return f.StreamID == openStreamID
}

// isClose reports whether the frame is a CLOSE control frame.
func (f Frame) isClose() bool {
	return f.StreamID == closeStreamID
}

// Encoder writes frames to the physical duplex in the wire format
// [stream_id u8][length u8][payload, length bytes].
type Encoder struct {
	writer *bufio.Writer
}

// NewEncoder creates a frame encoder over the given writer.
func NewEncoder(writer io.Writer) *Encoder {
	return &Encoder{writer: bufio.NewWriter(writer)}
}

// Encode writes a single frame and flushes it onto the wire. Callers with
// payloads longer than maxPayloadLength must split them before calling
// Encode; the multiplexer's outgoing pumps already enforce this.
func (e *Encoder) Encode(frame Frame) error {
	if len(frame.Payload) > maxPayloadLength {
		return errors.Errorf("payload length %d exceeds maximum of %d", len(frame.Payload), maxPayloadLength)
	}
	if err := e.writer.WriteByte(frame.StreamID); err != nil {
		return errors.Wrap(err, "unable to write stream id")
	}
	if err := e.writer.WriteByte(byte(len(frame.Payload))); err != nil {
		return errors.Wrap(err, "unable to write payload length")
	}
	if len(frame.Payload) > 0 {
		if _, err := e.writer.Write(frame.Payload); err != nil {
			return errors.Wrap(err, "unable to write payload")
		}
	}
	if err := e.writer.Flush(); err != nil {
		return errors.Wrap(err, "unable to flush frame")
	}
	return nil
}

// Decoder reads frames from the physical duplex.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder creates a frame decoder over the given reader.
func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(reader)}
}

// Decode reads the next frame from the wire, blocking until a full frame is
// available. It returns io.EOF unwrapped when the underlying reader reaches a
// natural end-of-stream with no partial frame pending, matching the "wire is
// dead" semantics in spec.md §4.1.
func (d *Decoder) Decode() (Frame, error) {
	streamID, err := d.reader.ReadByte()
	if err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrap(err, "unable to read stream id")
	}

	length, err := d.reader.ReadByte()
	if err != nil {
		return Frame{}, errors.Wrap(err, "unable to read payload length")
	}

	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(d.reader, payload); err != nil {
			return Frame{}, errors.Wrap(err, "unable to read payload")
		}
	}

	return Frame{StreamID: streamID, Payload: payload}, nil
}
