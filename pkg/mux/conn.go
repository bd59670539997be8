package mux

import "io"

// Conn is the caller-facing handle for a logical stream created by a
// producer-mode multiplexer in response to an inbound OPEN. It behaves like
// any other endpoint: its read and write halves are independently owned, so
// callers may pass them to separate goroutines (e.g. the two directions of
// forward.Connect).
//
// Conn is backed by a pair of in-memory pipes; the multiplexer's per-stream
// pumps hold the other end of each pipe and are responsible for translating
// between pipe I/O and wire frames.
type Conn struct {
	id        byte
	readSide  *io.PipeReader
	writeSide *io.PipeWriter
}

// newConnPair creates a Conn for caller use along with the two handles the
// multiplexer's pumps should use to drive it.
func newConnPair(id byte) (conn *Conn, pumpReader io.ReadCloser, pumpWriter io.WriteCloser) {
	// Data flowing from the caller's Write calls to the outgoing pump's Read
	// calls.
	pumpR, callerW := io.Pipe()
	// Data flowing from the incoming pump's Write calls to the caller's Read
	// calls.
	callerR, pumpW := io.Pipe()

	conn = &Conn{id: id, readSide: callerR, writeSide: callerW}
	return conn, pumpR, pumpW
}

// Split implements the Endpoint contract: it returns independently ownable
// read and write halves.
func (c *Conn) Split() (io.ReadCloser, io.WriteCloser) {
	return c.readSide, c.writeSide
}

// Read implements io.Reader for callers that want to use Conn directly
// without splitting it.
func (c *Conn) Read(p []byte) (int, error) {
	return c.readSide.Read(p)
}

// Write implements io.Writer for callers that want to use Conn directly
// without splitting it.
func (c *Conn) Write(p []byte) (int, error) {
	return c.writeSide.Write(p)
}

// Close closes both halves of the connection.
func (c *Conn) Close() error {
	writeErr := c.writeSide.Close()
	readErr := c.readSide.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}
