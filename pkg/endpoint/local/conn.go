package local

import (
	"io"
	"net"

	"github.com/portrelay/portrelay/pkg/endpoint"
)

// closeWriter is implemented by connections (such as *net.TCPConn) that
// support a true half-close of the write side while leaving the read side
// open.
type closeWriter interface {
	CloseWrite() error
}

// connReadHalf is the read half of a connEndpoint. Closing it closes the
// underlying connection outright, since plain net.Conn offers no
// independent read-side half-close.
type connReadHalf struct {
	conn net.Conn
}

func (h *connReadHalf) Read(p []byte) (int, error) { return h.conn.Read(p) }
func (h *connReadHalf) Close() error                { return h.conn.Close() }

// connWriteHalf is the write half of a connEndpoint. Close performs a true
// half-close (CloseWrite) when the underlying connection supports it, so the
// read half can keep observing the peer's remaining bytes; otherwise it
// falls back to a full close.
type connWriteHalf struct {
	conn net.Conn
}

func (h *connWriteHalf) Write(p []byte) (int, error) { return h.conn.Write(p) }

func (h *connWriteHalf) Close() error {
	if cw, ok := h.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return h.conn.Close()
}

// connEndpoint adapts a net.Conn (a local TCP socket, produced either by a
// listener's Accept or a dialer's Dial) to the endpoint.Endpoint contract.
type connEndpoint struct {
	conn net.Conn
}

// NewConnEndpoint wraps an already-established net.Conn as an endpoint.
func NewConnEndpoint(conn net.Conn) endpoint.Endpoint {
	return &connEndpoint{conn: conn}
}

// Split implements endpoint.Endpoint.Split.
func (e *connEndpoint) Split() (io.ReadCloser, io.WriteCloser) {
	return &connReadHalf{conn: e.conn}, &connWriteHalf{conn: e.conn}
}
