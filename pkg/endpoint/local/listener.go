// Package local implements endpoint.Source and endpoint.Destination for
// plain local TCP sockets, the origin/destination kind used when neither
// side of a port forward lives inside a container or pod. It is grounded on
// the teacher's pkg/forwarding/endpoint/local listener/dialer pair, trimmed
// to the TCP-only address grammar this module's pathspec supports (no Unix
// domain sockets or Windows named pipes).
package local

import (
	"net"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/endpoint"
)

// listenerSource implements endpoint.Source over a bound TCP listener.
type listenerSource struct {
	listener net.Listener
}

// NewListenerSource binds a TCP listener on address (host:port, with host
// possibly empty for all interfaces) and returns a Source that accepts
// connections on it.
func NewListenerSource(address string) (endpoint.Source, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "unable to bind local listener")
	}
	return &listenerSource{listener: listener}, nil
}

// Accept implements endpoint.Source.Accept.
func (s *listenerSource) Accept() (endpoint.Endpoint, error) {
	conn, err := s.listener.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "unable to accept connection")
	}
	return NewConnEndpoint(conn), nil
}

// Close implements endpoint.Source.Close.
func (s *listenerSource) Close() error {
	return s.listener.Close()
}

// Addr returns the address the listener is bound to, primarily so that
// callers which requested an ephemeral port (":0") can discover what was
// actually assigned.
func (s *listenerSource) Addr() net.Addr {
	return s.listener.Addr()
}
