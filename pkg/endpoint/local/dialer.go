package local

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/endpoint"
)

// dialerDestination implements endpoint.Destination by dialing the same TCP
// address fresh for every forwarded connection.
type dialerDestination struct {
	ctx     context.Context
	dialer  net.Dialer
	address string
}

// NewDialerDestination creates a Destination that dials address (host:port)
// anew on each call to Open. ctx governs all dial operations; cancelling it
// aborts any in-flight dial and causes future Open calls to fail.
func NewDialerDestination(ctx context.Context, address string) endpoint.Destination {
	return &dialerDestination{ctx: ctx, address: address}
}

// Open implements endpoint.Destination.Open.
func (d *dialerDestination) Open() (endpoint.Endpoint, error) {
	conn, err := d.dialer.DialContext(d.ctx, "tcp", d.address)
	if err != nil {
		return nil, errors.Wrap(err, "unable to dial destination")
	}
	return NewConnEndpoint(conn), nil
}
