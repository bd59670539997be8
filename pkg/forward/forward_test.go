package forward

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/portrelay/portrelay/pkg/endpoint/local"
)

// startEchoServer runs a trivial line echo server on an ephemeral local port
// and returns its address.
func startEchoServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to start echo server: %v", err)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

// TestConnectEcho exercises the round-trip invariant (spec property 1): a
// local TCP listener origin forwarded to a local TCP echo destination
// delivers bytes written on one side back on the other, in order.
func TestConnectEcho(t *testing.T) {
	echoAddr := startEchoServer(t)

	origin, err := local.NewListenerSource("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to start origin listener: %v", err)
	}
	defer origin.Close()
	originAddr := origin.(interface{ Addr() net.Addr }).Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	destination := local.NewDialerDestination(ctx, echoAddr)
	engine := &Engine{}
	go engine.Serve(ctx, origin, destination)

	client, err := net.Dial("tcp", originAddr)
	if err != nil {
		t.Fatalf("unable to dial origin: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(client).ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if line != "hello\n" {
		t.Fatalf("expected echoed \"hello\\n\", got %q", line)
	}
}

// TestConnectCoupledTermination verifies spec property 6: closing one half
// of a forwarded connection causes the opposite direction to terminate
// rather than hang.
func TestConnectCoupledTermination(t *testing.T) {
	fromRead, unreadFromWrite := io.Pipe()
	unreadToRead, fromWrite := io.Pipe()
	toRead, unreadToWrite := io.Pipe()
	unreadFromRead, toWrite := io.Pipe()
	_ = unreadFromWrite
	_ = unreadToRead
	_ = unreadToWrite
	_ = unreadFromRead

	from := pipeEndpoint{read: fromRead, write: fromWrite}
	to := pipeEndpoint{read: toRead, write: toWrite}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		Connect(ctx, from, to)
		close(done)
	}()

	// Closing one endpoint's read half should cause its copy goroutine to
	// force-close the opposite endpoint's read half in turn, unblocking
	// that goroutine's pending read too, so Connect returns.
	fromRead.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after one half closed")
	}
}

// pipeEndpoint adapts a pre-split pipe pair to endpoint.Endpoint for tests
// that need direct control over both halves.
type pipeEndpoint struct {
	read  io.ReadCloser
	write io.WriteCloser
}

func (e pipeEndpoint) Split() (io.ReadCloser, io.WriteCloser) {
	return e.read, e.write
}
