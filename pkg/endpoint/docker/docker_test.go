package docker

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestBytesBufferAccumulatesWrites(t *testing.T) {
	var buf bytesBuffer
	io.WriteString(&buf, "hello ")
	io.WriteString(&buf, "world")
	if got := buf.String(); got != "hello world" {
		t.Fatalf("String() = %q, want %q", got, "hello world")
	}
}

func TestSplitContainerPath(t *testing.T) {
	cases := []struct {
		path       string
		dir, target string
	}{
		{"/var/log/", "/var/log", "."},
		{"/var/log/app.log", "/var/log", "app.log"},
		{"app.log", ".", "app.log"},
		{"/", "", "."},
	}
	for _, c := range cases {
		dir, target := splitContainerPath(c.path)
		if dir != c.dir || target != c.target {
			t.Errorf("splitContainerPath(%q) = (%q, %q), want (%q, %q)", c.path, dir, target, c.dir, c.target)
		}
	}
}

// fakeConn is a minimal net.Conn that also optionally implements
// CloseWrite, used to exercise duplexWriteHalf's fallback behavior without a
// real Docker daemon.
type fakeConn struct {
	closeWriteCalled bool
	closeCalled      bool
}

func (c *fakeConn) Read(p []byte) (int, error)       { return 0, io.EOF }
func (c *fakeConn) Write(p []byte) (int, error)       { return len(p), nil }
func (c *fakeConn) Close() error                      { c.closeCalled = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr               { return nil }
func (c *fakeConn) RemoteAddr() net.Addr              { return nil }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

type fakeConnWithCloseWrite struct {
	fakeConn
}

func (c *fakeConnWithCloseWrite) CloseWrite() error {
	c.closeWriteCalled = true
	return nil
}

func TestDuplexWriteHalfClosePrefersCloseWrite(t *testing.T) {
	conn := &fakeConnWithCloseWrite{}
	duplex := &hijackedDuplex{}
	duplex.attached.Conn = conn

	half := duplexWriteHalf{d: duplex}
	if err := half.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.closeWriteCalled {
		t.Error("expected CloseWrite to be called")
	}
	if conn.closeCalled {
		t.Error("did not expect full Close to be called when CloseWrite succeeds")
	}
}
