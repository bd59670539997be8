package kube

import (
	"io"
	"testing"
)

func TestOutputBufferAccumulatesWrites(t *testing.T) {
	var buf outputBuffer
	io.WriteString(&buf, "hello ")
	io.WriteString(&buf, "world")
	if got := buf.String(); got != "hello world" {
		t.Fatalf("String() = %q, want %q", got, "hello world")
	}
}

func TestSplitPodPath(t *testing.T) {
	cases := []struct {
		path         string
		dir, target string
	}{
		{"/var/log/", "/var/log", "."},
		{"/var/log/app.log", "/var/log", "app.log"},
		{"app.log", ".", "app.log"},
		{"/", "", "."},
	}
	for _, c := range cases {
		dir, target := splitPodPath(c.path)
		if dir != c.dir || target != c.target {
			t.Errorf("splitPodPath(%q) = (%q, %q), want (%q, %q)", c.path, dir, target, c.dir, c.target)
		}
	}
}

func TestDuplexWriteHalfCloseClosesStdin(t *testing.T) {
	stdoutRead, stdoutWrite := io.Pipe()
	_, stdinWrite := io.Pipe()
	done := make(chan error, 1)
	done <- nil

	duplex := &execDuplex{
		stdinWrite: stdinWrite,
		stdoutRead: stdoutRead,
		done:       done,
		cancel:     func() {},
	}

	half := duplexWriteHalf{d: duplex}
	if err := half.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := stdinWrite.Write([]byte("x")); err != io.ErrClosedPipe {
		t.Errorf("expected stdin pipe to be closed, got err=%v", err)
	}

	stdoutWrite.Close()
}
