package copy

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// memorySource is an in-memory copy.Source fixture so Pump can be tested
// without shelling out to tar.
type memorySource struct {
	reader *bytes.Reader
	size   uint64
}

func (s *memorySource) Read(p []byte) (int, error) { return s.reader.Read(p) }
func (s *memorySource) Size() uint64                { return s.size }
func (s *memorySource) Close() error                 { return nil }

type memoryDestination struct {
	buf bytes.Buffer
}

func (d *memoryDestination) Write(p []byte) (int, error) { return d.buf.Write(p) }
func (d *memoryDestination) Close() error                 { return nil }

// TestPumpDeliversAllBytesAndProgress verifies spec property E5: total
// progress events sum to source size and the destination receives exactly
// the source bytes.
func TestPumpDeliversAllBytesAndProgress(t *testing.T) {
	data := make([]byte, 3*1024*1024+37) // not an exact multiple of chunkSize
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("unable to generate random data: %v", err)
	}

	src := &memorySource{reader: bytes.NewReader(data), size: uint64(len(data))}
	dst := &memoryDestination{}

	progress := Pump(context.Background(), src, dst)

	var total int
	var lastTotal int
	for n := range progress {
		total += n
		if total < lastTotal {
			t.Fatalf("progress total went backwards: %d then %d", lastTotal, total)
		}
		lastTotal = total
	}

	if total != len(data) {
		t.Fatalf("expected total progress %d, got %d", len(data), total)
	}
	if !bytes.Equal(dst.buf.Bytes(), data) {
		t.Fatal("destination bytes do not match source bytes")
	}
}

// TestLocalCopyRoundTrip exercises the real local tar source/destination
// conduits end to end: a populated source directory is copied to an empty
// destination directory and the resulting file matches byte for byte.
func TestLocalCopyRoundTrip(t *testing.T) {
	if _, err := os.Stat("/bin/tar"); err != nil {
		if _, err := os.Stat("/usr/bin/tar"); err != nil {
			t.Skip("tar not available in this environment")
		}
	}

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	data := make([]byte, 3*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("unable to generate random data: %v", err)
	}
	srcFile := filepath.Join(srcDir, "payload.bin")
	if err := os.WriteFile(srcFile, data, 0o644); err != nil {
		t.Fatalf("unable to write source file: %v", err)
	}

	ctx := context.Background()
	source, err := NewLocalSource(ctx, srcFile)
	if err != nil {
		t.Fatalf("unable to open local source: %v", err)
	}
	destination, err := NewLocalDestination(ctx, dstDir)
	if err != nil {
		t.Fatalf("unable to open local destination: %v", err)
	}

	var total int
	for n := range Pump(ctx, source, destination) {
		total += n
	}
	Close(source, destination)

	if uint64(total) == 0 {
		t.Fatal("expected nonzero progress total")
	}

	copied, err := os.ReadFile(filepath.Join(dstDir, "payload.bin"))
	if err != nil {
		t.Fatalf("unable to read copied file: %v", err)
	}
	if !bytes.Equal(copied, data) {
		t.Fatal("copied file does not match source file")
	}
}

// TestWatchPrecheckDetectsEarlyStderr verifies that bytes written to stderr
// within the watchdog window surface as an error.
func TestWatchPrecheckDetectsEarlyStderr(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		w.Write([]byte("tar: no such file or directory\n"))
	}()

	if err := WatchPrecheck(r); err == nil {
		t.Fatal("expected an error from early stderr output")
	}
}

// TestWatchPrecheckPassesWhenSilent verifies that a destination with no
// early stderr output passes the precheck.
func TestWatchPrecheckPassesWhenSilent(t *testing.T) {
	r, _ := io.Pipe()
	if err := WatchPrecheck(r); err != nil {
		t.Fatalf("expected no error from silent stderr, got %v", err)
	}
}
