package copy

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// splitPath resolves path into the (dir, target) pair tar needs, per
// spec.md §4.5: a trailing slash means "copy the directory's contents",
// otherwise "copy this one entry from its parent".
func splitPath(path string) (dir, target string) {
	if strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/"), "."
	}
	return filepath.Dir(path), filepath.Base(path)
}

// localSource is a Source backed by a local `tar cf -` process.
type localSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	size   uint64
}

// NewLocalSource opens path as a copy source: it first execs
// `tar cf - -C <dir> <target> | wc -c` to learn the exact tar stream size,
// then execs the real `tar cf -` whose stdout is the source's read side.
func NewLocalSource(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "path %s does not exist", path)
	}
	dir, target := splitPath(path)

	size, err := localTarSize(ctx, dir, target)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "tar", "cf", "-", "-C", dir, target)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach tar stdout")
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start tar")
	}

	return &localSource{cmd: cmd, stdout: stdout, size: size}, nil
}

// localTarSize execs `sh -c "tar cf - -C <dir> <target> | wc -c"` to learn
// the exact byte count of the tar stream without buffering it in memory.
func localTarSize(ctx context.Context, dir, target string) (uint64, error) {
	shellCmd := "tar cf - -C " + quoteShell(dir) + " " + quoteShell(target) + " | wc -c"
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, errors.Wrap(err, "unable to attach wc stdout")
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "unable to start size precheck")
	}

	reader := bufio.NewReader(stdout)
	line, _ := reader.ReadString('\n')
	if err := cmd.Wait(); err != nil {
		return 0, errors.Wrapf(err, "size precheck failed: %s", stderr.String())
	}
	if stderr.Len() > 0 {
		return 0, errors.Errorf("size precheck failed: %s", stderr.String())
	}

	size, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "unable to parse tar size")
	}
	return size, nil
}

// quoteShell wraps s in single quotes, escaping any embedded single quote,
// since dir/target come from a user-supplied path passed through sh -c.
func quoteShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *localSource) Read(p []byte) (int, error) { return s.stdout.Read(p) }
func (s *localSource) Size() uint64                { return s.size }

func (s *localSource) Close() error {
	s.stdout.Close()
	return s.cmd.Wait()
}

// localDestination is a Destination backed by a local `tar xf -` process.
type localDestination struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewLocalDestination opens path as a copy destination: it execs
// `tar xf - -C <path>`, whose stdin is the destination's write side, and
// watches its stderr for precheckWindow to surface early failures (e.g. the
// path doesn't exist).
func NewLocalDestination(ctx context.Context, path string) (Destination, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("destination path %s is not a directory", path)
	}

	cmd := exec.CommandContext(ctx, "tar", "xf", "-", "-C", path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach tar stdin")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach tar stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start tar")
	}

	if err := WatchPrecheck(stderr); err != nil {
		cmd.Process.Kill()
		return nil, err
	}
	go func() {
		for {
			buf := make([]byte, 4096)
			n, err := stderr.Read(buf)
			if n > 0 {
				os.Stderr.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	return &localDestination{cmd: cmd, stdin: stdin}, nil
}

func (d *localDestination) Write(p []byte) (int, error) { return d.stdin.Write(p) }

func (d *localDestination) Close() error {
	d.stdin.Close()
	return d.cmd.Wait()
}
