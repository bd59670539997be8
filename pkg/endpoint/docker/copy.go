package docker

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/copy"
)

// splitContainerPath mirrors spec.md §4.5's dir/target rule: a trailing
// slash copies the directory's contents, otherwise the parent/basename
// pair names a single entry.
func splitContainerPath(path string) (dir, target string) {
	if strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/"), "."
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ".", path
	}
	return path[:idx], path[idx+1:]
}

// remoteSource is a copy.Source backed by a container exec's attached
// stdout, following an initial `tar cf - | wc -c` precheck exec. The exec's
// combined stdout/stderr stream is demultiplexed in the background: stdout
// bytes feed the pipe callers read from, stderr bytes go to the host's
// stderr, per spec.md §4.5.
type remoteSource struct {
	attached types.HijackedResponse
	stdout   *io.PipeReader
	size     uint64
}

// TarSource opens path inside container as a copy source, per spec.md
// §4.5: first execs `sh -c "tar cf - -C <dir> <target> | wc -c"` to learn
// the exact byte count, then execs the real `tar cf -` whose demultiplexed
// stdout becomes the source.
func (c *Client) TarSource(ctx context.Context, container, path string) (copy.Source, error) {
	dir, target := splitContainerPath(path)

	size, err := c.tarSize(ctx, container, dir, target)
	if err != nil {
		return nil, err
	}

	config := types.ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"tar", "cf", "-", "-C", dir, target},
	}
	created, err := c.api.ContainerExecCreate(ctx, container, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create tar exec")
	}
	attached, err := c.api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach tar exec")
	}

	stdoutRead, stdoutWrite := io.Pipe()
	go func() {
		defer stdoutWrite.Close()
		stdcopy.StdCopy(stdoutWrite, os.Stderr, attached.Reader)
	}()

	return &remoteSource{attached: attached, stdout: stdoutRead, size: size}, nil
}

// tarSize execs `sh -c "tar cf - -C <dir> <target> | wc -c"` inside
// container and parses the resulting count.
func (c *Client) tarSize(ctx context.Context, container, dir, target string) (uint64, error) {
	shellCmd := "tar cf - -C " + dir + " " + target + " | wc -c"
	var stdout, stderr bytesBuffer
	if err := c.exec(ctx, container, []string{"sh", "-c", shellCmd}, nil, &stdout, &stderr); err != nil {
		return 0, errors.Wrap(err, "unable to run size precheck")
	}
	if stderr.String() != "" {
		return 0, errors.Errorf("size precheck failed: %s", stderr.String())
	}
	size, err := strconv.ParseUint(strings.TrimSpace(stdout.String()), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "unable to parse tar size")
	}
	return size, nil
}

func (s *remoteSource) Size() uint64 { return s.size }

func (s *remoteSource) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *remoteSource) Close() error {
	s.attached.Close()
	return s.stdout.Close()
}

// tarDestination is a copy.Destination backed by a container exec's
// attached stdin, running `tar xf -`.
type tarDestination struct {
	attached types.HijackedResponse
	stderr   *io.PipeReader
}

// TarDestination opens path inside container as a copy destination, per
// spec.md §4.5: execs `tar xf - -C <path>` and watches its stderr for
// precheckWindow before returning, surfacing early failures fatally.
func (c *Client) TarDestination(ctx context.Context, container, path string) (copy.Destination, error) {
	config := types.ExecConfig{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"tar", "xf", "-", "-C", path},
	}
	created, err := c.api.ContainerExecCreate(ctx, container, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create tar exec")
	}
	attached, err := c.api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach tar exec")
	}

	stderrRead, stderrWrite := io.Pipe()
	go func() {
		defer stderrWrite.Close()
		stdcopy.StdCopy(io.Discard, stderrWrite, attached.Reader)
	}()

	if err := copy.WatchPrecheck(stderrRead); err != nil {
		attached.Close()
		return nil, err
	}
	go io.Copy(os.Stderr, stderrRead)

	return &tarDestination{attached: attached, stderr: stderrRead}, nil
}

func (d *tarDestination) Write(p []byte) (int, error) { return d.attached.Conn.Write(p) }

func (d *tarDestination) Close() error {
	if cw, ok := d.attached.Conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	d.attached.Close()
	d.stderr.Close()
	return nil
}
