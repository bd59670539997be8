package kube

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/copy"
)

// splitPodPath mirrors spec.md §4.5's dir/target rule.
func splitPodPath(path string) (dir, target string) {
	if strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/"), "."
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ".", path
	}
	return path[:idx], path[idx+1:]
}

// remoteSource is a copy.Source backed by a long-running pod exec running
// `tar cf -`, whose stdout feeds a pipe the caller reads and whose stderr is
// copied straight to the host's stderr.
type remoteSource struct {
	cancel func()
	done   chan error
	stdout *io.PipeReader
	size   uint64
}

// TarSource opens path inside pod as a copy source, per spec.md §4.5: first
// execs `sh -c "tar cf - -C <dir> <target> | wc -c"` to learn the exact byte
// count, then execs the real `tar cf -` whose stdout becomes the source.
func (c *Client) TarSource(ctx context.Context, pod, path string) (copy.Source, error) {
	dir, target := splitPodPath(path)

	size, err := c.tarSize(ctx, pod, dir, target)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stdoutRead, stdoutWrite := io.Pipe()

	executor, err := c.execStream(pod, []string{"tar", "cf", "-", "-C", dir, target}, false)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer stdoutWrite.Close()
		err := executor.StreamWithContext(streamCtx, remotecommand.StreamOptions{
			Stdout: stdoutWrite,
			Stderr: os.Stderr,
		})
		done <- err
	}()

	return &remoteSource{cancel: cancel, done: done, stdout: stdoutRead, size: size}, nil
}

// tarSize execs `sh -c "tar cf - -C <dir> <target> | wc -c"` inside pod and
// parses the resulting count.
func (c *Client) tarSize(ctx context.Context, pod, dir, target string) (uint64, error) {
	shellCmd := "tar cf - -C " + dir + " " + target + " | wc -c"
	var stdout, stderr outputBuffer
	if err := c.exec(ctx, pod, []string{"sh", "-c", shellCmd}, nil, &stdout, &stderr); err != nil {
		return 0, errors.Wrapf(err, "unable to run size precheck: %s", stderr.String())
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

// execStream builds a SPDY executor for a long-running exec inside pod,
// optionally attaching stdin.
func (c *Client) execStream(pod string, cmd []string, stdin bool) (remotecommand.Executor, error) {
	request := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(c.namespace).
		SubResource("exec")
	request.VersionedParams(&corev1.PodExecOptions{
		Command: cmd,
		Stdin:   stdin,
		Stdout:  true,
		Stderr:  true,
		TTY:     false,
	}, scheme.ParameterCodec)

	return remotecommand.NewSPDYExecutor(c.restConfig, "POST", request.URL())
}

func (s *remoteSource) Size() uint64 { return s.size }

func (s *remoteSource) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *remoteSource) Close() error {
	s.cancel()
	<-s.done
	return s.stdout.Close()
}

// tarDestination is a copy.Destination backed by a long-running pod exec
// running `tar xf -`, fed through a stdin pipe.
type tarDestination struct {
	cancel func()
	done   chan error
	stdin  *io.PipeWriter
	stderr *io.PipeReader
}

// TarDestination opens path inside pod as a copy destination, per spec.md
// §4.5: execs `tar xf - -C <path>` and watches its stderr for
// precheckWindow before returning, surfacing early failures fatally.
func (c *Client) TarDestination(ctx context.Context, pod, path string) (copy.Destination, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	executor, err := c.execStream(pod, []string{"tar", "xf", "-", "-C", path}, true)
	if err != nil {
		cancel()
		return nil, err
	}

	stdinRead, stdinWrite := io.Pipe()
	stderrRead, stderrWrite := io.Pipe()

	done := make(chan error, 1)
	go func() {
		defer stderrWrite.Close()
		err := executor.StreamWithContext(streamCtx, remotecommand.StreamOptions{
			Stdin:  stdinRead,
			Stderr: stderrWrite,
		})
		done <- err
	}()

	if err := copy.WatchPrecheck(stderrRead); err != nil {
		cancel()
		return nil, err
	}
	go io.Copy(os.Stderr, stderrRead)

	return &tarDestination{cancel: cancel, done: done, stdin: stdinWrite, stderr: stderrRead}, nil
}

func (d *tarDestination) Write(p []byte) (int, error) { return d.stdin.Write(p) }

func (d *tarDestination) Close() error {
	d.stdin.Close()
	d.cancel()
	<-d.done
	d.stderr.Close()
	return nil
}
