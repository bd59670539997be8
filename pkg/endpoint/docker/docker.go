// Package docker implements the Docker remote-exec transport: installing
// the agent binary into a container, listing containers and remote files,
// and constructing listen-mode/dial-mode endpoints over a container exec's
// attached stdio. It is the Go/docker-client analogue of original_source's
// core/endpoint/docker.rs, translated from bollard's async exec calls to
// docker/docker/client's synchronous ones plus goroutines.
package docker

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/agent"
	"github.com/portrelay/portrelay/pkg/endpoint"
	"github.com/portrelay/portrelay/pkg/logging"
	"github.com/portrelay/portrelay/pkg/mux"
)

// Client wraps a Docker API client to provide the operations this module's
// forward/copy/ls commands need against a single daemon.
type Client struct {
	api    *client.Client
	logger *logging.Logger
}

// NewClient connects to the Docker daemon using the standard environment
// variables (DOCKER_HOST, DOCKER_CERT_PATH, etc.), negotiating the API
// version with the daemon.
func NewClient(logger *logging.Logger) (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to Docker daemon")
	}
	return &Client{api: api, logger: logger}, nil
}

// ListContainers returns the names of all running containers, trimmed of
// their leading slash.
func (c *Client) ListContainers(ctx context.Context) ([]string, error) {
	containers, err := c.api.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list containers")
	}
	names := make([]string, 0, len(containers))
	for _, container := range containers {
		if len(container.Names) > 0 {
			names = append(names, strings.TrimPrefix(container.Names[0], "/"))
		} else {
			names = append(names, container.ID)
		}
	}
	return names, nil
}

// ListFiles lists the contents of path inside container via a one-shot `ls`
// exec, used by path completion.
func (c *Client) ListFiles(ctx context.Context, container, path string) ([]string, error) {
	var stdout bytesBuffer
	if err := c.exec(ctx, container, []string{"ls", path}, nil, &stdout, io.Discard); err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n"), nil
}

// InstallAgent writes agentBinary to agent.Path inside container via `dd`
// and makes it executable via `chmod +x`.
func (c *Client) InstallAgent(ctx context.Context, container string, agentBinary io.Reader) error {
	if err := c.exec(ctx, container, []string{"dd", "of=" + agent.Path}, agentBinary, io.Discard, io.Discard); err != nil {
		return errors.Wrap(err, "unable to install agent")
	}
	if err := c.exec(ctx, container, []string{"chmod", "+x", agent.Path}, nil, io.Discard, io.Discard); err != nil {
		return errors.Wrap(err, "unable to make agent executable")
	}
	return nil
}

// exec runs cmd inside container, feeding it stdin (if non-nil) and
// demultiplexing its stdout/stderr into the given writers. It blocks until
// the exec's stdio all reach EOF.
func (c *Client) exec(ctx context.Context, container string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	config := types.ExecConfig{
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	}
	created, err := c.api.ContainerExecCreate(ctx, container, config)
	if err != nil {
		return errors.Wrap(err, "unable to create exec")
	}

	attached, err := c.api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return errors.Wrap(err, "unable to attach exec")
	}
	defer attached.Close()

	if stdin != nil {
		go func() {
			io.Copy(attached.Conn, stdin)
			attached.CloseWrite()
		}()
	}

	if _, err := stdcopy.StdCopy(stdout, stderr, attached.Reader); err != nil {
		return errors.Wrap(err, "unable to read exec output")
	}
	return nil
}

// bytesBuffer is a minimal io.Writer + String() sink; it exists only to
// avoid importing bytes.Buffer's much larger surface for this one use.
type bytesBuffer struct {
	data []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bytesBuffer) String() string {
	return string(b.data)
}

// hijackedDuplex adapts a types.HijackedResponse's demultiplexed stdout and
// raw stdin connection into a single io.ReadWriteCloser, so it can back
// either a multiplexer's physical duplex (listen mode) or a dial-mode
// destination endpoint directly.
type hijackedDuplex struct {
	stdout     *io.PipeReader
	attached   types.HijackedResponse
	demuxDone  chan struct{}
}

// newHijackedDuplex creates an exec inside container running cmd with both
// stdin and stdout/stderr attached, demultiplexing stdout into a pipe (so it
// can be read as a plain byte stream) while copying stderr straight to the
// host's own stderr.
func newHijackedDuplex(ctx context.Context, api *client.Client, container string, cmd []string) (*hijackedDuplex, error) {
	config := types.ExecConfig{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	}
	created, err := api.ContainerExecCreate(ctx, container, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create exec")
	}
	attached, err := api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to attach exec")
	}

	stdoutRead, stdoutWrite := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stdoutWrite.Close()
		stdcopy.StdCopy(stdoutWrite, os.Stderr, attached.Reader)
	}()

	return &hijackedDuplex{stdout: stdoutRead, attached: attached, demuxDone: done}, nil
}

func (d *hijackedDuplex) Read(p []byte) (int, error)  { return d.stdout.Read(p) }
func (d *hijackedDuplex) Write(p []byte) (int, error) { return d.attached.Conn.Write(p) }

func (d *hijackedDuplex) Close() error {
	d.attached.Close()
	d.stdout.Close()
	<-d.demuxDone
	return nil
}

// source wraps a producer-mode multiplexer's Listener as an endpoint.Source.
type source struct {
	listener *mux.Listener
	ctx      context.Context
	duplex   *hijackedDuplex
}

func (s *source) Accept() (endpoint.Endpoint, error) {
	conn, err := s.listener.Accept(s.ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *source) Close() error {
	return s.duplex.Close()
}

// Listen runs the agent in listen mode (`agent -p <port> -l`) inside
// container, wraps its stdio in a producer-mode multiplexer, and returns an
// endpoint.Source that surfaces one connection per TCP client the in-container
// agent accepts. Cancelling ctx exec's a kill-file touch before tearing the
// exec down, so the remote agent gets a chance to exit cleanly first.
func (c *Client) Listen(ctx context.Context, container string, port uint16) (endpoint.Source, error) {
	duplex, err := newHijackedDuplex(ctx, c.api, container, agent.InvocationArgs(port, true))
	if err != nil {
		return nil, err
	}

	listener := mux.Produce(ctx, c.logger, duplex, duplex)

	go func() {
		<-ctx.Done()
		killCtx := context.Background()
		c.exec(killCtx, container, []string{"touch", agent.KillPath}, nil, io.Discard, io.Discard)
	}()

	return &source{listener: listener, ctx: ctx, duplex: duplex}, nil
}

// destination is a one-shot endpoint.Destination backed by a single dial-mode
// exec duplex; the exec itself already bridges stdio to 127.0.0.1:<port>
// inside the container, so the duplex *is* the destination endpoint.
type destination struct {
	duplex *hijackedDuplex
	opened bool
}

func (d *destination) Open() (endpoint.Endpoint, error) {
	if d.opened {
		return nil, errors.New("docker dial-mode destination already opened")
	}
	d.opened = true
	return duplexEndpoint{d.duplex}, nil
}

// duplexEndpoint adapts a hijackedDuplex (a single shared connection) to
// endpoint.Endpoint by giving both halves the same Close semantics as the
// local TCP connEndpoint: closing the read half tears down the whole exec,
// while closing the write half only half-closes the exec's stdin when the
// connection supports CloseWrite (and tears down the whole exec otherwise).
type duplexEndpoint struct {
	duplex *hijackedDuplex
}

func (e duplexEndpoint) Split() (io.ReadCloser, io.WriteCloser) {
	return duplexReadHalf{e.duplex}, duplexWriteHalf{e.duplex}
}

type duplexReadHalf struct{ d *hijackedDuplex }

func (h duplexReadHalf) Read(p []byte) (int, error) { return h.d.Read(p) }
func (h duplexReadHalf) Close() error                { return h.d.Close() }

type duplexWriteHalf struct{ d *hijackedDuplex }

func (h duplexWriteHalf) Write(p []byte) (int, error) { return h.d.Write(p) }
func (h duplexWriteHalf) Close() error {
	if cw, ok := h.d.attached.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return h.d.Close()
}

// Dial runs the agent in dial mode (`agent -p <port>`, no `-l`) inside
// container and returns a one-shot Destination whose single endpoint bridges
// directly to 127.0.0.1:<port> inside the container, per the agent's
// contract.
func (c *Client) Dial(ctx context.Context, container string, port uint16) (endpoint.Destination, error) {
	duplex, err := newHijackedDuplex(ctx, c.api, container, agent.InvocationArgs(port, false))
	if err != nil {
		return nil, err
	}
	return &destination{duplex: duplex}, nil
}
