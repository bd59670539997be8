// Package kube implements the Kubernetes remote-exec transport: installing
// the agent binary into a pod, listing namespaces/pods/remote files, and
// constructing listen-mode/dial-mode endpoints over a pod exec's attached
// stdio via SPDY. It is the Go/client-go analogue of original_source's
// core/endpoint/kube.rs.
package kube

import (
	"context"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/agent"
	"github.com/portrelay/portrelay/pkg/endpoint"
	"github.com/portrelay/portrelay/pkg/logging"
	"github.com/portrelay/portrelay/pkg/mux"
)

// Client wraps a single kubeconfig context's REST config and clientset,
// mirroring kube.rs's KubeConfigs/get_client resolution but collapsed to the
// single context a command invocation actually needs.
type Client struct {
	restConfig *rest.Config
	clientset  *kubernetes.Clientset
	namespace  string
	logger     *logging.Logger
}

// NewClient loads the kubeconfig (respecting KUBECONFIG and the default
// ~/.kube/config search path) and resolves context to a REST config and
// clientset. An empty context uses the kubeconfig's current-context.
func NewClient(logger *logging.Logger, context, namespace string) (*Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	if context != "" {
		overrides.CurrentContext = context
	}
	if namespace != "" {
		overrides.Context.Namespace = namespace
	}

	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load kubeconfig")
	}

	ns := namespace
	if ns == "" {
		if rawNS, _, err := clientConfig.Namespace(); err == nil {
			ns = rawNS
		} else {
			ns = "default"
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to construct Kubernetes client")
	}

	return &Client{restConfig: restConfig, clientset: clientset, namespace: ns, logger: logger}, nil
}

// ListNamespaces returns the names of all namespaces visible to the current
// context.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	namespaces, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list namespaces")
	}
	names := make([]string, 0, len(namespaces.Items))
	for _, ns := range namespaces.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// ListPods returns the names of all pods in the client's configured
// namespace.
func (c *Client) ListPods(ctx context.Context) ([]string, error) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list pods")
	}
	names := make([]string, 0, len(pods.Items))
	for _, pod := range pods.Items {
		names = append(names, pod.Name)
	}
	return names, nil
}

// ListFiles lists the contents of path inside pod via a one-shot `ls`
// exec, used by path completion.
func (c *Client) ListFiles(ctx context.Context, pod, path string) ([]string, error) {
	var stdout, stderr outputBuffer
	if err := c.exec(ctx, pod, []string{"ls", path}, nil, &stdout, &stderr); err != nil {
		return nil, errors.Wrapf(err, "unable to list %s: %s", path, stderr.String())
	}
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	return lines, nil
}

// InstallAgent writes agentBinary to agent.Path inside pod via `dd` and
// makes it executable via `chmod +x`.
func (c *Client) InstallAgent(ctx context.Context, pod string, agentBinary io.Reader) error {
	var stderr outputBuffer
	if err := c.exec(ctx, pod, []string{"dd", "of=" + agent.Path}, agentBinary, io.Discard, &stderr); err != nil {
		return errors.Wrapf(err, "unable to install agent: %s", stderr.String())
	}
	stderr = outputBuffer{}
	if err := c.exec(ctx, pod, []string{"chmod", "+x", agent.Path}, nil, io.Discard, &stderr); err != nil {
		return errors.Wrapf(err, "unable to make agent executable: %s", stderr.String())
	}
	return nil
}

// exec runs cmd inside pod's first container, feeding it stdin (if non-nil)
// and streaming its stdout/stderr into the given writers. It blocks until
// the command exits.
func (c *Client) exec(ctx context.Context, pod string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	request := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(c.namespace).
		SubResource("exec")
	request.VersionedParams(&corev1.PodExecOptions{
		Command: cmd,
		Stdin:   stdin != nil,
		Stdout:  true,
		Stderr:  true,
		TTY:     false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", request.URL())
	if err != nil {
		return errors.Wrap(err, "unable to construct exec executor")
	}

	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
}

// outputBuffer is a minimal io.Writer + String() sink for capturing exec
// output, avoiding bytes.Buffer's larger surface for this narrow use.
type outputBuffer struct {
	data []byte
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *outputBuffer) String() string {
	return string(b.data)
}

// execDuplex adapts a long-running pod exec (the agent process) into an
// io.ReadWriteCloser by running remotecommand's blocking Stream call in a
// background goroutine, with stdin/stdout bridged through pipes.
type execDuplex struct {
	stdinWrite  *io.PipeWriter
	stdoutRead  *io.PipeReader
	done        chan error
	cancel      context.CancelFunc
}

// newExecDuplex starts an exec of cmd inside pod that is expected to run
// until cancelled, bridging its stdin/stdout/stderr to pipes so the result
// can be driven like any other endpoint.Endpoint.
func newExecDuplex(ctx context.Context, c *Client, pod string, cmd []string) (*execDuplex, error) {
	request := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(c.namespace).
		SubResource("exec")
	request.VersionedParams(&corev1.PodExecOptions{
		Command: cmd,
		Stdin:   true,
		Stdout:  true,
		Stderr:  true,
		TTY:     false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", request.URL())
	if err != nil {
		return nil, errors.Wrap(err, "unable to construct exec executor")
	}

	stdinRead, stdinWrite := io.Pipe()
	stdoutRead, stdoutWrite := io.Pipe()

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		defer stdoutWrite.Close()
		err := executor.StreamWithContext(streamCtx, remotecommand.StreamOptions{
			Stdin:  stdinRead,
			Stdout: stdoutWrite,
			Stderr: stdoutWrite,
		})
		done <- err
	}()

	return &execDuplex{stdinWrite: stdinWrite, stdoutRead: stdoutRead, done: done, cancel: cancel}, nil
}

func (d *execDuplex) Read(p []byte) (int, error)  { return d.stdoutRead.Read(p) }
func (d *execDuplex) Write(p []byte) (int, error) { return d.stdinWrite.Write(p) }

func (d *execDuplex) Close() error {
	d.stdinWrite.Close()
	d.cancel()
	<-d.done
	d.stdoutRead.Close()
	return nil
}

// source wraps a producer-mode multiplexer's Listener as an endpoint.Source.
type source struct {
	listener *mux.Listener
	ctx      context.Context
	duplex   *execDuplex
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

// Listen runs the agent in listen mode (`agent -p <port> -l`) inside pod,
// wraps its stdio in a producer-mode multiplexer, and returns an
// endpoint.Source that surfaces one connection per TCP client the in-pod
// agent accepts. Cancelling ctx exec's a kill-file touch before tearing the
// stream down.
func (c *Client) Listen(ctx context.Context, pod string, port uint16) (endpoint.Source, error) {
	duplex, err := newExecDuplex(ctx, c, pod, agent.InvocationArgs(port, true))
	if err != nil {
		return nil, err
	}

	listener := mux.Produce(ctx, c.logger, duplex, duplex)

	go func() {
		<-ctx.Done()
		killCtx := context.Background()
		c.exec(killCtx, pod, []string{"touch", agent.KillPath}, nil, io.Discard, io.Discard)
	}()

	return &source{listener: listener, ctx: ctx, duplex: duplex}, nil
}

// destination is a one-shot endpoint.Destination backed by a single dial-mode
// exec duplex; the agent bridges the exec's stdio to 127.0.0.1:<port> inside
// the pod itself.
type destination struct {
	duplex *execDuplex
	opened bool
}

func (d *destination) Open() (endpoint.Endpoint, error) {
	if d.opened {
		return nil, errors.New("kube dial-mode destination already opened")
	}
	d.opened = true
	return duplexEndpoint{d.duplex}, nil
}

// duplexEndpoint adapts an execDuplex to endpoint.Endpoint.
type duplexEndpoint struct {
	duplex *execDuplex
}

func (e duplexEndpoint) Split() (io.ReadCloser, io.WriteCloser) {
	return duplexReadHalf{e.duplex}, duplexWriteHalf{e.duplex}
}

type duplexReadHalf struct{ d *execDuplex }

func (h duplexReadHalf) Read(p []byte) (int, error) { return h.d.Read(p) }
func (h duplexReadHalf) Close() error                { return h.d.Close() }

type duplexWriteHalf struct{ d *execDuplex }

func (h duplexWriteHalf) Write(p []byte) (int, error) { return h.d.Write(p) }
func (h duplexWriteHalf) Close() error {
	return h.d.stdinWrite.Close()
}

// Dial runs the agent in dial mode (`agent -p <port>`, no `-l`) inside pod
// and returns a one-shot Destination whose single endpoint bridges directly
// to 127.0.0.1:<port> inside the pod.
func (c *Client) Dial(ctx context.Context, pod string, port uint16) (endpoint.Destination, error) {
	duplex, err := newExecDuplex(ctx, c, pod, agent.InvocationArgs(port, false))
	if err != nil {
		return nil, err
	}
	return &destination{duplex: duplex}, nil
}
