// Command portrelay-agent is the binary the host installs into a container
// or pod. Run with "-p <port> -l" it binds 127.0.0.1:<port> and bridges
// every accepted connection onto a consumer-mode multiplexer over its own
// stdio; run with "-p <port>" (no -l) it dials 127.0.0.1:<port> and bridges
// the connection directly onto its own stdio. Both modes poll a well-known
// kill file once a second and exit cleanly when it appears. Grounded on
// spec.md §4.4 and the teacher's cmd/mutagen-agent/main.go entry-point
// shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/portrelay/portrelay/pkg/agent"
	"github.com/portrelay/portrelay/pkg/endpoint"
	"github.com/portrelay/portrelay/pkg/endpoint/local"
	"github.com/portrelay/portrelay/pkg/forward"
	"github.com/portrelay/portrelay/pkg/logging"
	"github.com/portrelay/portrelay/pkg/mux"
)

func main() {
	port := flag.Int("p", 0, "local TCP port to bridge")
	listen := flag.Bool("l", false, "listen mode: accept local connections and multiplex them onto stdio")
	// The host invokes the agent as "<path> agent -p <port> [-l]"
	// (agent.InvocationArgs); skip that leading "agent" word before parsing.
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "agent" {
		args = args[1:]
	}
	flag.CommandLine.Parse(args)

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "error: -p <port> is required")
		os.Exit(2)
	}

	logger := logging.NewLogger(logging.LevelWarn, os.Stderr)
	ctx, cancel := context.WithCancel(context.Background())
	go watchKillFile(cancel)

	var err error
	if *listen {
		err = runListen(ctx, logger, uint16(*port))
	} else {
		err = runDial(ctx, uint16(*port))
	}
	cancel()
	if err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// watchKillFile polls for the kill file every KillPollInterval and cancels
// the process once it appears, per spec.md §4.4.
func watchKillFile(cancel context.CancelFunc) {
	ticker := time.NewTicker(agent.KillPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if agent.KillRequested() {
			cancel()
			return
		}
	}
}

// runListen binds 127.0.0.1:<port> and bridges every accepted connection
// onto a consumer-mode multiplexer driven over the process's own stdio.
func runListen(ctx context.Context, logger *logging.Logger, port uint16) error {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	origin, err := local.NewListenerSource(address)
	if err != nil {
		return err
	}
	defer origin.Close()

	dialer := mux.Consume(ctx, logger, os.Stdin, os.Stdout)

	go func() {
		<-ctx.Done()
		origin.Close()
	}()

	for {
		incoming, err := origin.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go bridgeSubmission(ctx, dialer, incoming)
	}
}

// bridgeSubmission submits a locally accepted connection to the dialer and
// keeps it open until the connection itself closes; the multiplexer pumps
// handle the actual byte shuttling once the submission succeeds.
func bridgeSubmission(ctx context.Context, dialer *mux.Dialer, incoming endpoint.Endpoint) {
	read, write := incoming.Split()
	if err := dialer.Open(ctx, read, write); err != nil {
		read.Close()
		write.Close()
	}
}

// runDial connects to 127.0.0.1:<port> and bridges the connection directly
// onto the process's own stdio, per spec.md §4.4's dial-mode contract.
func runDial(ctx context.Context, port uint16) error {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	destination := local.NewDialerDestination(ctx, address)
	target, err := destination.Open()
	if err != nil {
		return err
	}

	stdioEndpoint := stdioConn{}
	_, err = forward.Connect(ctx, stdioEndpoint, target)
	return err
}

// stdioConn adapts the process's own stdio to endpoint.Endpoint for
// dial-mode bridging.
type stdioConn struct{}

func (stdioConn) Split() (io.ReadCloser, io.WriteCloser) {
	return os.Stdin, os.Stdout
}
