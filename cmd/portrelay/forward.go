package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/portrelay/portrelay/pkg/forward"
	"github.com/portrelay/portrelay/pkg/pathspec"
)

func forwardMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("pf requires exactly two arguments: <origin> <destination>")
	}

	originSpec, err := pathspec.ParseForward(arguments[0])
	if err != nil {
		return errors.Wrap(err, "invalid origin endpoint")
	}
	destinationSpec, err := pathspec.ParseForward(arguments[1])
	if err != nil {
		return errors.Wrap(err, "invalid destination endpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	go func() {
		<-signals
		cancel()
	}()

	origin, err := resolveForwardSource(ctx, originSpec)
	if err != nil {
		return errors.Wrap(err, "unable to open origin")
	}

	destination, err := resolveForwardDestination(ctx, destinationSpec)
	if err != nil {
		return errors.Wrap(err, "unable to resolve destination")
	}

	fmt.Printf("Forwarding %s -> %s\n", arguments[0], arguments[1])

	engine := &forward.Engine{Logger: rootLogger}
	return engine.Serve(ctx, origin, destination)
}

var forwardCommand = &cobra.Command{
	Use:   "pf <origin> <destination>",
	Short: "Forward TCP connections from an origin to a destination",
	Args:  cobra.ExactArgs(2),
	RunE:  forwardMain,
}
