package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/portrelay/portrelay/pkg/copy"
	"github.com/portrelay/portrelay/pkg/pathspec"
)

func copyMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("cp requires exactly two arguments: <source> <destination>")
	}

	sourceSpec, err := pathspec.ParseCopyPath(arguments[0])
	if err != nil {
		return errors.Wrap(err, "invalid source path")
	}
	destinationSpec, err := pathspec.ParseCopyPath(arguments[1])
	if err != nil {
		return errors.Wrap(err, "invalid destination path")
	}

	ctx := context.Background()

	fmt.Print("Copying from: ", arguments[0])
	source, err := resolveCopySource(ctx, sourceSpec)
	if err != nil {
		return errors.Wrap(err, "unable to open copy source")
	}

	fmt.Print(" to: ", arguments[1], "\n")
	destination, err := resolveCopyDestination(ctx, destinationSpec)
	if err != nil {
		source.Close()
		return errors.Wrap(err, "unable to open copy destination")
	}

	total := source.Size()
	var sent uint64
	for n := range copy.Pump(ctx, source, destination) {
		sent += uint64(n)
		fmt.Printf("\r%s / %s", humanize.Bytes(sent), humanize.Bytes(total))
	}
	fmt.Println()
	copy.Close(source, destination)

	return nil
}

var copyCommand = &cobra.Command{
	Use:   "cp <source> <destination>",
	Short: "Copy a file or directory between local, Docker, and Kubernetes targets",
	Args:  cobra.ExactArgs(2),
	RunE:  copyMain,
}
