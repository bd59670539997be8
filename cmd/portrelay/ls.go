package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/portrelay/portrelay/pkg/endpoint/docker"
	"github.com/portrelay/portrelay/pkg/endpoint/kube"
	"github.com/portrelay/portrelay/pkg/pathspec"
)

func lsMain(command *cobra.Command, arguments []string) error {
	ctx := context.Background()

	if len(arguments) == 0 {
		return listDomains(ctx)
	}

	spec, err := pathspec.ParseCopyPath(arguments[0])
	if err != nil {
		return errors.Wrap(err, "invalid endpoint")
	}

	var entries []string
	switch spec.Kind {
	case pathspec.KindDocker:
		client, err := docker.NewClient(rootLogger)
		if err != nil {
			return err
		}
		entries, err = client.ListFiles(ctx, spec.Container, spec.Path)
		if err != nil {
			return err
		}
	case pathspec.KindKube:
		client, err := kube.NewClient(rootLogger, spec.Context, spec.Namespace)
		if err != nil {
			return err
		}
		entries, err = client.ListFiles(ctx, spec.Pod, spec.Path)
		if err != nil {
			return err
		}
	default:
		return errors.Errorf("endpoint kind %v does not support ls", spec.Kind)
	}

	for _, entry := range entries {
		fmt.Println(entry)
	}
	return nil
}

// listDomains lists the running Docker containers and the pods in the
// current Kubernetes context's namespace, used when ls is invoked with no
// arguments.
func listDomains(ctx context.Context) error {
	if client, err := docker.NewClient(rootLogger); err == nil {
		if containers, err := client.ListContainers(ctx); err == nil {
			for _, c := range containers {
				fmt.Println(c)
			}
		}
	}
	if client, err := kube.NewClient(rootLogger, "", ""); err == nil {
		if pods, err := client.ListPods(ctx); err == nil {
			for _, p := range pods {
				fmt.Println(p)
			}
		}
	}
	return nil
}

var lsCommand = &cobra.Command{
	Use:   "ls [endpoint]",
	Short: "List containers, pods, or remote files",
	Args:  cobra.MaximumNArgs(1),
	RunE:  lsMain,
}
