package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/portrelay/portrelay/pkg/endpoint/docker"
	"github.com/portrelay/portrelay/pkg/endpoint/kube"
	"github.com/portrelay/portrelay/pkg/pathspec"
)

// dockerContainerLister adapts *docker.Client to pathspec.ContainerLister
// and pathspec.ContainerFileLister.
type dockerContainerLister struct{ client *docker.Client }

func (d dockerContainerLister) ListContainers(ctx context.Context) ([]string, error) {
	return d.client.ListContainers(ctx)
}

func (d dockerContainerLister) ListFiles(ctx context.Context, container, path string) ([]string, error) {
	return d.client.ListFiles(ctx, container, path)
}

// kubeLister adapts *kube.Client to pathspec's Kube* completion interfaces.
type kubeLister struct{ client *kube.Client }

func (k kubeLister) ListNamespaces(ctx context.Context) ([]string, error) {
	return k.client.ListNamespaces(ctx)
}

func (k kubeLister) ListPods(ctx context.Context) ([]string, error) {
	return k.client.ListPods(ctx)
}

func (k kubeLister) ListFiles(ctx context.Context, pod, path string) ([]string, error) {
	return k.client.ListFiles(ctx, pod, path)
}

func completeMain(command *cobra.Command, arguments []string) error {
	var partial string
	if len(arguments) > 0 {
		partial = arguments[0]
	}

	ctx := context.Background()
	var sources pathspec.Sources

	if client, err := docker.NewClient(rootLogger); err == nil {
		sources.Containers = dockerContainerLister{client}
		sources.ContainerFiles = dockerContainerLister{client}
	}
	if client, err := kube.NewClient(rootLogger, "", ""); err == nil {
		sources.KubeNamespaces = kubeLister{client}
		sources.KubePods = kubeLister{client}
		sources.KubeFiles = kubeLister{client}
	}

	for _, suggestion := range pathspec.Suggest(ctx, partial, sources) {
		fmt.Println(suggestion)
	}
	return nil
}

var completeCommand = &cobra.Command{
	Use:    "complete [partial]",
	Short:  "Print shell-completion suggestions for an endpoint string",
	Args:   cobra.MaximumNArgs(1),
	Hidden: true,
	RunE:   completeMain,
}
