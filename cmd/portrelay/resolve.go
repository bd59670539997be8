package main

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/portrelay/portrelay/pkg/agent"
	"github.com/portrelay/portrelay/pkg/copy"
	"github.com/portrelay/portrelay/pkg/endpoint"
	"github.com/portrelay/portrelay/pkg/endpoint/docker"
	"github.com/portrelay/portrelay/pkg/endpoint/kube"
	"github.com/portrelay/portrelay/pkg/endpoint/local"
	"github.com/portrelay/portrelay/pkg/endpoint/stdio"
	"github.com/portrelay/portrelay/pkg/logging"
	"github.com/portrelay/portrelay/pkg/pathspec"
)

// rootLogger is shared by every subcommand; no command-line flag changes its
// level.
var rootLogger = logging.RootLogger

// portString renders a port as its decimal string form for dial/listen
// addresses.
func portString(port uint16) string {
	return strconv.Itoa(int(port))
}

// resolveForwardSource builds an endpoint.Source for the origin side of a
// port forward from a parsed endpoint spec.
func resolveForwardSource(ctx context.Context, spec pathspec.Spec) (endpoint.Source, error) {
	switch spec.Kind {
	case pathspec.KindLocal:
		return local.NewListenerSource(normalizeLocalAddr(spec))
	case pathspec.KindDocker:
		client, err := docker.NewClient(rootLogger)
		if err != nil {
			return nil, err
		}
		if err := installDockerAgent(ctx, client, spec.Container); err != nil {
			return nil, err
		}
		return client.Listen(ctx, spec.Container, spec.Port)
	case pathspec.KindKube:
		client, err := kube.NewClient(rootLogger, spec.Context, spec.Namespace)
		if err != nil {
			return nil, err
		}
		if err := installKubeAgent(ctx, client, spec.Pod); err != nil {
			return nil, err
		}
		return client.Listen(ctx, spec.Pod, spec.Port)
	default:
		return nil, errors.Errorf("endpoint kind %v cannot be a forward origin", spec.Kind)
	}
}

// resolveForwardDestination builds an endpoint.Destination for the target
// side of a port forward from a parsed endpoint spec.
func resolveForwardDestination(ctx context.Context, spec pathspec.Spec) (endpoint.Destination, error) {
	switch spec.Kind {
	case pathspec.KindStdio:
		return stdioDestination{}, nil
	case pathspec.KindLocal:
		return local.NewDialerDestination(ctx, normalizeLocalAddr(spec)), nil
	case pathspec.KindDocker:
		client, err := docker.NewClient(rootLogger)
		if err != nil {
			return nil, err
		}
		if err := installDockerAgent(ctx, client, spec.Container); err != nil {
			return nil, err
		}
		return client.Dial(ctx, spec.Container, spec.Port)
	case pathspec.KindKube:
		client, err := kube.NewClient(rootLogger, spec.Context, spec.Namespace)
		if err != nil {
			return nil, err
		}
		if err := installKubeAgent(ctx, client, spec.Pod); err != nil {
			return nil, err
		}
		return client.Dial(ctx, spec.Pod, spec.Port)
	default:
		return nil, errors.Errorf("endpoint kind %v cannot be a forward destination", spec.Kind)
	}
}

// stdioDestination is a Destination wrapping the process's own stdio, used
// when the forward target is "-". Every Open returns an endpoint over the
// same os.Stdin/os.Stdout.
type stdioDestination struct{}

func (stdioDestination) Open() (endpoint.Endpoint, error) {
	return stdio.New(), nil
}

// normalizeLocalAddr renders a KindLocal spec's host/port as a dial/listen
// address.
func normalizeLocalAddr(spec pathspec.Spec) string {
	return spec.Host + ":" + portString(spec.Port)
}

func installDockerAgent(ctx context.Context, client *docker.Client, container string) error {
	file, err := agent.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	return client.InstallAgent(ctx, container, file)
}

func installKubeAgent(ctx context.Context, client *kube.Client, pod string) error {
	file, err := agent.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	return client.InstallAgent(ctx, pod, file)
}

// resolveCopySource builds a copy.Source from a parsed copy-path spec.
func resolveCopySource(ctx context.Context, spec pathspec.Spec) (copy.Source, error) {
	switch spec.Kind {
	case pathspec.KindLocal:
		return copy.NewLocalSource(ctx, spec.Path)
	case pathspec.KindDocker:
		client, err := docker.NewClient(rootLogger)
		if err != nil {
			return nil, err
		}
		return client.TarSource(ctx, spec.Container, spec.Path)
	case pathspec.KindKube:
		client, err := kube.NewClient(rootLogger, spec.Context, spec.Namespace)
		if err != nil {
			return nil, err
		}
		return client.TarSource(ctx, spec.Pod, spec.Path)
	default:
		return nil, errors.Errorf("endpoint kind %v cannot be a copy source", spec.Kind)
	}
}

// resolveCopyDestination builds a copy.Destination from a parsed copy-path
// spec.
func resolveCopyDestination(ctx context.Context, spec pathspec.Spec) (copy.Destination, error) {
	switch spec.Kind {
	case pathspec.KindLocal:
		return copy.NewLocalDestination(ctx, spec.Path)
	case pathspec.KindDocker:
		client, err := docker.NewClient(rootLogger)
		if err != nil {
			return nil, err
		}
		return client.TarDestination(ctx, spec.Container, spec.Path)
	case pathspec.KindKube:
		client, err := kube.NewClient(rootLogger, spec.Context, spec.Namespace)
		if err != nil {
			return nil, err
		}
		return client.TarDestination(ctx, spec.Pod, spec.Path)
	default:
		return nil, errors.Errorf("endpoint kind %v cannot be a copy destination", spec.Kind)
	}
}
