package pathspec

import (
	"context"
	"strings"
)

// ContainerLister lists Docker containers, used to complete a partial
// container name.
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]string, error)
}

// ContainerFileLister lists files inside a named Docker container, used to
// complete a copy path.
type ContainerFileLister interface {
	ListFiles(ctx context.Context, container, path string) ([]string, error)
}

// KubeContextLister lists known kubeconfig contexts.
type KubeContextLister interface {
	ListContexts() []string
}

// KubeNamespaceLister lists namespaces visible under a context.
type KubeNamespaceLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// KubePodLister lists pods in a namespace.
type KubePodLister interface {
	ListPods(ctx context.Context) ([]string, error)
}

// KubeFileLister lists files inside a named pod.
type KubeFileLister interface {
	ListFiles(ctx context.Context, pod, path string) ([]string, error)
}

// Sources bundles the listing collaborators Suggest needs. Any nil field
// simply yields no suggestions from that domain, so a caller that only
// wired up Docker (say) still gets Docker-only completion.
type Sources struct {
	Containers     ContainerLister
	ContainerFiles ContainerFileLister
	KubeContexts   KubeContextLister
	KubeNamespaces KubeNamespaceLister
	KubePods       KubePodLister
	KubeFiles      KubeFileLister
}

// Suggest returns shell-completion candidates for a partially typed endpoint
// string, mirroring original_source's path_parser.rs get_suggestions: an
// empty partial suggests every container and context; a partial without a
// colon suggests matching container/context names; a partial past the colon
// suggests matching remote file paths.
func Suggest(ctx context.Context, partial string, sources Sources) []string {
	if partial == "" {
		var all []string
		if sources.KubeContexts != nil {
			all = append(all, sources.KubeContexts.ListContexts()...)
		}
		if sources.Containers != nil {
			if containers, err := sources.Containers.ListContainers(ctx); err == nil {
				all = append(all, containers...)
			}
		}
		return all
	}

	if !strings.Contains(partial, ":") {
		return suggestDomainPartial(ctx, partial, sources)
	}

	return suggestPathPartial(ctx, partial, sources)
}

// suggestDomainPartial completes the pre-colon domain portion: a bare
// container/context name, or a "<context>/<namespace>" or
// "<context>/<namespace>/<pod>" prefix.
func suggestDomainPartial(ctx context.Context, partial string, sources Sources) []string {
	if !strings.Contains(partial, "/") {
		var suggestions []string
		if sources.Containers != nil {
			if containers, err := sources.Containers.ListContainers(ctx); err == nil {
				for _, c := range containers {
					if strings.HasPrefix(c, partial) {
						suggestions = append(suggestions, c+":")
					}
				}
			}
		}
		if sources.KubeContexts != nil {
			for _, c := range sources.KubeContexts.ListContexts() {
				if strings.HasPrefix(c, partial) {
					suggestions = append(suggestions, c+"/")
				}
			}
		}
		return suggestions
	}

	parts := strings.Split(partial, "/")
	switch len(parts) {
	case 2:
		context, nsPrefix := parts[0], parts[1]
		if sources.KubeNamespaces == nil {
			return nil
		}
		namespaces, err := sources.KubeNamespaces.ListNamespaces(ctx)
		if err != nil {
			return nil
		}
		var suggestions []string
		for _, ns := range namespaces {
			if strings.HasPrefix(ns, nsPrefix) {
				suggestions = append(suggestions, context+"/"+ns+"/")
			}
		}
		return suggestions

	case 3:
		context, ns, podPrefix := parts[0], parts[1], parts[2]
		if sources.KubePods == nil {
			return nil
		}
		pods, err := sources.KubePods.ListPods(ctx)
		if err != nil {
			return nil
		}
		var suggestions []string
		for _, pod := range pods {
			if strings.HasPrefix(pod, podPrefix) {
				suggestions = append(suggestions, context+"/"+ns+"/"+pod+":")
			}
		}
		return suggestions
	}

	return nil
}

// suggestPathPartial completes the post-colon path portion against a
// resolved Docker container or Kubernetes pod's filesystem.
func suggestPathPartial(ctx context.Context, partial string, sources Sources) []string {
	idx := strings.LastIndex(partial, ":")
	domain, path := partial[:idx], partial[idx+1:]

	dir, filePrefix := path, ""
	if !strings.HasSuffix(path, "/") && len(path) > 0 {
		slash := strings.LastIndex(path, "/")
		if slash < 0 {
			dir, filePrefix = "", path
		} else {
			dir, filePrefix = path[:slash+1], path[slash+1:]
		}
	}

	if !strings.Contains(domain, "/") {
		if sources.ContainerFiles == nil {
			return nil
		}
		files, err := sources.ContainerFiles.ListFiles(ctx, domain, dir)
		if err != nil {
			return nil
		}
		return matchFiles(dir, filePrefix, files)
	}

	parts := strings.Split(domain, "/")
	if len(parts) != 3 || sources.KubeFiles == nil {
		return nil
	}
	files, err := sources.KubeFiles.ListFiles(ctx, parts[2], dir)
	if err != nil {
		return nil
	}
	return matchFiles(dir, filePrefix, files)
}

// matchFiles filters files to those matching filePrefix, formatting each as
// a full path suggestion under dir.
func matchFiles(dir, filePrefix string, files []string) []string {
	var suggestions []string
	for _, f := range files {
		if strings.HasPrefix(f, filePrefix) {
			suggestions = append(suggestions, dir+f)
		}
	}
	return suggestions
}
