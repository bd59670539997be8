package pathspec

import (
	"context"
	"testing"
)

func TestParseForwardStdio(t *testing.T) {
	spec, err := ParseForward("-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindStdio {
		t.Fatalf("expected KindStdio, got %v", spec.Kind)
	}
}

func TestParseForwardLocal(t *testing.T) {
	cases := map[string]string{
		":8080":            "127.0.0.1",
		"localhost:8080":   "127.0.0.1",
		"127.0.0.1:9000":   "127.0.0.1",
		"10.0.0.5:9000":    "10.0.0.5",
	}
	for raw, wantHost := range cases {
		spec, err := ParseForward(raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
		if spec.Kind != KindLocal {
			t.Fatalf("%q: expected KindLocal, got %v", raw, spec.Kind)
		}
		if spec.Host != wantHost {
			t.Fatalf("%q: expected host %q, got %q", raw, wantHost, spec.Host)
		}
	}
}

// TestParseForwardSpecExampleE1 guards spec.md's own worked example (E1):
// forwarding ":7002" to destination "127.0.0.1:7001", both unbracketed.
func TestParseForwardSpecExampleE1(t *testing.T) {
	origin, err := ParseForward(":7002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if origin.Kind != KindLocal || origin.Host != "127.0.0.1" || origin.Port != 7002 {
		t.Fatalf("unexpected origin spec: %+v", origin)
	}

	destination, err := ParseForward("127.0.0.1:7001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if destination.Kind != KindLocal || destination.Host != "127.0.0.1" || destination.Port != 7001 {
		t.Fatalf("unexpected destination spec: %+v", destination)
	}
}

func TestParseForwardDocker(t *testing.T) {
	spec, err := ParseForward("my-container:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindDocker {
		t.Fatalf("expected KindDocker, got %v", spec.Kind)
	}
	if spec.Container != "my-container" {
		t.Fatalf("expected container %q, got %q", "my-container", spec.Container)
	}
	if spec.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", spec.Port)
	}
}

// TestParseForwardDockerHostnameNotDottedQuad confirms a bare hostname
// lacking the three dots of an IPv4 address still routes to Docker, even
// though it resembles a network address.
func TestParseForwardDockerHostnameNotDottedQuad(t *testing.T) {
	spec, err := ParseForward("example.com:9000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindDocker || spec.Container != "example.com" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestParseForwardKube(t *testing.T) {
	spec, err := ParseForward("prod/default/web-0:3000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindKube {
		t.Fatalf("expected KindKube, got %v", spec.Kind)
	}
	if spec.Context != "prod" || spec.Namespace != "default" || spec.Pod != "web-0" {
		t.Fatalf("unexpected kube fields: %+v", spec)
	}
	if spec.Port != 3000 {
		t.Fatalf("expected port 3000, got %d", spec.Port)
	}
}

func TestParseForwardRejectsMissingColon(t *testing.T) {
	if _, err := ParseForward("no-colon-here"); err == nil {
		t.Fatal("expected an error for a string with no ':'")
	}
}

func TestParseCopyPathLocal(t *testing.T) {
	spec, err := ParseCopyPath("/var/log/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindLocal || spec.Path != "/var/log/app" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestParseCopyPathDocker(t *testing.T) {
	spec, err := ParseCopyPath("my-container:/var/log/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindDocker || spec.Container != "my-container" || spec.Path != "/var/log/app" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestParseCopyPathKube(t *testing.T) {
	spec, err := ParseCopyPath("prod/default/web-0:/data/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != KindKube || spec.Context != "prod" || spec.Namespace != "default" || spec.Pod != "web-0" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.Path != "/data/" {
		t.Fatalf("expected path %q, got %q", "/data/", spec.Path)
	}
}

type fakeContainerLister struct {
	names []string
}

func (f fakeContainerLister) ListContainers(ctx context.Context) ([]string, error) {
	return f.names, nil
}

type fakeKubeContexts struct {
	names []string
}

func (f fakeKubeContexts) ListContexts() []string { return f.names }

func TestSuggestEmptyPartialListsAll(t *testing.T) {
	sources := Sources{
		Containers:   fakeContainerLister{names: []string{"web", "db"}},
		KubeContexts: fakeKubeContexts{names: []string{"prod", "staging"}},
	}
	got := Suggest(context.Background(), "", sources)
	want := map[string]bool{"web": true, "db": true, "prod": true, "staging": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %v", len(want), got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected suggestion %q", s)
		}
	}
}

func TestSuggestContainerPrefix(t *testing.T) {
	sources := Sources{
		Containers: fakeContainerLister{names: []string{"web-1", "web-2", "db-1"}},
	}
	got := Suggest(context.Background(), "web", sources)
	want := map[string]bool{"web-1:": true, "web-2:": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %v", len(want), got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected suggestion %q", s)
		}
	}
}

func TestSuggestKubeNamespacePrefix(t *testing.T) {
	sources := Sources{
		KubeNamespaces: fakeNamespaceLister{names: []string{"default", "dev", "kube-system"}},
	}
	got := Suggest(context.Background(), "prod/de", sources)
	want := map[string]bool{"prod/default/": true, "prod/dev/": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %v", len(want), got)
	}
}

type fakeNamespaceLister struct {
	names []string
}

func (f fakeNamespaceLister) ListNamespaces(ctx context.Context) ([]string, error) {
	return f.names, nil
}
