// Package pathspec parses the endpoint string grammar accepted by the CLI:
// Kubernetes (`<context>/<namespace>/<pod>:<PORT>` or `:<PATH>`), Docker
// (`<container>:<PORT>` or `<container>:<PATH>`), local TCP
// (`<host>:<PORT>`, with an empty, "localhost", or dotted-quad IPv4 host),
// and stdio (`-`). Grounded on original_source's core/cli/path_parser.rs and
// core/cli.rs's str_to_forward_point, reworked as a small recursive-descent
// parser returning a tagged Go struct instead of an enum of partial/full
// parts.
package pathspec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags which execution domain an endpoint string names.
type Kind int

const (
	KindLocal Kind = iota
	KindStdio
	KindDocker
	KindKube
)

// Spec is a parsed endpoint string. For KindDocker, Container names the
// target; for KindKube, Context/Namespace/Pod do. Port is set for
// port-forward targets, Path for copy targets (exactly one of the two is
// nonzero, depending on which command parsed the string).
type Spec struct {
	Kind Kind

	Host string // KindLocal only

	Container string // KindDocker only

	Context   string // KindKube only
	Namespace string // KindKube only
	Pod       string // KindKube only

	Port uint16
	Path string
}

// ParseForward parses an endpoint string in port-forward position, per
// spec.md §6: "<host>:<PORT>", "<container>:<PORT>",
// "<context>/<namespace>/<pod>:<PORT>", or "-" for stdio.
func ParseForward(raw string) (Spec, error) {
	if raw == "-" {
		return Spec{Kind: KindStdio}, nil
	}

	domain, rest, err := splitDomainAndSuffix(raw)
	if err != nil {
		return Spec{}, err
	}

	port, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return Spec{}, errors.Wrapf(err, "invalid port in %q", raw)
	}

	spec := domain
	spec.Port = uint16(port)
	return spec, nil
}

// ParseCopyPath parses an endpoint string in copy-path position, per
// spec.md §6: a local filesystem path, "<container>:<PATH>", or
// "<context>/<namespace>/<pod>:<PATH>".
func ParseCopyPath(raw string) (Spec, error) {
	if isLocalFilesystemPath(raw) {
		return Spec{Kind: KindLocal, Path: raw}, nil
	}

	domain, path, err := splitDomainAndSuffix(raw)
	if err != nil {
		return Spec{}, err
	}
	domain.Path = path
	return domain, nil
}

// isLocalFilesystemPath reports whether raw looks like a local path rather
// than a remote endpoint string, mirroring path_parser.rs's
// parse_path_types leading-character check.
func isLocalFilesystemPath(raw string) bool {
	return strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "~")
}

// splitDomainAndSuffix splits raw at its last colon into a domain
// descriptor (container, or context/namespace/pod, or local host) and the
// trailing suffix (port digits or a path).
func splitDomainAndSuffix(raw string) (Spec, string, error) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return Spec{}, "", errors.Errorf("endpoint %q is missing a ':'", raw)
	}
	left, suffix := raw[:idx], raw[idx+1:]

	if !strings.Contains(left, "/") {
		if isLocalHost(left) {
			return Spec{Kind: KindLocal, Host: normalizeHost(left)}, suffix, nil
		}
		return Spec{Kind: KindDocker, Container: left}, suffix, nil
	}

	parts := strings.Split(left, "/")
	if len(parts) != 3 {
		return Spec{}, "", errors.Errorf("endpoint %q has a malformed <context>/<namespace>/<pod> prefix", raw)
	}
	return Spec{Kind: KindKube, Context: parts[0], Namespace: parts[1], Pod: parts[2]}, suffix, nil
}

// isLocalHost reports whether left names a local TCP host rather than a
// Docker container, mirroring str_to_forward_point's three checks: empty,
// "localhost", or a dotted-quad IPv4 address (recognized by its dot count,
// same as the original, rather than a full address parse).
func isLocalHost(left string) bool {
	return left == "" || left == "localhost" || strings.Count(left, ".") == 3
}

// normalizeHost maps the empty string and "localhost" to 127.0.0.1, per
// spec.md §6.
func normalizeHost(host string) string {
	if host == "" || host == "localhost" {
		return "127.0.0.1"
	}
	return host
}
