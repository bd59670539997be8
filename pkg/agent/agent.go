// Package agent defines the contract shared between the host and the
// "agent" binary the host installs into a container or pod: well-known
// paths, the kill-file poll interval, and the remote invocation shape. The
// agent binary itself lives in cmd/portrelay-agent; this package holds only
// the constants and the poll-loop logic both sides need to agree on.
package agent

import (
	"os"
	"strconv"
	"time"
)

const (
	// Path is the well-known location the host installs the agent binary
	// to inside a container or pod.
	Path = "/tmp/rs-agent"
	// KillPath is the well-known location whose existence tells a
	// listen-mode agent to exit. The agent removes the file itself before
	// exiting.
	KillPath = "/tmp/rs-agent.kill"
	// KillPollInterval is how often a listen-mode agent checks for
	// KillPath.
	KillPollInterval = time.Second
)

// InvocationArgs returns the argv the host should exec inside the
// container/pod to start the agent: "<Path> agent -p <port>" for dial mode,
// or "<Path> agent -p <port> -l" for listen mode. argv[0] is the installed
// absolute path rather than a bare "agent", since the container/pod's $PATH
// has no reason to include Path's directory; "agent" itself is a second,
// separate token, which the agent binary (cmd/portrelay-agent) skips before
// parsing its flags.
func InvocationArgs(port uint16, listen bool) []string {
	args := []string{Path, "agent", "-p", strconv.Itoa(int(port))}
	if listen {
		args = append(args, "-l")
	}
	return args
}

// KillRequested reports whether the kill file is present, removing it if so
// (per the agent's contract: the kill file is consumed on observation).
func KillRequested() bool {
	if _, err := os.Stat(KillPath); err != nil {
		return false
	}
	os.Remove(KillPath)
	return true
}
