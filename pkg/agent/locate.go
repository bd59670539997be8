package agent

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BinaryName is the base name of the agent executable this module ships
// alongside the host binary.
const BinaryName = "portrelay-agent-linux-amd64"

// Locate finds the agent binary to install into a container or pod: the file
// named by the PORTRELAY_AGENT_PATH environment variable if it exists,
// otherwise BinaryName beside the current executable, mirroring (in
// simplified form) the teacher's pkg/agent.ExecutableForPlatform search
// over the directory containing the running binary.
func Locate() (string, error) {
	if override := os.Getenv("PORTRELAY_AGENT_PATH"); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
	}

	executable, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(executable), BinaryName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.Errorf(
		"unable to locate %s beside the portrelay executable or via PORTRELAY_AGENT_PATH",
		BinaryName,
	)
}

// Open opens the located agent binary for reading, ready to stream into a
// container/pod install exec.
func Open() (*os.File, error) {
	path, err := Locate()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open agent binary")
	}
	return file, nil
}
