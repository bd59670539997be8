// Package stdio adapts the current process's standard input and standard
// output streams to the endpoint.Endpoint contract, used for the "-" form of
// the endpoint string grammar.
package stdio

import (
	"io"
	"os"

	"github.com/portrelay/portrelay/pkg/endpoint"
)

// stdioEndpoint bridges os.Stdin/os.Stdout as a single endpoint.
type stdioEndpoint struct{}

// New creates an endpoint backed by the process's standard input and
// standard output.
func New() endpoint.Endpoint {
	return stdioEndpoint{}
}

// Split implements endpoint.Endpoint.Split.
func (stdioEndpoint) Split() (io.ReadCloser, io.WriteCloser) {
	return os.Stdin, os.Stdout
}
