// Package must wraps cleanup operations whose errors can't meaningfully
// change a caller's control flow but are still worth logging, following the
// same pattern as the teacher's own must package.
package must

import (
	"io"

	"github.com/portrelay/portrelay/pkg/logging"
)

// Close closes c, logging any error as a warning rather than propagating it.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// CloseWrite half-closes the write side of cw, logging any error as a
// warning rather than propagating it.
func CloseWrite(cw interface{ CloseWrite() error }, logger *logging.Logger) {
	if err := cw.CloseWrite(); err != nil {
		logger.Warnf("unable to close write side: %s", err.Error())
	}
}
