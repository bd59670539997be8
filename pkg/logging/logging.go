package logging

import (
	"io"
	"os"
)

// defaultWriter returns the destination used by RootLogger.
func defaultWriter() io.Writer {
	return os.Stderr
}
