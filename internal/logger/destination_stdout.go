package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	structured bool
	stdout     io.Writer

	useColor bool
	buf      bytes.Buffer
}

func newDestionationStdout(structured bool, stdout io.Writer) destination {
	useColor := false
	if f, ok := stdout.(*os.File); ok {
		useColor = term.IsTerminal(int(f.Fd()))
	}

	return &destinationStdout{
		structured: structured,
		stdout:     stdout,
		useColor:   useColor,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	writeEntry(&d.buf, d.structured, d.useColor, t, level, format, args)
	d.stdout.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
