//go:build windows

package logger

import (
	"fmt"
	"io"
)

func newSysLog(string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("syslog is not available on windows")
}
