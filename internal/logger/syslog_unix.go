//go:build !windows

package logger

import (
	"io"
	"log/syslog"
)

func newSysLog(tag string) (io.WriteCloser, error) {
	return syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
}
