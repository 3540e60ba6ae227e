package test

import "github.com/bluenviron/mediatrim/internal/logger"

// LoggerFunc is a function that implements logger.Writer.
type LoggerFunc func(level logger.Level, format string, args ...interface{})

// Log implements logger.Writer.
func (f LoggerFunc) Log(level logger.Level, format string, args ...interface{}) {
	f(level, format, args...)
}

// NilLogger discards everything.
var NilLogger logger.Writer = LoggerFunc(func(logger.Level, string, ...interface{}) {})

// Logger returns a logger that forwards entries to cb.
func Logger(cb func(logger.Level, string, ...interface{})) logger.Writer {
	return LoggerFunc(cb)
}
