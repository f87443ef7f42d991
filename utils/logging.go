package utils

import "log"

// Logger is the logging surface components depend on. *log.Logger satisfies
// it.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// Discard drops everything.
var Discard Logger = LoggerFunc(func(string, ...any) {})

// LoggerOr returns l, or the standard logger when l is nil.
func LoggerOr(l Logger) Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
