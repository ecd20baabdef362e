// Package logging wraps the standard library logger with leveled helpers.
//
// Latte Album does not pull in a structured-logging dependency — none of
// the example repos at this scale do either — so this stays a thin layer
// over log.Logger rather than a new abstraction.
package logging

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	std.Output(2, "INFO  "+fmt.Sprintf(format, args...))
}

// Warn logs a warning-level message.
func Warn(format string, args ...interface{}) {
	std.Output(2, "WARN  "+fmt.Sprintf(format, args...))
}

// Error logs an error-level message.
func Error(format string, args ...interface{}) {
	std.Output(2, "ERROR "+fmt.Sprintf(format, args...))
}

// Fatal logs an error and exits the process. Reserved for startup failures
// (bad config, database open failure, migration failure) per the exit-code
// contract in spec.md §6.
func Fatal(format string, args ...interface{}) {
	std.Output(2, "FATAL "+fmt.Sprintf(format, args...))
	os.Exit(1)
}
