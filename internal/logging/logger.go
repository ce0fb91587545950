// Package logging provides leveled stderr logging with secret redaction.
//
// Credential values must never appear in log output. Wrap anything
// sensitive in Secret before passing it to a format verb, or strip known
// values with Redact.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// level pairs a glyph with the ANSI color it is drawn in.
type level struct {
	glyph string
	color string
}

var (
	levelInfo  = level{glyph: "✓", color: "\033[32m"}
	levelWarn  = level{glyph: "⚠", color: "\033[33m"}
	levelError = level{glyph: "✗", color: "\033[31m"}
	levelDebug = level{glyph: "[DEBUG]", color: "\033[36m"}
)

// Logger writes leveled messages, to stderr by default.
type Logger struct {
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger. Debug messages are suppressed unless debug is true.
func New(debug, noColor bool) *Logger {
	return &Logger{
		out:     os.Stderr,
		debug:   debug,
		noColor: noColor,
	}
}

func (l *Logger) emit(lv level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s\n", lv.glyph, msg)
		return
	}
	fmt.Fprintf(l.out, "%s%s\033[0m %s\n", lv.color, lv.glyph, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(levelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit(levelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(levelError, format, args...)
}

// Debug logs a debug message when debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit(levelDebug, format, args...)
}

// Secret wraps a value that must be redacted when formatted.
type Secret string

// String always returns the redacted placeholder.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString redacts %#v formatting as well.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces occurrences of the given secret values in s.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // skip trivial values that would shred the message
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
