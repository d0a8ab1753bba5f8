// Package applog provides a small leveled logger with colored level tags,
// used by the CLI for its status, warning and error lines.
package applog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mitchellh/colorstring"
)

// Logger renders status/warn/error lines to an underlying writer.
type Logger struct {
	out io.Writer
}

// New returns a Logger writing to os.Stderr.
func New() *Logger {
	return &Logger{out: os.Stderr}
}

// NewWithWriter returns a Logger writing to w, for tests and embedding.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{out: w}
}

func (l *Logger) line(tag, msg string, args []any) {
	formatted := fmt.Sprintf(msg, args...)
	template := fmt.Sprintf("%s [%s] %s", tag, time.Now().Format("15:04:05"), formatted)
	colorstring.Fprintln(l.out, template)
}

// Info logs at the informational level, rendered in green.
func (l *Logger) Info(msg string, args ...any) {
	l.line("[green]INFO[reset]", msg, args)
}

// Warn logs at the warning level, rendered in yellow.
func (l *Logger) Warn(msg string, args ...any) {
	l.line("[yellow]WARN[reset]", msg, args)
}

// Error logs at the error level, rendered in red.
func (l *Logger) Error(msg string, args ...any) {
	l.line("[red]ERROR[reset]", msg, args)
}
