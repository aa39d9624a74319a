package ldif

import (
	"bufio"
	"io"
	"strings"
)

// Writer emits LDIF change records. Comments are written at infinite wrap
// width: one input line stays one output line regardless of length.
type Writer struct {
	w           *bufio.Writer
	wroteHeader bool
}

// NewWriter returns a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteVersionHeader writes "version: 1" followed by a blank line. Repeated
// calls after the first are no-ops.
func (w *Writer) WriteVersionHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	_, err := w.w.WriteString("version: 1\n\n")
	return err
}

// WriteComment writes each line of comment prefixed with "# ".
func (w *Writer) WriteComment(comment string) error {
	for _, line := range strings.Split(comment, "\n") {
		if _, err := w.w.WriteString("# " + line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteRecord writes a change record followed by a blank line.
func (w *Writer) WriteRecord(rec Record) error {
	return w.WriteLines(rec.Lines())
}

// WriteLines writes raw LDIF lines followed by a blank line.
func (w *Writer) WriteLines(lines []string) error {
	for _, line := range lines {
		if _, err := w.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	_, err := w.w.WriteString("\n")
	return err
}

// Flush forces buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
