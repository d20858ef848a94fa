package sse

import (
	"fmt"
	"io"
	"strings"
)

// Writer emits SSE events onto an io.Writer, one frame at a time.
// When the destination backs an io.Pipe connected to an HTTP response body,
// each WriteEvent blocks until the frame reaches the transport, so no
// multi-frame buffering occurs between the relay and the client.
type Writer struct {
	dest io.Writer
}

// NewWriter returns a Writer that frames events onto dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteEvent writes a single SSE frame: an optional "event:" line, one
// "data:" line per newline-separated segment of ev.Data, and the blank
// line terminator.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder

	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	for _, segment := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", segment)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w.dest, b.String())
	return err
}
