package pipeline

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives finished caption lines in emission order
type Sink interface {
	Emit(line string)
}

// WriterSink writes one line per emission, flushed immediately. A non-empty
// prefix (the batch result marker) is prepended with a separating space.
type WriterSink struct {
	w      io.Writer
	prefix string
	mu     sync.Mutex
}

// NewWriterSink creates a sink over w with an optional line prefix
func NewWriterSink(w io.Writer, prefix string) *WriterSink {
	return &WriterSink{w: w, prefix: prefix}
}

// Emit writes the line
func (s *WriterSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefix != "" {
		fmt.Fprintln(s.w, s.prefix, line)
		return
	}
	fmt.Fprintln(s.w, line)
}
