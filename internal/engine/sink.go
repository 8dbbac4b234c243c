package engine

import (
	"bytes"
	"fmt"
	"io"
)

// IOSink is the I/O sink collaborator (§6): two creation shapes (wrap an
// existing handle; an in-memory buffer) sharing one write/flush/content
// contract so render_file/render_data don't need to know which one they
// were handed.
type IOSink interface {
	Write(p []byte) (int, error)
	Printf(format string, args ...interface{}) error
	Vprintf(format string, args []interface{}) error
	Flush() error
	Content() (string, error)
	Detach() (string, error)
	Destroy() error
}

// bufferSink is the in-memory creation shape: content/detach return
// whatever has been written so far, and detach additionally clears the
// buffer so a second render into the same sink starts fresh.
type bufferSink struct {
	buf bytes.Buffer
}

// NewBufferSink creates an in-memory I/O sink (§6's "create an in-memory
// buffer" shape), suitable for render_data/render_file callers that want
// the rendered text back as a string rather than streamed to a handle.
func NewBufferSink() IOSink { return &bufferSink{} }

func (s *bufferSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *bufferSink) Printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(&s.buf, format, args...)
	return err
}

func (s *bufferSink) Vprintf(format string, args []interface{}) error {
	return s.Printf(format, args...)
}

func (s *bufferSink) Flush() error { return nil }

func (s *bufferSink) Content() (string, error) { return s.buf.String(), nil }

func (s *bufferSink) Detach() (string, error) {
	out := s.buf.String()
	s.buf.Reset()
	return out, nil
}

func (s *bufferSink) Destroy() error {
	s.buf.Reset()
	return nil
}

// handleSink is the "wrap an existing file handle" creation shape: writes
// go straight through to the wrapped io.Writer, flush delegates to it when
// it supports flushing, and content/detach are not meaningful for a handle
// the engine doesn't own the bytes of.
type handleSink struct {
	w io.Writer
}

// NewHandleSink wraps an already-open io.Writer (a file, a socket, stdout)
// as an I/O sink (§6's "wrap an existing file handle" shape).
func NewHandleSink(w io.Writer) IOSink { return &handleSink{w: w} }

func (s *handleSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *handleSink) Printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(s.w, format, args...)
	return err
}

func (s *handleSink) Vprintf(format string, args []interface{}) error {
	return s.Printf(format, args...)
}

func (s *handleSink) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *handleSink) Content() (string, error) {
	return "", fmt.Errorf("content() is not available on a wrapped handle sink")
}

func (s *handleSink) Detach() (string, error) {
	return "", fmt.Errorf("detach() is not available on a wrapped handle sink")
}

func (s *handleSink) Destroy() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
