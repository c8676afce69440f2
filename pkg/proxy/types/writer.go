package types

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
)

// ErrHeadersSent is returned when a response can no longer be started.
var ErrHeadersSent = errors.New("response headers already sent")

// ResponseWriter tracks the state of a response so the forwarder can tell
// whether a middleware already answered.
type ResponseWriter struct {
	http.ResponseWriter

	mu          sync.Mutex
	status      int
	headersSent bool
	ended       bool
	written     int64
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader sends the status line and headers once.
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.mu.Lock()
	if rw.headersSent {
		rw.mu.Unlock()
		return
	}
	rw.status = code
	rw.headersSent = true
	rw.mu.Unlock()

	rw.ResponseWriter.WriteHeader(code)
}

// Write sends body bytes, sending default headers first if needed.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	sent := rw.headersSent
	rw.mu.Unlock()
	if !sent {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)

	rw.mu.Lock()
	rw.written += int64(n)
	rw.mu.Unlock()
	return n, err
}

// End marks the response as complete. The default handlers will not write
// to it afterwards.
func (rw *ResponseWriter) End() {
	rw.mu.Lock()
	sent := rw.headersSent
	rw.ended = true
	rw.mu.Unlock()
	if !sent {
		rw.WriteHeader(rw.Status())
	}
}

// HeadersSent reports whether the status line was written.
func (rw *ResponseWriter) HeadersSent() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.headersSent
}

// Ended reports whether End was called.
func (rw *ResponseWriter) Ended() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.ended
}

// Status returns the status code sent, or 200 if none was sent yet.
func (rw *ResponseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

// BytesWritten returns the number of body bytes written.
func (rw *ResponseWriter) BytesWritten() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.written
}

// Flush implements http.Flusher.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
