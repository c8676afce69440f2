package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
)

// errBodyRead wraps failures reading the client body while it is streamed to
// the origin.
var errBodyRead = errors.New("read client body")

// isTimeout reports whether err was caused by an expired deadline.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isClosed reports errors caused by a peer or local close, which are part of
// normal tunnel teardown.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}

// bodyReader records the first error returned by the client body so a
// failed upload can be told apart from a failed origin.
type bodyReader struct {
	rc io.ReadCloser

	mu  sync.Mutex
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		b.mu.Lock()
		if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
	}
	return n, err
}

func (b *bodyReader) Close() error {
	return b.rc.Close()
}

func (b *bodyReader) failure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
