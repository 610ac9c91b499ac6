package link

import (
	"io"
	"sync"
	"time"
)

// timeoutReader - gives a blocking reader a bounded Read.
// One goroutine owns the underlying Read; chunks it gets are handed over
// through ch and may be returned across several Read calls. Only a
// disconnect ends the goroutine, other errors are returned once.
type timeoutReader struct {
	ch      chan readResult
	timeout time.Duration
	pending []byte
	err     error
	done    chan struct{}
	once    sync.Once
}

type readResult struct {
	data []byte
	err  error
}

func newTimeoutReader(r io.Reader, timeout time.Duration, bufSize int) *timeoutReader {
	tr := &timeoutReader{
		ch:      make(chan readResult),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go tr.loop(r, bufSize)
	return tr
}

func (tr *timeoutReader) loop(r io.Reader, bufSize int) {
	for {
		buf := make([]byte, bufSize)
		n, err := r.Read(buf)
		select {
		case tr.ch <- readResult{buf[:n], err}:
		case <-tr.done:
			return
		}
		if IsDisconnect(err) {
			return
		}
	}
}

// Read - (0, nil) when nothing arrives within the timeout
func (tr *timeoutReader) Read(p []byte) (int, error) {
	if len(tr.pending) == 0 && tr.err == nil {
		timer := time.NewTimer(tr.timeout)
		defer timer.Stop()
		select {
		case res := <-tr.ch:
			tr.pending, tr.err = res.data, res.err
		case <-timer.C:
			return 0, nil
		case <-tr.done:
			return 0, io.ErrClosedPipe
		}
	}
	if len(tr.pending) > 0 {
		n := copy(p, tr.pending)
		tr.pending = tr.pending[n:]
		return n, nil
	}
	err := tr.err
	if !IsDisconnect(err) {
		// reported once, the reader goroutine is still running
		tr.err = nil
	}
	return 0, err
}

func (tr *timeoutReader) stop() {
	tr.once.Do(func() { close(tr.done) })
}
