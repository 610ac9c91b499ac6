package vni

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// packetReader - bounded ReadPacket over a blocking packet source.
// A single goroutine calls read; packets queue in a small channel.
// A failed read is reported once and reading goes on, only a closed
// device ends the goroutine and keeps its error.
type packetReader struct {
	ch      chan packetResult
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
	err     error
}

type packetResult struct {
	packet []byte
	err    error
}

func newPacketReader(read func() ([]byte, error), timeout time.Duration) *packetReader {
	r := &packetReader{
		ch:      make(chan packetResult, 16),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go r.loop(read)
	return r
}

func (r *packetReader) loop(read func() ([]byte, error)) {
	for {
		packet, err := read()
		if err == nil && len(packet) == 0 {
			continue
		}
		select {
		case r.ch <- packetResult{packet, err}:
		case <-r.done:
			return
		}
		if isClosed(err) {
			return
		}
	}
}

// isClosed - the device is gone, no later read can succeed
func isClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF)
}

// ReadPacket - (nil, nil) when nothing arrives within the timeout
func (r *packetReader) ReadPacket() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case res := <-r.ch:
		if isClosed(res.err) {
			r.err = res.err
		}
		return res.packet, res.err
	case <-timer.C:
		return nil, nil
	case <-r.done:
		return nil, ErrClosed
	}
}

func (r *packetReader) stop() {
	r.once.Do(func() { close(r.done) })
}

// fileReader - read one packet per Read from f, with deadlines when f supports them
func fileReader(f io.Reader, bufSize int, timeout time.Duration) func() ([]byte, error) {
	type deadliner interface {
		SetReadDeadline(t time.Time) error
	}
	d, _ := f.(deadliner)
	if d != nil && d.SetReadDeadline(time.Time{}) != nil {
		d = nil
	}
	return func() ([]byte, error) {
		buf := make([]byte, bufSize)
		if d != nil {
			if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return nil, err
			}
		}
		n, err := f.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, nil
			}
			return nil, err
		}
		return buf[:n], nil
	}
}
