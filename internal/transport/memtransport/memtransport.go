// internal/transport/memtransport/memtransport.go
// In-memory loopback Transport for tests; the internal/framer and
// internal/protocol tests use their own fakes instead. The teacher has no device-in-the-loop test harness either — its
// protocol-adjacent tests (controller_test.go-style) exercise packet
// builders and parsers against canned byte slices rather than a live USB
// device — so flashcore's equivalent is a fake Transport backed by two
// byte-queues instead of a real endpoint.
package memtransport

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"flashcore/internal/flasherr"
)

// Pair returns two connected MemTransports: writes to one become reads on
// the other, like a pipe with two independently-closable ends.
func Pair() (*MemTransport, *MemTransport) {
	a := &MemTransport{}
	b := &MemTransport{}
	a.peerIn, b.peerIn = &b.in, &a.in
	return a, b
}

// MemTransport is a Transport backed by an in-memory byte queue.
type MemTransport struct {
	mu     sync.Mutex
	cond   *sync.Cond
	in     bytes.Buffer
	peerIn *bytes.Buffer
	closed bool
}

func (m *MemTransport) ensureCond() {
	if m.cond == nil {
		m.cond = sync.NewCond(&m.mu)
	}
}

// Feed injects bytes directly into m's read queue, for tests that want to
// script a device's responses without a peer transport.
func (m *MemTransport) Feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCond()
	m.in.Write(p)
	m.cond.Broadcast()
}

// Written returns a copy of whatever has been written into m's peer (i.e.
// what a test wants to assert "the protocol sent this"); the bytes are left
// in the peer's queue.
func (m *MemTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peerIn == nil {
		return nil
	}
	// peerIn belongs to the other transport; reading it here is only safe
	// because tests calling Written() own both ends and are not racing a
	// live reader against it.
	out := append([]byte(nil), m.peerIn.Bytes()...)
	return out
}

func (m *MemTransport) ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCond()

	deadline := time.Now().Add(timeout)
	for m.in.Len() < n {
		if m.closed {
			return nil, flasherr.NewTransportError(flasherr.TransportDisconnected, io.EOF)
		}
		if time.Now().After(deadline) {
			return nil, flasherr.NewTransportError(flasherr.TransportTimeout, nil)
		}
		waitUntil(m.cond, deadline)
	}
	out := make([]byte, n)
	copy(out, m.in.Bytes()[:n])
	m.in.Next(n)
	return out, nil
}

func (m *MemTransport) ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCond()

	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.Index(m.in.Bytes(), terminator); i >= 0 {
			end := i + len(terminator)
			out := make([]byte, end)
			copy(out, m.in.Bytes()[:end])
			m.in.Next(end)
			return out, nil
		}
		if m.in.Len() > max {
			return nil, flasherr.NewTransportError(flasherr.TransportIO, nil)
		}
		if m.closed {
			return nil, flasherr.NewTransportError(flasherr.TransportDisconnected, io.EOF)
		}
		if time.Now().After(deadline) {
			return nil, flasherr.NewTransportError(flasherr.TransportTimeout, nil)
		}
		waitUntil(m.cond, deadline)
	}
}

func (m *MemTransport) WriteAll(ctx context.Context, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.peerIn == nil {
		return flasherr.NewTransportError(flasherr.TransportDisconnected, io.ErrClosedPipe)
	}
	m.peerIn.Write(p)
	return nil
}

func (m *MemTransport) Flush() error { return nil }

func (m *MemTransport) DrainInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in.Reset()
	return nil
}

func (m *MemTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.ensureCond()
	m.cond.Broadcast()
	return nil
}

// waitUntil blocks on cond until it is signalled or deadline passes. sync.Cond
// has no timed wait, so a helper goroutine wakes it at the deadline.
func waitUntil(cond *sync.Cond, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
