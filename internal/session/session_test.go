package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
)

type fakeTransport struct {
	closed bool
}

func (f *fakeTransport) ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	return make([]byte, n), nil
}
func (f *fakeTransport) ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error) {
	return nil, nil
}
func (f *fakeTransport) WriteAll(ctx context.Context, p []byte) error { return nil }
func (f *fakeTransport) Flush() error                                 { return nil }
func (f *fakeTransport) DrainInput() error                            { return nil }
func (f *fakeTransport) Close() error                                 { f.closed = true; return nil }

func readyFakeSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	s := New(events.NewSink(32), nil)
	tr := &fakeTransport{}
	if err := s.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Authenticated(nil); err != nil {
		t.Fatalf("Authenticated: %v", err)
	}
	if err := s.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	return s, tr
}

func TestLifecycleHappyPath(t *testing.T) {
	s, tr := readyFakeSession(t)
	if s.State() != StateReady {
		t.Fatalf("expected Ready, got %s", s.State())
	}
	err := s.Run(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected back to Ready after op, got %s", s.State())
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if s.State() != StateTerminated {
		t.Fatalf("expected Terminated, got %s", s.State())
	}
	if !tr.closed {
		t.Fatalf("expected transport closed")
	}
}

func TestBusyRejectsSecondOp(t *testing.T) {
	s, _ := readyFakeSession(t)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.Run(context.Background(), func(ctx context.Context) error { return nil })
	var busy *flasherr.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected BusyError, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
}

func TestRunFailureTransitionsToError(t *testing.T) {
	s, _ := readyFakeSession(t)
	wantErr := errors.New("boom")
	err := s.Run(context.Background(), func(ctx context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if s.State() != StateError {
		t.Fatalf("expected Error state, got %s", s.State())
	}
}

func TestCancelPropagatesToRunningOp(t *testing.T) {
	s, _ := readyFakeSession(t)
	started := make(chan struct{})
	var opErr error
	done := make(chan struct{})
	go func() {
		opErr = s.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return flasherr.NewCancelledError(42)
		})
		close(done)
	}()
	<-started
	s.Cancel()
	<-done
	var cErr *flasherr.CancelledError
	if !errors.As(opErr, &cErr) || cErr.AtByte != 42 {
		t.Fatalf("expected CancelledError at byte 42, got %v", opErr)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s, _ := readyFakeSession(t)
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect should be a no-op, got: %v", err)
	}
}

func TestDisconnectCallsShutdown(t *testing.T) {
	s := New(events.NewSink(32), nil)
	tr := &fakeTransport{}
	if err := s.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	called := false
	if err := s.Authenticated(func(ctx context.Context) error { called = true; return nil }); err != nil {
		t.Fatalf("Authenticated: %v", err)
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !called {
		t.Fatalf("expected shutdown hook invoked")
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	s := New(events.NewSink(32), nil)
	if err := s.Ready(); err == nil {
		t.Fatalf("expected error transitioning Idle -> Ready directly")
	}
}
