// internal/session/session.go
// Session orchestrator (spec.md §4.11, §5): owns a single transport end to
// end, drives it through Idle -> Connecting -> Authenticated -> Ready ->
// Busy -> Ready -> Terminated, and rejects a second concurrent operation
// with Busy rather than interleaving protocol traffic on one wire.
// Grounded on the teacher's Device struct (controller.go): a single
// mutable struct guarded by one sync.RWMutex, generalized from Device's
// ad-hoc isOperational/useUSB/useKernel boolean flags into an explicit
// state enum so every legal transition is named and every illegal one is
// rejected at the door.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/transport"
)

// State is a node in the session lifecycle graph (spec.md §4.11).
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateReady
	StateBusy
	StateTerminated
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticated:
		return "Authenticated"
	case StateReady:
		return "Ready"
	case StateBusy:
		return "Busy"
	case StateTerminated:
		return "Terminated"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Shutdown is the protocol-specific best-effort shutdown a session issues
// on Disconnect before closing the transport (spec.md §4.11). Each
// protocol's driver (Firehose.Power, XFlash.Shutdown, SprdBootROM.Reset,
// ...) implements this.
type Shutdown func(ctx context.Context) error

// disconnectTimeout bounds the best-effort protocol shutdown spec.md §4.11
// calls for ("short timeout") so a wedged device never blocks Disconnect
// indefinitely.
const disconnectTimeout = 2 * time.Second

// Session is a single orchestrated device connection. The zero value is
// not usable; construct with New. A Session is not safe for concurrent
// Connect/Disconnect from multiple goroutines beyond the Busy-rejection
// this type itself provides — spec.md §5's "single active session per
// transport" means callers own exactly one Session per physical device.
type Session struct {
	mu    sync.Mutex
	state State

	transport transport.Transport
	shutdown  Shutdown
	cancel    context.CancelFunc

	sink events.Sink
	log  *flashlog.Logger
}

// New constructs an Idle session. sink receives every StateChanged/Log/
// Progress/Completed/Failed event this session emits (spec.md §6); it may
// be nil to discard events.
func New(sink events.Sink, log *flashlog.Logger) *Session {
	return &Session{state: StateIdle, sink: sink, log: log}
}

// State reports the session's current lifecycle node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.state = st
	s.sink.Emit(events.StateChanged(st.String()))
	if s.log != nil {
		s.log.Infof("session: -> %s", st)
	}
}

// transition validates from->to is legal and atomically applies it,
// matching §5's "advance to next state atomically, then suspend" rule:
// callers must call transition before starting any suspending work, never
// after.
func (s *Session) transition(from []State, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := false
	for _, f := range from {
		if s.state == f {
			ok = true
			break
		}
	}
	if !ok {
		return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, 0, "session: illegal transition from "+s.state.String()+" to "+to.String())
	}
	s.setState(to)
	return nil
}

// Connect takes ownership of t, moving Idle -> Connecting. t is closed by
// a subsequent Disconnect regardless of what happens in between.
func (s *Session) Connect(ctx context.Context, t transport.Transport) error {
	if err := s.transition([]State{StateIdle}, StateConnecting); err != nil {
		return err
	}
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
	return nil
}

// Authenticated moves Connecting -> Authenticated once the caller's
// internal/auth.Strategy has returned true. shutdown is the protocol's
// best-effort Disconnect primitive, recorded now so Disconnect can call it
// from any later state.
func (s *Session) Authenticated(shutdown Shutdown) error {
	if err := s.transition([]State{StateConnecting}, StateAuthenticated); err != nil {
		return err
	}
	s.mu.Lock()
	s.shutdown = shutdown
	s.mu.Unlock()
	return nil
}

// Ready moves Authenticated -> Ready once the code-upload pipeline
// (internal/pipeline) has completed.
func (s *Session) Ready() error {
	return s.transition([]State{StateAuthenticated, StateBusy}, StateReady)
}

// Run executes fn as the session's single in-flight operation: Ready ->
// Busy -> Ready (or -> Error on fn's failure other than cancellation). A
// second call while already Busy is rejected immediately with
// *flasherr.BusyError without touching fn (spec.md §4.11: "a second
// request is rejected with Busy"). fn receives a context derived from ctx
// that Session.Cancel can cancel independently of the caller's ctx.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.transition([]State{StateReady}, StateBusy); err != nil {
		if s.State() == StateBusy {
			return &flasherr.BusyError{}
		}
		return err
	}

	opCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	err := fn(opCtx)
	cancel()

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()

	if err != nil {
		s.sink.Emit(events.Failed(err))
		var cErr *flasherr.CancelledError
		if errors.As(err, &cErr) {
			if rerr := s.Ready(); rerr != nil {
				return rerr
			}
			return err
		}
		s.mu.Lock()
		s.setState(StateError)
		s.mu.Unlock()
		return err
	}
	if rerr := s.Ready(); rerr != nil {
		return rerr
	}
	s.sink.Emit(events.Completed(nil))
	return nil
}

// Cancel cancels the currently in-flight Run, if any. Per spec.md §5,
// cancellation during a write does not roll back — the caller's fn is
// expected to stop sending, drain any pending ACK, and return
// *flasherr.CancelledError with the byte offset reached.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reconnect swaps the caller-supplied transport t in for the session's
// current one, for the one reconnect some vendors require mid-pipeline
// (Unisoc FDL1 -> FDL2, MTK BROM -> Preloader), without tearing down the
// Session value or changing its state. The old transport is closed after
// the swap so its OS handle is not leaked.
func (s *Session) Reconnect(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	old := s.transport
	s.transport = t
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Transport returns the session's current transport handle.
func (s *Session) Transport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Disconnect performs spec.md §4.11's shutdown sequence from any state:
// cancel any inflight op, issue the protocol-specific shutdown
// (best-effort, bounded by disconnectTimeout), then close the transport.
// Disconnect is idempotent — calling it on an already-Terminated session
// is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	shutdown := s.shutdown
	t := s.transport
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if shutdown != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, disconnectTimeout)
		if err := shutdown(shutdownCtx); err != nil && s.log != nil {
			s.log.Warnf("session: shutdown: %v", err)
		}
		cancelShutdown()
	}

	var closeErr error
	if t != nil {
		closeErr = t.Close()
	}

	s.mu.Lock()
	s.setState(StateTerminated)
	s.mu.Unlock()
	return closeErr
}
