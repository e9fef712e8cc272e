// internal/events/events.go
// Structured event stream emitted by a session (spec.md §6). Grounded on the
// teacher's cmd/cli/main.go pattern of a producer goroutine feeding a single
// string channel that a bubbletea program drains with p.Send — generalized
// here from one string-typed channel to a closed set of tagged events so a
// caller (TUI, HTTP status server, plain CLI) can render each kind
// differently instead of string-parsing a log line.
package events

import "fmt"

// Kind tags which variant an Event carries.
type Kind int

const (
	KindLog Kind = iota
	KindProgress
	KindStateChanged
	KindCompleted
	KindFailed
)

// Event is a single emission from a session. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind

	// KindLog
	Message string

	// KindProgress — monotonically non-decreasing per spec.md §5.
	BytesDone  int64
	BytesTotal int64

	// KindStateChanged
	State string

	// KindCompleted
	Result any

	// KindFailed
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case KindLog:
		return e.Message
	case KindProgress:
		return fmt.Sprintf("progress %d/%d", e.BytesDone, e.BytesTotal)
	case KindStateChanged:
		return "state -> " + e.State
	case KindCompleted:
		return fmt.Sprintf("completed: %v", e.Result)
	case KindFailed:
		return fmt.Sprintf("failed: %v", e.Err)
	default:
		return "event"
	}
}

func Log(format string, args ...any) Event {
	return Event{Kind: KindLog, Message: fmt.Sprintf(format, args...)}
}

func Progress(done, total int64) Event {
	return Event{Kind: KindProgress, BytesDone: done, BytesTotal: total}
}

func StateChanged(state string) Event {
	return Event{Kind: KindStateChanged, State: state}
}

func Completed(result any) Event {
	return Event{Kind: KindCompleted, Result: result}
}

func Failed(err error) Event {
	return Event{Kind: KindFailed, Err: err}
}

// Sink is a single-producer/single-consumer channel of Events. A session
// owns the send side; the caller owns the receive side. Sink is buffered so
// a slow consumer never blocks a fast protocol round-trip mid-frame.
type Sink chan Event

// NewSink creates a Sink with the given buffer depth. A depth of 0 still
// works (unbuffered) but callers driving a UI should pick something like 64
// so bursts of Log events during a chunked write don't stall the producer.
func NewSink(depth int) Sink {
	return make(Sink, depth)
}

// Emit sends e on the sink, dropping it instead of blocking forever if the
// sink has no reader and its buffer is full — a session must never wedge a
// protocol round-trip waiting on a caller's UI to catch up.
func (s Sink) Emit(e Event) {
	if s == nil {
		return
	}
	select {
	case s <- e:
	default:
	}
}
