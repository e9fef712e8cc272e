// internal/transport/transport.go
// C1 — the full-duplex byte channel every framer/protocol state machine is
// built on (spec.md §4.1). Grounded on the teacher's USBDevice (SendPacket/
// ReadPacket/Close, claimInterface/releaseInterface) generalized from one
// concrete backend into an interface so Sahara/Firehose/Preloader/etc. never
// know whether they're talking to real USB, a serial port, or a network
// relay.
package transport

import (
	"context"
	"time"

	"flashcore/internal/flasherr"
)

// Transport is an opened full-duplex byte channel, owned by the session for
// its lifetime (spec.md §3's "Transport handle") and borrowed by framers and
// protocol state machines. Implementations must make Close idempotent and
// safe to call from a different goroutine than the one blocked in Read/
// Write (cancellation path, spec.md §5).
type Transport interface {
	// ReadExact blocks until exactly n bytes are read, timeout elapses, or
	// ctx is cancelled. A timeout is reported as *flasherr.TransportError
	// with Kind TransportTimeout — non-fatal, callers may retry per the
	// §7 propagation policy. Disconnected is fatal.
	ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error)

	// ReadUntil reads until terminator is seen as a suffix of the
	// accumulated buffer, max bytes are read without finding it (Overflow,
	// surfaced as a transport IO error), or timeout/ctx expires.
	ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error)

	// WriteAll writes every byte of p or returns a Disconnected error.
	WriteAll(ctx context.Context, p []byte) error

	// Flush pushes any buffered output and discards stale buffered input,
	// per the framer's needs between protocol phases.
	Flush() error

	// DrainInput discards any bytes currently available to read without
	// blocking, used after a NAK to resynchronize (spec.md §4.3 Firehose).
	DrainInput() error

	// Close releases the underlying OS handle. Safe to call more than
	// once; only the first call's error is meaningful.
	Close() error
}

// ControlTransport is an optional capability a Transport backend may
// implement in addition to the byte-stream primitives above: a raw USB
// control transfer, bypassing the bulk endpoints entirely. Only a real USB
// backend can satisfy it; a caller type-asserts for it rather than forcing
// every backend (serial, network relay, in-memory test fake) to stub out a
// concept that doesn't exist on those channels. internal/exploit's Kamakiri
// bridge is the one place this is needed — it corrupts BROM validation
// state with a crafted control transfer before the bulk send_da path runs.
type ControlTransport interface {
	ControlTransfer(ctx context.Context, requestType, request byte, value, index uint16, data []byte) (int, error)
}

// Config carries the OS-level parameters fixed at Open time (spec.md §4.1:
// "baud, parity, handshake... set at open; the core does not re-open or
// reconfigure mid-session").
type Config struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "none", "even", "odd"
}

// DefaultConfig matches the 115200-8N1 convention nearly every vendor
// bootrom/diag port uses.
func DefaultConfig() Config {
	return Config{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
}

func disconnected(err error) error {
	return flasherr.NewTransportError(flasherr.TransportDisconnected, err)
}

func timeoutErr(err error) error {
	return flasherr.NewTransportError(flasherr.TransportTimeout, err)
}

func ioErr(err error) error {
	return flasherr.NewTransportError(flasherr.TransportIO, err)
}
