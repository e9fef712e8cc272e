// internal/protocol/state.go
// Shared state-machine graph for every chip protocol (spec.md §4.3): each
// state machine is a finite graph Disconnected -> Handshaking -> Ready ->
// InOperation -> {Ready | Error(kind) | Disconnected}. Grounded on the
// teacher's isOperational/useUSB/useKernel boolean-flag style in
// controller.go, generalized into an explicit enum since several distinct
// protocols (Sahara, Firehose, Preloader, XFlash, SPRD-BootROM, Diag) share
// this exact graph shape and each needs to report its current node.
package protocol

import "time"

// State is a node in the per-protocol lifecycle graph (spec.md §4.3).
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
	StateInOperation
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateInOperation:
		return "InOperation"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Per-operation deadlines named in spec.md §5.
const (
	HandshakeTimeout  = 5 * time.Second
	FrameTimeout      = 3 * time.Second
	EraseTimeout      = 60 * time.Second
	FormatTimeout     = 300 * time.Second
)
