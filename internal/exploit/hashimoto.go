// internal/exploit/hashimoto.go
// Hashimoto bridge (CQDMA, spec.md §4.8): CQDMA disables the chip's own
// memory-range blacklist, after which the stage-1 loader can be written
// directly into the now-writable BROM scratch area via CQDMA's own
// MEM_WRITE primitive rather than through send_da at all.
package exploit

import (
	"context"

	"flashcore/internal/chipdb"
	"flashcore/internal/hwcrypto"
)

// Hashimoto implements Bridge over the chip's CQDMA engine.
type Hashimoto struct {
	CQDMA         *hwcrypto.CQDMA
	Chip          chipdb.ChipConfig
	BlacklistAddr uint32 // address of the {flags,_,start,end} entry array
	ScratchAddr   uint32
	TargetAddr    uint32
}

// NewHashimoto constructs a Hashimoto bridge.
func NewHashimoto(cqdma *hwcrypto.CQDMA, chip chipdb.ChipConfig, blacklistAddr, scratchAddr, targetAddr uint32) *Hashimoto {
	return &Hashimoto{CQDMA: cqdma, Chip: chip, BlacklistAddr: blacklistAddr, ScratchAddr: scratchAddr, TargetAddr: targetAddr}
}

// Prepare initializes CQDMA and overwrites the blacklist entry so
// start=end=0, disabling it (spec.md §4.7).
func (h *Hashimoto) Prepare(ctx context.Context) error {
	if err := h.CQDMA.Init(ctx); err != nil {
		return err
	}
	return h.CQDMA.DisableBlacklistEntry(ctx, h.BlacklistAddr)
}

// RunPayload writes payload into the now-unprotected BROM scratch area
// directly through CQDMA's MEM_WRITE primitive (spec.md §4.8).
func (h *Hashimoto) RunPayload(ctx context.Context, payload []byte) (PayloadResult, error) {
	if err := h.CQDMA.MemWrite(ctx, h.TargetAddr, h.ScratchAddr, payload); err != nil {
		return PayloadResult{}, err
	}
	return PayloadResult{BytesSent: len(payload), JumpAddr: h.TargetAddr}, nil
}
