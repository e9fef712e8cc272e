// internal/exploit/rsareplay.go
// RSA-replay bridge (Unisoc, spec.md §4.8): submits a known-good
// digest+signature pair for the specific chip, appended where FDL1's
// signature verification expects to find one, bypassing the check at a
// known ROM offset without ever computing a real signature.
package exploit

import (
	"context"

	"flashcore/internal/protocol"
)

// RSAReplay implements Bridge over an Unisoc BootROM/FDL1 session.
type RSAReplay struct {
	BootROM   *protocol.SprdBootROM
	FDL1Addr  uint32
	ChunkSize int

	// Digest and Signature are the caller-supplied known-good pair for
	// this specific chip (spec.md §9's non-goal: this package does not
	// generate them, only replays caller-supplied values).
	Digest    []byte
	Signature []byte
}

// NewRSAReplay constructs an RSA-replay bridge.
func NewRSAReplay(bootrom *protocol.SprdBootROM, fdl1Addr uint32, digest, signature []byte) *RSAReplay {
	return &RSAReplay{BootROM: bootrom, FDL1Addr: fdl1Addr, ChunkSize: 4096, Digest: digest, Signature: signature}
}

// Prepare is a no-op: the digest+signature pair is already known and
// requires no device interaction to compute.
func (r *RSAReplay) Prepare(ctx context.Context) error { return nil }

// RunPayload appends the known-good digest+signature pair to payload and
// loads it via the normal FDL1 START_DATA/MIDST_DATA/END_DATA/EXEC_DATA
// sequence (spec.md §4.3); FDL1's signature check at its known ROM offset
// reads the replayed pair instead of computing one over payload itself.
func (r *RSAReplay) RunPayload(ctx context.Context, payload []byte) (PayloadResult, error) {
	signed := append(append([]byte(nil), payload...), r.Digest...)
	signed = append(signed, r.Signature...)

	chunkSize := r.ChunkSize
	if chunkSize == 0 {
		chunkSize = 4096
	}
	if err := r.BootROM.LoadAndExec(ctx, r.FDL1Addr, signed, chunkSize); err != nil {
		return PayloadResult{}, err
	}
	return PayloadResult{BytesSent: len(signed), JumpAddr: r.FDL1Addr}, nil
}
