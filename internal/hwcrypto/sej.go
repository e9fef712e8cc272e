// internal/hwcrypto/sej.go
// SEJ (Security Engine for JTAG) hardware-key AES-128-CBC primitive
// (spec.md §4.7): used for RPMB key derivation and MTEE key derivation.
// SEJ itself only ever operates on hardware-resident keys the host cannot
// read, so this package exposes the mode selector and op sequencing; the
// actual AES transform for SWKey mode reuses stdlib crypto/aes +
// crypto/cipher, the same as gcpu.go.
package hwcrypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"

	"flashcore/internal/flasherr"
)

// SEJKeyMode selects which key SEJ's AES engine applies (spec.md §4.7).
type SEJKeyMode int

const (
	SEJSWKey SEJKeyMode = iota
	SEJHWKey
	SEJHWWrapKey
)

// SEJ register offsets relative to a chip's SEJBase (spec.md §4.7).
const (
	sejOffControl = 0x00
	sejOffMode    = 0x04
	sejOffKeySlot = 0x08 // 4 words, only meaningful in SWKey mode
	sejOffDataIn  = 0x18 // 4 words
	sejOffDataOut = 0x28 // 4 words

	sejControlEncrypt = 0x1
	sejControlDecrypt = 0x2
	sejControlBusy    = 0x1 << 31
)

// SEJ drives a chip's Security Engine for JTAG register block.
type SEJ struct {
	IO   RegisterIO
	Base uint32
}

// NewSEJ constructs a SEJ engine bound to base.
func NewSEJ(io RegisterIO, base uint32) *SEJ {
	return &SEJ{IO: io, Base: base}
}

// Decrypt runs one AES-128-CBC block decrypt through SEJ (spec.md §4.7).
// In SEJHWKey or SEJHWWrapKey mode, key is ignored by the hardware (it
// uses the device root key or a wrapped variant instead) but is still
// accepted here so callers don't need mode-dependent call sites; pass nil
// in those modes.
func (s *SEJ) Decrypt(ctx context.Context, mode SEJKeyMode, key, iv, block []byte) ([]byte, error) {
	return s.transform(ctx, mode, key, iv, block, sejControlDecrypt)
}

// Encrypt runs one AES-128-CBC block encrypt through SEJ.
func (s *SEJ) Encrypt(ctx context.Context, mode SEJKeyMode, key, iv, block []byte) ([]byte, error) {
	return s.transform(ctx, mode, key, iv, block, sejControlEncrypt)
}

func (s *SEJ) transform(ctx context.Context, mode SEJKeyMode, key, iv, block []byte, op uint32) ([]byte, error) {
	if len(block) != 16 {
		return nil, flasherr.NewExploitError(flasherr.ExploitPayloadRejected, nil)
	}
	if mode == SEJSWKey {
		// The host supplies the key directly; no hardware key material is
		// involved, so this path can be emulated entirely in software
		// rather than round-tripping through the chip.
		return softwareAESCBC(key, iv, block, op == sejControlEncrypt)
	}

	if err := s.IO.Write32(ctx, s.Base+sejOffMode, uint32(mode)); err != nil {
		return nil, err
	}
	if err := writeWords(ctx, s.IO, s.Base+sejOffDataIn, block); err != nil {
		return nil, err
	}
	if err := s.IO.Write32(ctx, s.Base+sejOffControl, op); err != nil {
		return nil, err
	}
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}
	return readWords(ctx, s.IO, s.Base+sejOffDataOut, 4)
}

func (s *SEJ) waitReady(ctx context.Context) error {
	status, err := s.IO.Read32(ctx, s.Base+sejOffControl)
	if err != nil {
		return err
	}
	if status&sejControlBusy != 0 {
		return flasherr.NewTimeoutError("sej_busy")
	}
	return nil
}

func softwareAESCBC(key, iv, block []byte, encrypt bool) ([]byte, error) {
	cb, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	if encrypt {
		cipher.NewCBCEncrypter(cb, iv).CryptBlocks(out, block)
	} else {
		cipher.NewCBCDecrypter(cb, iv).CryptBlocks(out, block)
	}
	return out, nil
}
