// internal/hwcrypto/dxcc.go
// DXCC (Discretix CryptoCell) descriptor-queue engine (spec.md §4.7): each
// operation is a 6-word descriptor enqueued at a fixed offset; OTP reads
// supply lifecycle state and public-key hash; key derivation follows
// NIST SP 800-108 counter mode realized as AES-CMAC iterations. AES-CMAC
// has no stdlib implementation and no library in the retrieved pack
// provides one either, so it is hand-rolled here over stdlib crypto/aes
// per NIST SP 800-38B, the same way internal/framer/crc16.go hand-rolls a
// table the standard library has no equivalent for.
package hwcrypto

import (
	"context"
	"crypto/aes"
	"encoding/binary"
)

const (
	dxccDescriptorOffset = 0xE80
	dxccDescriptorWords  = 6
	dxccOTPOffset        = 0x2A9 * 4 // word-addressed per spec.md §4.7

	dxccOTPLifecycleWord   = 0
	dxccOTPPubKeyHashWords = 8 // SHA-256 sized hash, 8 words
)

// DXCC drives a chip's DXCC descriptor queue and OTP window.
type DXCC struct {
	IO   RegisterIO
	Base uint32
}

// NewDXCC constructs a DXCC engine bound to base.
func NewDXCC(io RegisterIO, base uint32) *DXCC {
	return &DXCC{IO: io, Base: base}
}

// Descriptor is one 6-word DXCC operation descriptor (spec.md §4.7).
type Descriptor [dxccDescriptorWords]uint32

// Enqueue writes desc to the fixed descriptor offset, starting the
// operation it describes.
func (d *DXCC) Enqueue(ctx context.Context, desc Descriptor) error {
	for i, w := range desc {
		if err := d.IO.Write32(ctx, d.Base+dxccDescriptorOffset+uint32(i*4), w); err != nil {
			return err
		}
	}
	return nil
}

// ReadLifecycleState reads the chip's OTP-resident lifecycle state word.
func (d *DXCC) ReadLifecycleState(ctx context.Context) (uint32, error) {
	return d.IO.Read32(ctx, d.Base+dxccOTPOffset+dxccOTPLifecycleWord*4)
}

// ReadPublicKeyHash reads the chip's OTP-resident public key hash.
func (d *DXCC) ReadPublicKeyHash(ctx context.Context) ([]byte, error) {
	return readWords(ctx, d.IO, d.Base+dxccOTPOffset+4, dxccOTPPubKeyHashWords)
}

// DeriveKey implements NIST SP 800-108 counter-mode key derivation over
// AES-CMAC (spec.md §4.7): iterates CMAC(key, counter || label || 0x00 ||
// salt || bitlen) until outLen bytes are produced.
func DeriveKey(key, label, salt []byte, outLen int) ([]byte, error) {
	var out []byte
	bitlen := make([]byte, 4)
	binary.BigEndian.PutUint32(bitlen, uint32(outLen*8))

	for counter := uint32(1); len(out) < outLen; counter++ {
		var msg []byte
		cb := make([]byte, 4)
		binary.BigEndian.PutUint32(cb, counter)
		msg = append(msg, cb...)
		msg = append(msg, label...)
		msg = append(msg, 0x00)
		msg = append(msg, salt...)
		msg = append(msg, bitlen...)

		mac, err := cmac(key, msg)
		if err != nil {
			return nil, err
		}
		out = append(out, mac...)
	}
	return out[:outLen], nil
}

// cmac computes AES-CMAC(key, msg) per NIST SP 800-38B.
func cmac(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	const blockSize = 16

	k1, k2 := subkeys(block)

	var blocks [][]byte
	for off := 0; off < len(msg); off += blockSize {
		end := off + blockSize
		if end > len(msg) {
			end = len(msg)
		}
		blocks = append(blocks, msg[off:end])
	}
	if len(blocks) == 0 {
		blocks = [][]byte{{}}
	}

	last := blocks[len(blocks)-1]
	var lastBlock [blockSize]byte
	if len(last) == blockSize {
		xorInto(lastBlock[:], last, k1[:])
	} else {
		padded := make([]byte, blockSize)
		copy(padded, last)
		padded[len(last)] = 0x80
		xorInto(lastBlock[:], padded, k2[:])
	}

	var x [blockSize]byte
	for i := 0; i < len(blocks)-1; i++ {
		var y [blockSize]byte
		xorInto(y[:], x[:], blocks[i])
		block.Encrypt(x[:], y[:])
	}
	var y [blockSize]byte
	xorInto(y[:], x[:], lastBlock[:])
	var mac [blockSize]byte
	block.Encrypt(mac[:], y[:])
	return mac[:], nil
}

func subkeys(block interface{ Encrypt(dst, src []byte) }) (k1, k2 [16]byte) {
	var zero [16]byte
	var l [16]byte
	block.Encrypt(l[:], zero[:])

	k1 = shiftLeftXorRb(l)
	k2 = shiftLeftXorRb(k1)
	return k1, k2
}

// shiftLeftXorRb left-shifts v by one bit, XORing in the CMAC Rb constant
// (0x87) when the MSB was set, per NIST SP 800-38B's subkey generation.
func shiftLeftXorRb(v [16]byte) [16]byte {
	var out [16]byte
	msb := v[0]&0x80 != 0
	carry := byte(0)
	for i := 15; i >= 0; i-- {
		out[i] = v[i]<<1 | carry
		carry = v[i] >> 7
	}
	if msb {
		out[15] ^= 0x87
	}
	return out
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
