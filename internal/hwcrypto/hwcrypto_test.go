package hwcrypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"
)

// fakeRegisterIO is an in-memory RegisterIO backing a flat 32-bit address
// space, standing in for a live Preloader session.
type fakeRegisterIO struct {
	mem map[uint32]uint32
}

func newFakeRegisterIO() *fakeRegisterIO {
	return &fakeRegisterIO{mem: map[uint32]uint32{}}
}

func (f *fakeRegisterIO) Read32(ctx context.Context, addr uint32) (uint32, error) {
	return f.mem[addr], nil
}

func (f *fakeRegisterIO) Write32(ctx context.Context, addr, value uint32) error {
	f.mem[addr] = value
	return nil
}

// instantDoneRegisterIO behaves like fakeRegisterIO but marks CQDMA's
// int_flag register done as soon as the enable register is armed,
// standing in for real hardware completing the transfer immediately.
type instantDoneRegisterIO struct {
	*fakeRegisterIO
	base uint32
}

func (f *instantDoneRegisterIO) Write32(ctx context.Context, addr, value uint32) error {
	if err := f.fakeRegisterIO.Write32(ctx, addr, value); err != nil {
		return err
	}
	if addr == f.base+cqdmaOffEnable && value == cqdmaEnableGo {
		return f.fakeRegisterIO.Write32(ctx, f.base+cqdmaOffIntFlag, cqdmaIntFlagDoneMask)
	}
	return nil
}

func TestCQDMAMemWriteStagesScratch(t *testing.T) {
	io := &instantDoneRegisterIO{fakeRegisterIO: newFakeRegisterIO(), base: 0x1000}
	dma := NewCQDMA(io, 0x1000)
	if err := dma.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	const scratch = 0x90000000
	const target = 0x80000000
	data := []byte("0123456789abcdef") // exactly 16 bytes, one chunk

	if err := dma.MemWrite(context.Background(), target, scratch, data); err != nil {
		t.Fatalf("memwrite: %v", err)
	}
	// The fake backend has no real DMA, so transfer() only pokes control
	// registers; MemWrite's actual data lands in the scratch words, not at
	// target, since the fake never performs the copy. Read the scratch
	// region back directly to confirm the stage step worked.
	got, err := readWords(context.Background(), io, scratch, 4)
	if err != nil {
		t.Fatalf("readWords: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("scratch staging mismatch: got %q want %q", got, data)
	}
}

func TestGCPUInvertZeroKeyCBCRoundTrip(t *testing.T) {
	plain := []byte("sixteen byte msg")
	var zeroKey, zeroIV [16]byte
	block, err := aes.NewCipher(zeroKey[:])
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	transformed := make([]byte, 16)
	cipher.NewCBCDecrypter(block, zeroIV[:]).CryptBlocks(transformed, plain)

	got := InvertZeroKeyCBC(transformed)
	if !bytes.Equal(got, plain) {
		t.Fatalf("invert mismatch: got %q want %q", got, plain)
	}
}

func TestSEJSoftwareKeyRoundTrip(t *testing.T) {
	sej := NewSEJ(newFakeRegisterIO(), 0x2000)
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x24}, 16)
	block := []byte("deterministic!!!") // 16 bytes

	ciphertext, err := sej.Encrypt(context.Background(), SEJSWKey, key, iv, block)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := sej.Decrypt(context.Background(), SEJSWKey, key, iv, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(plain, block) {
		t.Fatalf("round trip mismatch: got %q want %q", plain, block)
	}
}

func TestCMACKnownVector(t *testing.T) {
	// NIST SP 800-38B AES-128 CMAC test vector, empty message.
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	want, _ := hex.DecodeString("bb1d6929e95937287fa37d129b756746")

	got, err := cmac(key, nil)
	if err != nil {
		t.Fatalf("cmac: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("cmac mismatch: got %x want %x", got, want)
	}
}

func TestDeriveKeyLength(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	out, err := DeriveKey(key, []byte("rpmb"), []byte("salt"), 48)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(out) != 48 {
		t.Fatalf("expected 48 bytes, got %d", len(out))
	}
}

func TestDXCCDescriptorEnqueue(t *testing.T) {
	io := newFakeRegisterIO()
	dxcc := NewDXCC(io, 0x3000)
	desc := Descriptor{1, 2, 3, 4, 5, 6}
	if err := dxcc.Enqueue(context.Background(), desc); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i, want := range desc {
		got, _ := io.Read32(context.Background(), dxcc.Base+dxccDescriptorOffset+uint32(i*4))
		if got != want {
			t.Fatalf("descriptor word %d: got %d want %d", i, got, want)
		}
	}
}
