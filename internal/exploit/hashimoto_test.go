package exploit

import (
	"bytes"
	"context"
	"testing"

	"flashcore/internal/chipdb"
	"flashcore/internal/hwcrypto"
)

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

// instantDoneRegisterIO marks CQDMA's int_flag done as soon as its enable
// register is armed, since this fake has no real DMA engine to complete
// the transfer asynchronously.
type instantDoneRegisterIO struct {
	*fakeRegisterIO
	base uint32
}

func (f *instantDoneRegisterIO) Write32(ctx context.Context, addr, value uint32) error {
	if err := f.fakeRegisterIO.Write32(ctx, addr, value); err != nil {
		return err
	}
	if value == 0x1 && addr == f.base+0x10 { // cqdmaOffEnable / cqdmaEnableGo
		return f.fakeRegisterIO.Write32(ctx, f.base+0x14, 0x1) // cqdmaOffIntFlag done
	}
	return nil
}

func TestHashimotoPrepareDisablesBlacklist(t *testing.T) {
	const base = 0x5000
	const blacklistAddr = 0x9000
	io := &instantDoneRegisterIO{fakeRegisterIO: newFakeRegisterIO(), base: base}
	io.mem[blacklistAddr+8] = 0x1000  // start
	io.mem[blacklistAddr+12] = 0x2000 // end

	cqdma := hwcrypto.NewCQDMA(io, base)
	h := NewHashimoto(cqdma, chipdb.ChipConfig{}, blacklistAddr, 0x90000000, 0x80000000)

	if err := h.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if io.mem[blacklistAddr+8] != 0 || io.mem[blacklistAddr+12] != 0 {
		t.Fatalf("blacklist entry not cleared: start=%d end=%d", io.mem[blacklistAddr+8], io.mem[blacklistAddr+12])
	}
}

func TestHashimotoRunPayloadStagesViaScratch(t *testing.T) {
	const base = 0x5000
	const scratch = 0x90000000
	const target = 0x80000000
	io := &instantDoneRegisterIO{fakeRegisterIO: newFakeRegisterIO(), base: base}
	cqdma := hwcrypto.NewCQDMA(io, base)
	h := NewHashimoto(cqdma, chipdb.ChipConfig{}, 0x9000, scratch, target)

	payload := []byte("0123456789abcdef") // 16 bytes, one chunk
	result, err := h.RunPayload(context.Background(), payload)
	if err != nil {
		t.Fatalf("run payload: %v", err)
	}
	if result.BytesSent != len(payload) || result.JumpAddr != target {
		t.Fatalf("unexpected result: %+v", result)
	}

	var staged []byte
	for i := uint32(0); i < 4; i++ {
		w := io.mem[scratch+i*4]
		staged = append(staged, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if !bytes.Equal(staged, payload) {
		t.Fatalf("scratch staging mismatch: got %q want %q", staged, payload)
	}
}
