// internal/pipeline/unisoc.go
// Unisoc Driver adapter: one SprdBootROM machine drives Connect once, then
// LoadAndExec twice — once for FDL1 (stage-1), once for FDL2 (stage-2) at
// the higher capability level FDL1 unlocks. Grounded on spec.md §4.4's
// "Unisoc: implicit in FDL" watchdog note and §4.3's "the same framing
// continues at a higher-capability level for FDL2".
package pipeline

import (
	"context"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/protocol"
)

// UnisocDriver drives the BootROM -> FDL1 -> FDL2 pipeline.
type UnisocDriver struct {
	BootROM  *protocol.SprdBootROM
	ChunkSize int

	stage1Addr uint32
	stage2Addr uint32
	sendCount  int
}

// NewUnisocDriver wires a SprdBootROM machine with the FDL1/FDL2 load
// addresses and the MIDST_DATA chunk size to use.
func NewUnisocDriver(bootROM *protocol.SprdBootROM, stage1Addr, stage2Addr uint32, chunkSize int) *UnisocDriver {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &UnisocDriver{BootROM: bootROM, stage1Addr: stage1Addr, stage2Addr: stage2Addr, ChunkSize: chunkSize}
}

// Negotiate sends BSL_CMD_CONNECT and returns a ChipConfig built from the
// boot string the device reports (§4.4 step 1). Unisoc chips are outside
// the MTK-oriented built-in chipdb table, so a synthetic config carrying
// just the reported name is returned — callers needing the full register
// map for a crypto bridge consult internal/exploit's RSA-replay path
// instead, which is Unisoc-specific and doesn't need chipdb.
func (u *UnisocDriver) Negotiate(ctx context.Context) (chipdb.ChipConfig, error) {
	bootString, err := u.BootROM.Connect(ctx)
	if err != nil {
		return chipdb.ChipConfig{}, err
	}
	return chipdb.ChipConfig{Name: bootString, Description: "Unisoc/Spreadtrum (BootROM-reported)"}, nil
}

// DisableWatchdog is a no-op: spec.md §4.4 step 2 notes it's "implicit in
// FDL" for Unisoc.
func (u *UnisocDriver) DisableWatchdog(ctx context.Context, cfg chipdb.ChipConfig) error {
	return nil
}

// SendStage runs one full START/MIDST/END/EXEC loader-transfer sequence
// (§4.4 steps 3+4 combined, since SPRD's EXEC_DATA is itself the jump).
func (u *UnisocDriver) SendStage(ctx context.Context, payload []byte, sink events.Sink) error {
	u.sendCount++
	addr := u.stage1Addr
	if u.sendCount > 1 {
		addr = u.stage2Addr
	}
	return u.BootROM.LoadAndExec(ctx, addr, payload, u.ChunkSize)
}

// Jump is a no-op: EXEC_DATA inside LoadAndExec already transferred
// control.
func (u *UnisocDriver) Jump(ctx context.Context) error { return nil }

// Sync is a no-op: LoadAndExec's round-trip on EXEC_DATA already confirms
// the stage is live (BSL_REP_ACK), satisfying spec.md §4.4 step 5's intent.
func (u *UnisocDriver) Sync(ctx context.Context) error { return nil }

// InitDRAM is a no-op on Unisoc: FDL1 performs its own DRAM bring-up
// before ACKing EXEC_DATA.
func (u *UnisocDriver) InitDRAM(ctx context.Context, emi []byte) error { return nil }

// InitDeviceInfo is a no-op placeholder: Unisoc's partition table comes
// from the PAC archive's TOC (internal/storage), not a device query, so
// there is nothing to request here.
func (u *UnisocDriver) InitDeviceInfo(ctx context.Context) error { return nil }
