// internal/pipeline/mtk.go
// MediaTek Driver adapter: Preloader negotiates and sends/jumps stage-1
// (the Download Agent), XFlash syncs and sends/jumps stage-2 when present.
// Grounded on spec.md §4.4's explicit MTK callouts: step 2's
// write32(watchdog_addr, 0x22000064), step 6's "send EMI blob extracted
// from preloader" when GetConnectionAgent reports "brom".
package pipeline

import (
	"context"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/protocol"
)

// MTKWatchdogDisableValue is the fixed value spec.md §4.4 step 2 names for
// MediaTek's watchdog disable.
const MTKWatchdogDisableValue = 0x22000064

// MTKDriver drives the Preloader -> XFlash DA pipeline.
type MTKDriver struct {
	Preloader *protocol.Preloader
	XFlash    *protocol.XFlash

	daAddr    uint32
	daSigLen  uint32
	jumpAddr  uint32
	connAgent string

	sendCount    int
	stage2Addr   uint32
	stage2Payload []byte
}

// SetStage2Target records where stage-2 (sent through XFlash.BootTo rather
// than Preloader.SendDA) should jump to, since BootTo combines upload and
// jump into a single op — unlike stage-1's separate SendDA/JumpDA pair.
func (m *MTKDriver) SetStage2Target(addr uint32) { m.stage2Addr = addr }

// NewMTKDriver wires a Preloader+XFlash pair, with the DA's load address,
// its trailing signature length, and the jump target the loader requires.
func NewMTKDriver(preloader *protocol.Preloader, xflash *protocol.XFlash, daAddr, daSigLen, jumpAddr uint32) *MTKDriver {
	return &MTKDriver{Preloader: preloader, XFlash: xflash, daAddr: daAddr, daSigLen: daSigLen, jumpAddr: jumpAddr}
}

// Negotiate runs the Preloader handshake, then reads the HW-code to
// resolve the chip config (§4.4 step 1).
func (m *MTKDriver) Negotiate(ctx context.Context) (chipdb.ChipConfig, error) {
	if err := m.Preloader.Handshake(ctx); err != nil {
		return chipdb.ChipConfig{}, err
	}
	return m.Preloader.GetHWCode(ctx)
}

// DisableWatchdog writes the fixed disable value to the chip's watchdog
// register (§4.4 step 2).
func (m *MTKDriver) DisableWatchdog(ctx context.Context, cfg chipdb.ChipConfig) error {
	return m.Preloader.Write32(ctx, cfg.WatchdogAddr, MTKWatchdogDisableValue)
}

// SendStage uploads stage-1 via Preloader's send_da (§4.4 step 3). Stage-2
// (§4.4 step 7) is buffered instead: XFlash.BootTo combines upload and jump
// into a single op, so the actual wire transfer happens in Jump's second
// call.
func (m *MTKDriver) SendStage(ctx context.Context, payload []byte, sink events.Sink) error {
	m.sendCount++
	if m.sendCount == 1 {
		return m.Preloader.SendDA(ctx, m.daAddr, m.daSigLen, payload)
	}
	m.stage2Payload = payload
	return nil
}

// Jump transfers control to stage-1's entry point via Preloader.JumpDA on
// its first call, or boots stage-2 via XFlash.BootTo (upload+jump in one
// op) on its second.
func (m *MTKDriver) Jump(ctx context.Context) error {
	if m.stage2Payload == nil {
		return m.Preloader.JumpDA(ctx, m.jumpAddr)
	}
	payload := m.stage2Payload
	m.stage2Payload = nil
	return m.XFlash.BootTo(ctx, m.stage2Addr, payload)
}

// Sync asks the now-running DA which agent it was entered from, which
// also doubles as the liveness probe spec.md §4.4 step 5 calls for.
func (m *MTKDriver) Sync(ctx context.Context) error {
	agent, err := m.XFlash.GetConnectionAgent(ctx)
	if err != nil {
		return err
	}
	m.connAgent = agent
	return nil
}

// InitDRAM sends the EMI blob when the DA reports it was entered from
// BROM (§4.4 step 6).
func (m *MTKDriver) InitDRAM(ctx context.Context, emi []byte) error {
	if len(emi) == 0 || m.connAgent != "brom" {
		return nil
	}
	return m.XFlash.SendEMI(ctx, emi)
}

// InitDeviceInfo re-requests device info from the now-fully-initialized DA
// (§4.4 step 8).
func (m *MTKDriver) InitDeviceInfo(ctx context.Context) error {
	return m.XFlash.ReinitDeviceInfo(ctx)
}

// ConnectionAgent reports what Sync discovered ("brom" or "preloader").
func (m *MTKDriver) ConnectionAgent() string { return m.connAgent }
