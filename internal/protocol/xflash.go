// internal/protocol/xflash.go
// XFlash Download-Agent state machine (spec.md §4.3, MTK stage-2): one ACK
// byte after every framed op. Grounded on the same fixed-header-then-verify
// pattern as preloader.go, generalized to XFlash's length-prefixed block
// framing (internal/framer's EncodeXflashDA/DecodeXflashDA) instead of the
// raw echo-of-every-word Preloader uses.
package protocol

import (
	"context"
	"encoding/binary"
	"time"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/framer"
	"flashcore/internal/transport"
)

const xflashAck byte = 0x5A

// XFlash drives the MTK stage-2 Download-Agent protocol over t.
type XFlash struct {
	Transport transport.Transport
	Sink      events.Sink
	Log       *flashlog.Logger

	state State
}

// NewXFlash constructs an XFlash machine already in StateReady (the
// handoff from Preloader's jump_da leaves the DA live and listening).
func NewXFlash(t transport.Transport, sink events.Sink, log *flashlog.Logger) *XFlash {
	return &XFlash{Transport: t, Sink: sink, Log: log, state: StateReady}
}

// State reports the machine's current lifecycle node.
func (x *XFlash) State() State { return x.state }

// GetConnectionAgent reports whether the DA was entered from "brom" or
// "preloader" (spec.md §4.3), which determines whether SendEMI is needed.
func (x *XFlash) GetConnectionAgent(ctx context.Context) (string, error) {
	reply, err := x.roundTrip(ctx, []byte{0xB0}, 1)
	if err != nil {
		return "", err
	}
	if reply[0] == 0x00 {
		return "brom", nil
	}
	return "preloader", nil
}

// SendEMI uploads the EMI (DRAM init) blob extracted from the preloader
// image, required when GetConnectionAgent reported "brom" (spec.md §4.4
// step 6).
func (x *XFlash) SendEMI(ctx context.Context, data []byte) error {
	if err := x.Transport.WriteAll(ctx, append([]byte{0xB1}, framer.EncodeXflashDA(data)...)); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// BootTo transfers control to addr with stage2Data as the accompanying
// payload (spec.md §4.3's boot_to).
func (x *XFlash) BootTo(ctx context.Context, addr uint32, stage2Data []byte) error {
	x.state = StateInOperation
	x.Sink.Emit(events.StateChanged(x.state.String()))

	header := make([]byte, 5)
	header[0] = 0xB2
	binary.BigEndian.PutUint32(header[1:5], addr)
	if err := x.Transport.WriteAll(ctx, header); err != nil {
		x.state = StateError
		return err
	}
	if err := x.Transport.WriteAll(ctx, framer.EncodeXflashDA(stage2Data)); err != nil {
		x.state = StateError
		return err
	}
	if err := x.expectAck(ctx); err != nil {
		x.state = StateError
		return err
	}

	x.state = StateReady
	x.Sink.Emit(events.StateChanged(x.state.String()))
	return nil
}

// SetResetKey sets the reset-key byte sent to the target on a later
// shutdown/reboot (spec.md §4.3).
func (x *XFlash) SetResetKey(ctx context.Context, key byte) error {
	if err := x.Transport.WriteAll(ctx, []byte{0xB3, key}); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// SetChecksumLevel enables per-chunk checksums above level 0 (spec.md
// §4.10's "XFlash checksum level > 0" read verification mode).
func (x *XFlash) SetChecksumLevel(ctx context.Context, level byte) error {
	if err := x.Transport.WriteAll(ctx, []byte{0xB4, level}); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// GetSLAStatus reports whether Secure-Level-Authentication is required
// before DA accepts further storage ops.
func (x *XFlash) GetSLAStatus(ctx context.Context) (bool, error) {
	reply, err := x.roundTrip(ctx, []byte{0xB5}, 1)
	if err != nil {
		return false, err
	}
	return reply[0] != 0, nil
}

// ReinitDeviceInfo re-requests storage geometry after DRAM/SLA setup
// (spec.md §4.4 step 8).
func (x *XFlash) ReinitDeviceInfo(ctx context.Context) error {
	if err := x.Transport.WriteAll(ctx, []byte{0xB6}); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// ReadFlash streams length bytes at offset from partType (spec.md §4.10).
func (x *XFlash) ReadFlash(ctx context.Context, offset, length uint64, partType byte) ([]byte, error) {
	header := make([]byte, 18)
	header[0] = 0xB7
	binary.BigEndian.PutUint64(header[1:9], offset)
	binary.BigEndian.PutUint64(header[9:17], length)
	header[17] = partType
	if err := x.Transport.WriteAll(ctx, header); err != nil {
		return nil, err
	}
	data, err := x.Transport.ReadExact(ctx, int(length), FrameTimeout)
	if err != nil {
		return nil, err
	}
	if err := x.expectAck(ctx); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFlash writes data at offset into partType (spec.md §4.10).
func (x *XFlash) WriteFlash(ctx context.Context, offset uint64, data []byte, partType byte) error {
	header := make([]byte, 18)
	header[0] = 0xB8
	binary.BigEndian.PutUint64(header[1:9], offset)
	binary.BigEndian.PutUint64(header[9:17], uint64(len(data)))
	header[17] = partType
	if err := x.Transport.WriteAll(ctx, header); err != nil {
		return err
	}
	if err := x.Transport.WriteAll(ctx, data); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// FormatFlash erases [offset, offset+length) on partType (spec.md §4.10).
func (x *XFlash) FormatFlash(ctx context.Context, offset, length uint64, partType byte) error {
	header := make([]byte, 18)
	header[0] = 0xB9
	binary.BigEndian.PutUint64(header[1:9], offset)
	binary.BigEndian.PutUint64(header[9:17], length)
	header[17] = partType
	if err := x.Transport.WriteAll(ctx, header); err != nil {
		return err
	}
	return x.expectAckDeadline(ctx, FormatTimeout)
}

// Shutdown issues the shutdown op with the given mode byte (0=normal,
// 1=bootloader, 2=recovery, matching the reset-key set earlier).
func (x *XFlash) Shutdown(ctx context.Context, mode byte) error {
	if err := x.Transport.WriteAll(ctx, []byte{0xBA, mode}); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

// Reboot issues a plain reboot.
func (x *XFlash) Reboot(ctx context.Context) error {
	if err := x.Transport.WriteAll(ctx, []byte{0xBB}); err != nil {
		return err
	}
	return x.expectAck(ctx)
}

func (x *XFlash) expectAck(ctx context.Context) error {
	return x.expectAckDeadline(ctx, FrameTimeout)
}

func (x *XFlash) expectAckDeadline(ctx context.Context, timeout time.Duration) error {
	ack, err := x.Transport.ReadExact(ctx, 1, timeout)
	if err != nil {
		return err
	}
	if ack[0] != xflashAck {
		return flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
	}
	return nil
}

// roundTrip writes cmd and reads back replyLen bytes.
func (x *XFlash) roundTrip(ctx context.Context, cmd []byte, replyLen int) ([]byte, error) {
	if err := x.Transport.WriteAll(ctx, cmd); err != nil {
		return nil, err
	}
	return x.Transport.ReadExact(ctx, replyLen, FrameTimeout)
}
