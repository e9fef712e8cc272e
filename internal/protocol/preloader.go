// internal/protocol/preloader.go
// MTK Preloader state machine (spec.md §4.3): entered immediately after
// serial open, with a fixed 20ms echo handshake, then read32/write32/send_da/
// jump_da primitives. Grounded on the teacher's buildRxStatusPacket /
// parseRxStatusResponse fixed-packet request-verify pair, generalized from
// one packet shape to the Preloader's echo-of-complement handshake plus its
// register-access ops.
package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/transport"
)

// Preloader handshake bytes (spec.md §4.3): host writes handshakeSend,
// device must echo back its bitwise complement.
var (
	preloaderHandshakeSend = []byte{0xA0, 0x0A, 0x50, 0x05}
	preloaderHandshakeWant = []byte{0x5F, 0xF5, 0xAF, 0xFA}
)

const preloaderHandshakeTimeout = 20 * time.Millisecond

// TargetConfig reports the security posture the Preloader returns from
// get_target_config (spec.md §4.3).
type TargetConfig struct {
	SBCEnabled    bool
	SLAEnabled    bool
	DAAEnabled    bool
	SecureBoot    bool
}

// Preloader drives the MTK BROM/Preloader handshake and register-access ops
// over a serial transport.
type Preloader struct {
	Transport transport.Transport
	Sink      events.Sink
	Log       *flashlog.Logger

	state State
}

// NewPreloader constructs a Preloader machine bound to t.
func NewPreloader(t transport.Transport, sink events.Sink, log *flashlog.Logger) *Preloader {
	return &Preloader{Transport: t, Sink: sink, Log: log, state: StateDisconnected}
}

// State reports the machine's current lifecycle node.
func (p *Preloader) State() State { return p.state }

// Handshake performs the 20ms echo handshake BROM/Preloader expects
// immediately after the serial port opens.
func (p *Preloader) Handshake(ctx context.Context) error {
	p.state = StateHandshaking
	p.Sink.Emit(events.StateChanged(p.state.String()))

	hctx, cancel := context.WithTimeout(ctx, preloaderHandshakeTimeout*4)
	defer cancel()

	for i, b := range preloaderHandshakeSend {
		if err := p.Transport.WriteAll(hctx, []byte{b}); err != nil {
			p.state = StateError
			return err
		}
		echo, err := p.Transport.ReadExact(hctx, 1, preloaderHandshakeTimeout)
		if err != nil {
			p.state = StateError
			return err
		}
		if echo[0] != preloaderHandshakeWant[i] {
			p.state = StateError
			return flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
		}
	}

	p.state = StateReady
	p.Sink.Emit(events.StateChanged(p.state.String()))
	return nil
}

// GetHWCode issues get_hw_code and resolves it against the built-in chip
// database (spec.md §4.4 step 1).
func (p *Preloader) GetHWCode(ctx context.Context) (chipdb.ChipConfig, error) {
	words, err := p.readWords(ctx, 0xFD, 1)
	if err != nil {
		return chipdb.ChipConfig{}, err
	}
	hwCode := uint16(words[0] >> 16)
	cfg, ok := chipdb.Lookup(hwCode)
	if !ok {
		return chipdb.ChipConfig{}, flasherr.NewExploitError(flasherr.ExploitUnsupportedChip, nil)
	}
	return cfg, nil
}

// GetTargetConfig issues get_target_config and decodes the security bits
// (spec.md §4.3).
func (p *Preloader) GetTargetConfig(ctx context.Context) (TargetConfig, error) {
	words, err := p.readWords(ctx, 0xD8, 1)
	if err != nil {
		return TargetConfig{}, err
	}
	bits := words[0]
	return TargetConfig{
		SBCEnabled: bits&0x1 != 0,
		SLAEnabled: bits&0x2 != 0,
		DAAEnabled: bits&0x4 != 0,
		SecureBoot: bits&0x8 != 0,
	}, nil
}

// Read32 reads one 32-bit register at addr (spec.md §4.3's read32).
func (p *Preloader) Read32(ctx context.Context, addr uint32) (uint32, error) {
	if err := p.echoCmd(ctx, 0xD1); err != nil {
		return 0, err
	}
	if err := p.echoU32(ctx, addr); err != nil {
		return 0, err
	}
	if err := p.echoU32(ctx, 1); err != nil { // count = 1
		return 0, err
	}
	words, err := p.readWords(ctx, 0, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// Write32 writes one 32-bit value to addr (spec.md §4.3's write32; used by
// §4.4 step 2's watchdog disable: write32(watchdog_addr, 0x22000064)).
func (p *Preloader) Write32(ctx context.Context, addr, value uint32) error {
	if err := p.echoCmd(ctx, 0xD4); err != nil {
		return err
	}
	if err := p.echoU32(ctx, addr); err != nil {
		return err
	}
	if err := p.echoU32(ctx, 1); err != nil {
		return err
	}
	return p.echoU32(ctx, value)
}

// SendDA uploads a stage-1/stage-2 Download-Agent payload to addr,
// validated by sigLen trailing signature bytes (spec.md §4.3's send_da).
func (p *Preloader) SendDA(ctx context.Context, addr uint32, sigLen uint32, data []byte) error {
	p.state = StateInOperation
	p.Sink.Emit(events.StateChanged(p.state.String()))

	if err := p.echoCmd(ctx, 0xD7); err != nil {
		return err
	}
	if err := p.echoU32(ctx, addr); err != nil {
		return err
	}
	if err := p.echoU32(ctx, uint32(len(data))); err != nil {
		return err
	}
	if err := p.echoU32(ctx, sigLen); err != nil {
		return err
	}

	const chunkSize = 1024
	var sent int
	for sent < len(data) {
		end := sent + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[sent:end]
		if err := p.Transport.WriteAll(ctx, chunk); err != nil {
			p.state = StateError
			return err
		}
		echo, err := p.Transport.ReadExact(ctx, len(chunk), FrameTimeout)
		if err != nil {
			p.state = StateError
			return err
		}
		if !bytes.Equal(echo, chunk) {
			p.state = StateError
			return flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
		}
		sent = end
		p.Sink.Emit(events.Progress(int64(sent), int64(len(data))))
	}

	// Checksum ack (u16, xor-fold of all data bytes).
	if _, err := p.Transport.ReadExact(ctx, 2, FrameTimeout); err != nil {
		p.state = StateError
		return err
	}

	p.state = StateReady
	p.Sink.Emit(events.StateChanged(p.state.String()))
	return nil
}

// JumpDA jumps execution to addr (spec.md §4.4 step 4).
func (p *Preloader) JumpDA(ctx context.Context, addr uint32) error {
	if err := p.echoCmd(ctx, 0xD5); err != nil {
		return err
	}
	return p.echoU32(ctx, addr)
}

func (p *Preloader) echoCmd(ctx context.Context, cmd byte) error {
	if err := p.Transport.WriteAll(ctx, []byte{cmd}); err != nil {
		return err
	}
	echo, err := p.Transport.ReadExact(ctx, 1, FrameTimeout)
	if err != nil {
		return err
	}
	if echo[0] != cmd {
		return flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
	}
	return nil
}

func (p *Preloader) echoU32(ctx context.Context, v uint32) error {
	word := make([]byte, 4)
	binary.BigEndian.PutUint32(word, v)
	if err := p.Transport.WriteAll(ctx, word); err != nil {
		return err
	}
	echo, err := p.Transport.ReadExact(ctx, 4, FrameTimeout)
	if err != nil {
		return err
	}
	if !bytes.Equal(echo, word) {
		return flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
	}
	return nil
}

// readWords reads count big-endian u32 words following the echoed command
// byte cmd (0 means the command byte was already echoed by the caller).
func (p *Preloader) readWords(ctx context.Context, cmd byte, count int) ([]uint32, error) {
	if cmd != 0 {
		if err := p.echoCmd(ctx, cmd); err != nil {
			return nil, err
		}
	}
	if count == 0 {
		return nil, nil
	}
	raw, err := p.Transport.ReadExact(ctx, 4*count, FrameTimeout)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(raw[4*i : 4*i+4])
	}
	return words, nil
}
