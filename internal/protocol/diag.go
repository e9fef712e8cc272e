// internal/protocol/diag.go
// SPRD Diag state machine (spec.md §4.3): HDLC-framed, command byte +
// payload + CRC16 (the HDLC trailer), used for NV read/write, AT passthrough
// and reset/poweroff once a session has dropped out of BootROM/FDL into the
// running firmware's diagnostic port. Grounded on the same HDLC receive loop
// as sprdbootrom.go, generalized to Diag's simpler one-byte-command framing
// (no BSL type/length sub-header — spec.md §4.2 parameterizes CRC byte
// order per port, little-endian here).
package protocol

import (
	"context"
	"encoding/binary"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/framer"
	"flashcore/internal/transport"
)

// Diag command bytes named in spec.md §4.3.
const (
	DiagCmdNVRead  byte = 0x26
	DiagCmdNVWrite byte = 0x27
	DiagCmdAT      byte = 0x3E
	DiagCmdReset   byte = 0x00
	DiagCmdPowerOff byte = 0x0C
)

// Diag drives the SPRD diagnostic-port protocol over t.
type Diag struct {
	Transport transport.Transport
	Sink      events.Sink
	Log       *flashlog.Logger

	decoder *framer.HdlcDecoder
	state   State
}

// NewDiag constructs a Diag machine bound to t, starting in StateReady —
// the diag port has no separate handshake phase of its own.
func NewDiag(t transport.Transport, sink events.Sink, log *flashlog.Logger) *Diag {
	return &Diag{
		Transport: t, Sink: sink, Log: log,
		decoder: framer.NewHdlcDecoder(framer.LittleEndian, 1<<16),
		state:   StateReady,
	}
}

// State reports the machine's current lifecycle node.
func (d *Diag) State() State { return d.state }

// NVRead reads NV item nvID (spec.md §4.3's "NV read/write by 16-bit NV-id").
func (d *Diag) NVRead(ctx context.Context, nvID uint16) ([]byte, error) {
	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, nvID)
	frame, err := d.roundTrip(ctx, DiagCmdNVRead, body)
	if err != nil {
		return nil, err
	}
	return frame.Payload[1:], nil
}

// NVWrite writes data to NV item nvID.
func (d *Diag) NVWrite(ctx context.Context, nvID uint16, data []byte) error {
	body := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(body[0:2], nvID)
	copy(body[2:], data)
	_, err := d.roundTrip(ctx, DiagCmdNVWrite, body)
	return err
}

// ATCommand sends an AT command string through the diag passthrough
// (spec.md §4.3's "AT passthrough (cmd=0x3E)") and returns the raw reply.
func (d *Diag) ATCommand(ctx context.Context, command string) ([]byte, error) {
	frame, err := d.roundTrip(ctx, DiagCmdAT, []byte(command))
	if err != nil {
		return nil, err
	}
	return frame.Payload[1:], nil
}

// Reset issues the diag reset command.
func (d *Diag) Reset(ctx context.Context) error {
	return d.Transport.WriteAll(ctx, d.encode(DiagCmdReset, nil))
}

// PowerOff issues the diag poweroff command.
func (d *Diag) PowerOff(ctx context.Context) error {
	return d.Transport.WriteAll(ctx, d.encode(DiagCmdPowerOff, nil))
}

func (d *Diag) encode(cmd byte, payload []byte) []byte {
	body := make([]byte, 1+len(payload))
	body[0] = cmd
	copy(body[1:], payload)
	return framer.EncodeHDLC(body, framer.LittleEndian)
}

func (d *Diag) roundTrip(ctx context.Context, cmd byte, payload []byte) (*framer.HdlcFrame, error) {
	if err := d.Transport.WriteAll(ctx, d.encode(cmd, payload)); err != nil {
		return nil, err
	}
	for {
		b, err := d.Transport.ReadExact(ctx, 1, FrameTimeout)
		if err != nil {
			return nil, err
		}
		hf, decErr := d.decoder.Feed(b[0])
		if decErr != nil {
			return nil, decErr
		}
		if hf == nil {
			continue
		}
		if !hf.CrcOK {
			return nil, flasherr.NewFrameError(flasherr.FrameBadCrc, nil)
		}
		if len(hf.Payload) < 1 || hf.Payload[0] != cmd {
			return nil, flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(hf.Payload[0]), "unexpected diag reply")
		}
		return hf, nil
	}
}
