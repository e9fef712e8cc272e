// internal/protocol/sahara.go
// Sahara state machine (spec.md §4.3, Qualcomm stage-1): a TLV handshake
// that streams a programmer ELF to the device in slices it asks for, then
// hands off to Firehose. Grounded on the teacher's initializeASIC
// query-then-configure-then-verify sequence in controller.go, generalized
// from a fixed three-step exchange to Sahara's read_data loop driven by
// whatever offsets/lengths the peer requests.
package protocol

import (
	"context"
	"fmt"
	"io"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/framer"
	"flashcore/internal/transport"
)

// SaharaImageID is the only image id the host accepts (the EDL programmer,
// spec.md §4.3's "image_id 13 (EDL programmer) is the only accepted id").
const SaharaImageID = 13

// SaharaHelloPayload mirrors the fixed fields carried in a Sahara HELLO
// command (version, compatible version, max command-packet length, mode).
type SaharaHelloPayload struct {
	Version       uint32
	VersionCompat uint32
	MaxCmdLength  uint32
	Mode          uint32
}

func parseSaharaHello(payload []byte) (SaharaHelloPayload, error) {
	if len(payload) < 16 {
		return SaharaHelloPayload{}, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	return SaharaHelloPayload{
		Version:       le32(payload[0:4]),
		VersionCompat: le32(payload[4:8]),
		MaxCmdLength:  le32(payload[8:12]),
		Mode:          le32(payload[12:16]),
	}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// SaharaModeImageTransferPending is the mode the host always selects in its
// HELLO_RESP (spec.md §4.3's worked scenario).
const SaharaModeImageTransferPending = 1

// Sahara drives the Qualcomm stage-1 handshake over t, streaming slices of
// programmer from whatever READ_DATA requests the device issues.
type Sahara struct {
	Transport  transport.Transport
	Programmer io.ReaderAt
	Sink       events.Sink
	Log        *flashlog.Logger

	state State
}

// NewSahara constructs a Sahara machine bound to t and the programmer ELF
// bytes to serve on READ_DATA.
func NewSahara(t transport.Transport, programmer io.ReaderAt, sink events.Sink, log *flashlog.Logger) *Sahara {
	return &Sahara{Transport: t, Programmer: programmer, Sink: sink, Log: log, state: StateDisconnected}
}

// State reports the machine's current lifecycle node.
func (s *Sahara) State() State { return s.state }

func (s *Sahara) emit(format string, args ...any) {
	s.Sink.Emit(events.Log(format, args...))
	if s.Log != nil {
		s.Log.Debugf(format, args...)
	}
}

// Run drives the handshake to completion: HELLO -> HELLO_RESP -> zero or
// more READ_DATA -> END_TRANSFER -> DONE -> DONE_RESP. On success the
// machine transitions to StateReady, meaning stage-2 (Firehose) is live on
// the same transport.
func (s *Sahara) Run(ctx context.Context) error {
	s.state = StateHandshaking
	s.Sink.Emit(events.StateChanged(s.state.String()))

	hello, err := s.readTLV(ctx)
	if err != nil {
		s.state = StateError
		return err
	}
	if hello.Command != framer.SaharaHello {
		s.state = StateError
		return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(hello.Command), "expected HELLO")
	}
	payload, err := parseSaharaHello(hello.Payload)
	if err != nil {
		s.state = StateError
		return err
	}
	s.emit("sahara: HELLO mode=%d version=%d", payload.Mode, payload.Version)

	resp := make([]byte, 0, 16)
	resp = append(resp, putLE32(payload.Version)...)
	resp = append(resp, putLE32(payload.VersionCompat)...)
	resp = append(resp, putLE32(0)...) // status = success
	resp = append(resp, putLE32(SaharaModeImageTransferPending)...)
	if err := s.writeTLV(ctx, framer.SaharaHelloResp, resp); err != nil {
		s.state = StateError
		return err
	}

	s.state = StateInOperation
	s.Sink.Emit(events.StateChanged(s.state.String()))

	for {
		tlv, err := s.readTLV(ctx)
		if err != nil {
			s.state = StateError
			return err
		}

		switch tlv.Command {
		case framer.SaharaReadData, framer.SaharaReadData64:
			if err := s.serveReadData(ctx, tlv.Payload); err != nil {
				s.state = StateError
				return err
			}

		case framer.SaharaEndTransfer:
			if len(tlv.Payload) < 4 {
				s.state = StateError
				return flasherr.NewFrameError(flasherr.FrameOverflow, nil)
			}
			status := le32(tlv.Payload[0:4])
			if status != 0 {
				s.state = StateError
				return flasherr.NewProtocolError(flasherr.ProtocolAbort, int(status), "END_TRANSFER reported vendor error")
			}
			if err := s.writeTLV(ctx, framer.SaharaDone, nil); err != nil {
				s.state = StateError
				return err
			}
			doneResp, err := s.readTLV(ctx)
			if err != nil {
				s.state = StateError
				return err
			}
			if doneResp.Command != framer.SaharaDoneResp {
				s.state = StateError
				return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(doneResp.Command), "expected DONE_RESP")
			}
			s.state = StateReady
			s.Sink.Emit(events.StateChanged(s.state.String()))
			s.emit("sahara: handoff to firehose complete")
			return nil

		default:
			s.state = StateError
			return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(tlv.Command), "unexpected sahara command")
		}
	}
}

// serveReadData answers one READ_DATA{image_id, offset, length} request.
func (s *Sahara) serveReadData(ctx context.Context, payload []byte) error {
	if len(payload) < 12 {
		return flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	imageID := le32(payload[0:4])
	offset := le32(payload[4:8])
	length := le32(payload[8:12])

	if imageID != SaharaImageID {
		return flasherr.NewProtocolError(flasherr.ProtocolAbort, int(imageID), "unknown image id")
	}

	slice := make([]byte, length)
	n, err := s.Programmer.ReadAt(slice, int64(offset))
	if err != nil && err != io.EOF {
		return fmt.Errorf("sahara: read programmer slice: %w", err)
	}
	if err := s.Transport.WriteAll(ctx, slice[:n]); err != nil {
		return err
	}
	s.Sink.Emit(events.Progress(int64(offset)+int64(n), int64(offset)+int64(length)))
	return nil
}

func (s *Sahara) readTLV(ctx context.Context) (*framer.SaharaTLV, error) {
	header, err := s.Transport.ReadExact(ctx, 8, HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	var hdr [8]byte
	copy(hdr[:], header)
	length := framer.PeekLength(hdr)
	if length < 8 {
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	body, err := s.Transport.ReadExact(ctx, int(length)-8, FrameTimeout)
	if err != nil {
		return nil, err
	}
	full := append(append([]byte{}, header...), body...)
	return framer.DecodeSahara(full)
}

func (s *Sahara) writeTLV(ctx context.Context, command uint32, payload []byte) error {
	return s.Transport.WriteAll(ctx, framer.EncodeSahara(command, payload))
}
