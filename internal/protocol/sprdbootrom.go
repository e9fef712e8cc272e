// internal/protocol/sprdbootrom.go
// Unisoc/Spreadtrum BootROM state machine (spec.md §4.3): HDLC+SPRD framed
// CONNECT/VER handshake, then a START/MIDST/END/EXEC loader-transfer
// sequence reused at FDL1 and FDL2, then partition ops once a DA is live.
// Grounded on the teacher's buildTxTaskPacket/pollForNonce chunked-transfer
// loop, generalized from a single mining task to an arbitrary-length loader
// body split into MIDST_DATA chunks.
package protocol

import (
	"context"
	"time"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/framer"
	"flashcore/internal/transport"
)

// SprdBootROM drives the Unisoc BootROM/FDL wire protocol over t. The same
// machine instance is reused across FDL1 and FDL2: Connect only needs to
// run once per power cycle, and LoadAndExec is called again at the higher
// capability level once FDL1 is live (spec.md §4.3).
type SprdBootROM struct {
	Transport transport.Transport
	Sink      events.Sink
	Log       *flashlog.Logger

	decoder *framer.HdlcDecoder
	state   State
}

// NewSprdBootROM constructs a SprdBootROM machine bound to t.
func NewSprdBootROM(t transport.Transport, sink events.Sink, log *flashlog.Logger) *SprdBootROM {
	return &SprdBootROM{
		Transport: t, Sink: sink, Log: log,
		decoder: framer.NewHdlcDecoder(framer.BigEndian, 1<<20),
		state:   StateDisconnected,
	}
}

// State reports the machine's current lifecycle node.
func (s *SprdBootROM) State() State { return s.state }

// Connect sends BSL_CMD_CONNECT and expects BSL_REP_VER carrying the boot
// string (spec.md §4.3).
func (s *SprdBootROM) Connect(ctx context.Context) (bootString string, err error) {
	s.state = StateHandshaking
	s.Sink.Emit(events.StateChanged(s.state.String()))

	if err := s.send(ctx, framer.BslCmdConnect, nil); err != nil {
		s.state = StateError
		return "", err
	}
	frame, err := s.recv(ctx, HandshakeTimeout)
	if err != nil {
		s.state = StateError
		return "", err
	}
	if frame.Type != framer.BslRepVer {
		s.state = StateError
		return "", flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(frame.Type), "expected BSL_REP_VER")
	}

	s.state = StateReady
	s.Sink.Emit(events.StateChanged(s.state.String()))
	return string(frame.Payload), nil
}

// LoadAndExec performs one loader-transfer sequence: START_DATA(addr,
// total_len) -> MIDST_DATA(chunk)* -> END_DATA -> EXEC_DATA(addr). Used for
// FDL1 and, at the next capability level, FDL2 (spec.md §4.3).
func (s *SprdBootROM) LoadAndExec(ctx context.Context, addr uint32, data []byte, chunkSize int) error {
	s.state = StateInOperation
	s.Sink.Emit(events.StateChanged(s.state.String()))

	startBody := make([]byte, 8)
	putBE32(startBody[0:4], addr)
	putBE32(startBody[4:8], uint32(len(data)))
	if err := s.roundTrip(ctx, framer.BslCmdStartData, startBody); err != nil {
		s.state = StateError
		return err
	}

	for sent := 0; sent < len(data); {
		end := sent + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := s.roundTrip(ctx, framer.BslCmdMidstData, data[sent:end]); err != nil {
			s.state = StateError
			return err
		}
		sent = end
		s.Sink.Emit(events.Progress(int64(sent), int64(len(data))))
	}

	if err := s.roundTrip(ctx, framer.BslCmdEndData, nil); err != nil {
		s.state = StateError
		return err
	}

	execBody := make([]byte, 4)
	putBE32(execBody, addr)
	if err := s.roundTrip(ctx, framer.BslCmdExecData, execBody); err != nil {
		s.state = StateError
		return err
	}

	s.state = StateReady
	s.Sink.Emit(events.StateChanged(s.state.String()))
	return nil
}

// ReadPartition issues a DA-level READ_PARTITION (FDL2+ capability). The
// frame type constants for FDL2-specific ops are vendor-assigned above the
// BSL_CMD range named in spec.md §4.2; 0x0200-series values here follow the
// convention SPRD loaders use once past the BootROM stage.
func (s *SprdBootROM) ReadPartition(ctx context.Context, name string, offset, length uint32) ([]byte, error) {
	body := make([]byte, 8+len(name))
	putBE32(body[0:4], offset)
	putBE32(body[4:8], length)
	copy(body[8:], name)
	if err := s.send(ctx, 0x0201, body); err != nil {
		return nil, err
	}
	frame, err := s.recv(ctx, FrameTimeout)
	if err != nil {
		return nil, err
	}
	if framer.BslRepIsErrorCode(frame.Type) {
		return nil, flasherr.NewProtocolError(flasherr.ProtocolNak, int(frame.Type), "read_partition rejected")
	}
	return frame.Payload, nil
}

// WritePartition issues a DA-level WRITE_PARTITION.
func (s *SprdBootROM) WritePartition(ctx context.Context, name string, offset uint32, data []byte) error {
	header := make([]byte, 8+len(name))
	putBE32(header[0:4], offset)
	putBE32(header[4:8], uint32(len(data)))
	copy(header[8:], name)
	body := append(header, data...)
	return s.roundTripType(ctx, 0x0202, body)
}

// ErasePartition issues a DA-level ERASE_PARTITION.
func (s *SprdBootROM) ErasePartition(ctx context.Context, name string) error {
	return s.roundTripType(ctx, 0x0203, []byte(name))
}

// Reset issues the DA-level RESET op.
func (s *SprdBootROM) Reset(ctx context.Context) error {
	return s.roundTripType(ctx, 0x0204, nil)
}

func (s *SprdBootROM) roundTrip(ctx context.Context, frameType uint16, body []byte) error {
	return s.roundTripType(ctx, frameType, body)
}

func (s *SprdBootROM) roundTripType(ctx context.Context, frameType uint16, body []byte) error {
	if err := s.send(ctx, frameType, body); err != nil {
		return err
	}
	frame, err := s.recv(ctx, FrameTimeout)
	if err != nil {
		return err
	}
	if framer.BslRepIsErrorCode(frame.Type) {
		return flasherr.NewProtocolError(flasherr.ProtocolNak, int(frame.Type), "bsl error reply")
	}
	if frame.Type != framer.BslRepAck {
		return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, int(frame.Type), "expected BSL_REP_ACK")
	}
	return nil
}

func (s *SprdBootROM) send(ctx context.Context, frameType uint16, body []byte) error {
	return s.Transport.WriteAll(ctx, framer.EncodeSprd(frameType, body, framer.BigEndian))
}

// recv reads bytes one at a time off the transport, feeding the session's
// HDLC decoder until a complete SPRD frame closes.
func (s *SprdBootROM) recv(ctx context.Context, timeout time.Duration) (*framer.SprdFrame, error) {
	for {
		b, err := s.Transport.ReadExact(ctx, 1, timeout)
		if err != nil {
			return nil, err
		}
		hf, decErr := s.decoder.Feed(b[0])
		if decErr != nil {
			return nil, decErr
		}
		if hf == nil {
			continue
		}
		return framer.DecodeSprd(*hf)
	}
}

func putBE32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}
