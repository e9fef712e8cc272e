// internal/framer/xflash.go
// MTK Preloader/BROM + XFlash DA framer (spec.md §4.2): an echo-based
// protocol. The host writes a command byte and the device echoes it back
// before any reply payload; every multi-byte field is big-endian. Grounded
// on the teacher's fixed small-header-then-payload shape in
// BuildTxTaskFromHeader, generalized to the echo handshake XFlash layers on
// top of that shape.
package framer

import (
	"encoding/binary"

	"flashcore/internal/flasherr"
)

// BROM/Preloader handshake and XFlash command bytes named in spec.md §4.2.
const (
	XflashCmdStartCmd  byte = 0xA0
	XflashCmdAck       byte = 0x5A
	XflashCmdNack      byte = 0xA5
	XflashCmdSendDA    byte = 0xD7
	XflashCmdJumpDA    byte = 0xD5
	XflashCmdSyncSign  byte = 0x34

	xflashEchoMax = 64
)

// EncodeXflashEcho builds an echo-protocol command: the command byte
// followed by a big-endian parameter block. On the wire the device
// immediately echoes the command byte back before any reply, which
// DecodeXflashEcho verifies.
func EncodeXflashEcho(command byte, params ...uint32) []byte {
	out := make([]byte, 1+4*len(params))
	out[0] = command
	for i, p := range params {
		binary.BigEndian.PutUint32(out[1+4*i:5+4*i], p)
	}
	return out
}

// XflashEchoFrame is one decoded echo-protocol exchange: the command that
// was echoed and any big-endian reply words following it.
type XflashEchoFrame struct {
	Command byte
	Words   []uint32
}

// DecodeXflashEcho parses an echo reply: the first byte must equal want (the
// command just sent), and wordCount trailing big-endian u32 words follow.
// A mismatched echo byte is a FrameError of kind FrameEchoMismatch:
// the device either desynced or rejected the command outright.
func DecodeXflashEcho(data []byte, want byte, wordCount int) (*XflashEchoFrame, error) {
	if len(data) < 1 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	if data[0] != want {
		return nil, flasherr.NewFrameError(flasherr.FrameEchoMismatch, nil)
	}
	need := 1 + 4*wordCount
	if len(data) < need {
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	words := make([]uint32, wordCount)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(data[1+4*i : 5+4*i])
	}
	return &XflashEchoFrame{Command: data[0], Words: words}, nil
}

// XflashDAPacket is a length-prefixed Download-Agent payload chunk, the
// shape XFlash uses once control has moved into the second-stage DA
// (spec.md §4.4's "send-stage2" step): a big-endian u32 length followed by
// exactly that many payload bytes. No cap is applied to the length.
type XflashDAPacket struct {
	Length  uint32
	Payload []byte
}

// EncodeXflashDA frames one DA payload chunk.
func EncodeXflashDA(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// DecodeXflashDA parses one length-prefixed DA payload chunk.
func DecodeXflashDA(data []byte) (*XflashDAPacket, error) {
	if len(data) < 4 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	length := binary.BigEndian.Uint32(data[0:4])
	if int(length) != len(data)-4 {
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	payload := make([]byte, length)
	copy(payload, data[4:])
	return &XflashDAPacket{Length: length, Payload: payload}, nil
}
