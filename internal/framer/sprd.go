// internal/framer/sprd.go
// SPRD BootROM framer (spec.md §4.2): an outer HDLC frame wraps a fixed
// header `type:u16_be | length:u16_be | data[length]`. Grounded on the
// HDLC layer above plus the teacher's fixed-header-then-payload packet
// shape in BuildTxTaskFromHeader/buildTxConfigPacket (u8/u16 header fields
// followed by a variable body), generalized to SPRD's big-endian u16 type
// and length.
package framer

import (
	"encoding/binary"

	"flashcore/internal/flasherr"
)

// BSL command/reply types named in spec.md §4.2.
const (
	BslCmdConnect  uint16 = 0x00
	BslCmdStartData uint16 = 0x01
	BslCmdMidstData uint16 = 0x02
	BslCmdEndData   uint16 = 0x03
	BslCmdExecData  uint16 = 0x04

	BslRepAck uint16 = 0x80
	BslRepVer uint16 = 0x81
	// 0x82..0x9F are vendor error codes; BslRepIsErrorCode reports that.
)

// BslRepIsErrorCode reports whether a reply type is one of the BSL error
// codes (0x82..0x9F).
func BslRepIsErrorCode(t uint16) bool {
	return t >= 0x82 && t <= 0x9F
}

// SprdFrame is the decoded result of one SPRD length-tagged frame (spec.md
// §3's SprdFrame{type, payload}).
type SprdFrame struct {
	Type    uint16
	Payload []byte
}

// EncodeSprd builds the `type|length|data` body and wraps it in an HDLC
// frame using order (big-endian for BootROM per spec.md §4.2).
func EncodeSprd(frameType uint16, data []byte, order ByteOrder) []byte {
	body := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(body[0:2], frameType)
	binary.BigEndian.PutUint16(body[2:4], uint16(len(data)))
	copy(body[4:], data)
	return EncodeHDLC(body, order)
}

// DecodeSprd unwraps one HDLC frame and parses its SPRD header. A frame
// whose HDLC CRC did not validate (hf.CrcOK false) is rejected with
// FrameBadCrc, matching spec.md §3's invariant that a frame failing its
// CRC/length contract is never delivered upward.
func DecodeSprd(hf HdlcFrame) (*SprdFrame, error) {
	if !hf.CrcOK {
		return nil, flasherr.NewFrameError(flasherr.FrameBadCrc, nil)
	}
	if len(hf.Payload) < 4 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	frameType := binary.BigEndian.Uint16(hf.Payload[0:2])
	length := binary.BigEndian.Uint16(hf.Payload[2:4])
	if int(length) != len(hf.Payload)-4 {
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	data := make([]byte, length)
	copy(data, hf.Payload[4:])
	return &SprdFrame{Type: frameType, Payload: data}, nil
}
