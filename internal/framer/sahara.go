// internal/framer/sahara.go
// Sahara TLV framer (spec.md §4.2): fixed header `command:u32_le |
// length:u32_le | body[length-8]`. Grounded on the teacher's
// encoding/binary.LittleEndian field-by-field struct layout in
// ParseRxNonce/BuildTxTaskFromHeader, generalized from a mining-specific
// packet to Sahara's generic TLV.
package framer

import (
	"encoding/binary"

	"flashcore/internal/flasherr"
)

// Sahara commands of interest (spec.md §4.2).
const (
	SaharaHello       uint32 = 0x01
	SaharaHelloResp   uint32 = 0x02
	SaharaReadData    uint32 = 0x03
	SaharaEndTransfer uint32 = 0x04
	SaharaDone        uint32 = 0x05
	SaharaDoneResp    uint32 = 0x06
	SaharaReadData64  uint32 = 0x12
)

// SaharaTLV is the decoded result of one Sahara command (spec.md §3).
type SaharaTLV struct {
	Command uint32
	Payload []byte
}

// EncodeSahara serializes command||payload into the fixed Sahara header.
func EncodeSahara(command uint32, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], command)
	binary.LittleEndian.PutUint32(out[4:8], uint32(8+len(payload)))
	copy(out[8:], payload)
	return out
}

// DecodeSahara parses a complete Sahara TLV from data. data must be exactly
// one TLV (length-prefixed framing means the caller — internal/protocol —
// reads exactly `length` bytes off the transport before calling this).
func DecodeSahara(data []byte) (*SaharaTLV, error) {
	if len(data) < 8 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	command := binary.LittleEndian.Uint32(data[0:4])
	length := binary.LittleEndian.Uint32(data[4:8])
	if int(length) != len(data) {
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	payload := make([]byte, len(data)-8)
	copy(payload, data[8:])
	return &SaharaTLV{Command: command, Payload: payload}, nil
}

// PeekLength reads just the length field out of a raw 8-byte Sahara header,
// so internal/protocol's Sahara state machine can read the fixed header
// first, then read exactly length-8 more bytes for the body — mirroring how
// a length-prefixed protocol is normally pumped off a Transport.
func PeekLength(header [8]byte) uint32 {
	return binary.LittleEndian.Uint32(header[4:8])
}

// PeekCommand reads just the command field out of a raw 8-byte header.
func PeekCommand(header [8]byte) uint32 {
	return binary.LittleEndian.Uint32(header[0:4])
}
