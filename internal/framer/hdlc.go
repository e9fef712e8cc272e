// internal/framer/hdlc.go
// HDLC framer (spec.md §4.2): 0x7E | escaped(payload) | escaped(crc16) |
// 0x7E, with 0x7E/0x7D byte-stuffed as 0x7D, byte^0x20. Used for SPRD-Diag
// (CRC16 taken little-endian) and SPRD-BootROM (big-endian) — parameterized
// by ByteOrder so one implementation serves both per spec.md's "the framer
// is parameterized" note.
package framer

import (
	"encoding/binary"

	"flashcore/internal/flasherr"
)

const (
	hdlcFlag   byte = 0x7E
	hdlcEscape byte = 0x7D
	hdlcXor    byte = 0x20
)

// ByteOrder selects how the trailing CRC16 is serialized.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// HdlcFrame is the decoded result of one HDLC frame (spec.md §3).
type HdlcFrame struct {
	Payload []byte
	CrcOK   bool
}

// EncodeHDLC wraps payload in an HDLC frame with the given CRC byte order.
func EncodeHDLC(payload []byte, order ByteOrder) []byte {
	crc := CRC16(payload)
	crcBytes := make([]byte, 2)
	if order == LittleEndian {
		binary.LittleEndian.PutUint16(crcBytes, crc)
	} else {
		binary.BigEndian.PutUint16(crcBytes, crc)
	}

	body := make([]byte, 0, len(payload)+2)
	body = append(body, payload...)
	body = append(body, crcBytes...)

	out := make([]byte, 0, len(body)*2+2)
	out = append(out, hdlcFlag)
	out = append(out, escape(body)...)
	out = append(out, hdlcFlag)
	return out
}

func escape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == hdlcFlag || b == hdlcEscape {
			out = append(out, hdlcEscape, b^hdlcXor)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// hdlcState is the decoder's position in spec.md §4.2's three-state graph.
type hdlcState int

const (
	hdlcOutsideFrame hdlcState = iota
	hdlcInFrame
	hdlcEscapePending
)

// HdlcDecoder is a streaming byte-at-a-time HDLC decoder. Feed bytes one at
// a time (or via FeedAll); a completed frame is returned the instant the
// closing flag arrives.
type HdlcDecoder struct {
	state   hdlcState
	order   ByteOrder
	buf     []byte
	maxSize int
}

// NewHdlcDecoder creates a decoder for the given CRC byte order. maxSize
// bounds an in-flight frame before it's reported as FrameOverflow.
func NewHdlcDecoder(order ByteOrder, maxSize int) *HdlcDecoder {
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	return &HdlcDecoder{order: order, maxSize: maxSize}
}

// Feed processes one byte. It returns a non-nil *HdlcFrame when a complete
// frame has just closed; err is non-nil on FrameError (bad CRC handled by
// CrcOK=false on the returned frame rather than an error — only structural
// violations produce an error here).
func (d *HdlcDecoder) Feed(b byte) (*HdlcFrame, error) {
	switch d.state {
	case hdlcOutsideFrame:
		if b == hdlcFlag {
			d.state = hdlcInFrame
			d.buf = d.buf[:0]
		}
		// Any other byte outside a frame is noise between frames; ignored.
		return nil, nil

	case hdlcInFrame:
		switch {
		case b == hdlcFlag:
			if len(d.buf) == 0 {
				// Back-to-back flags: still at frame start.
				return nil, nil
			}
			return d.closeFrame()
		case b == hdlcEscape:
			d.state = hdlcEscapePending
			return nil, nil
		default:
			return d.append(b)
		}

	case hdlcEscapePending:
		d.state = hdlcInFrame
		return d.append(b ^ hdlcXor)
	}
	return nil, nil
}

func (d *HdlcDecoder) append(b byte) (*HdlcFrame, error) {
	if len(d.buf) >= d.maxSize {
		d.state = hdlcOutsideFrame
		return nil, flasherr.NewFrameError(flasherr.FrameOverflow, nil)
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

func (d *HdlcDecoder) closeFrame() (*HdlcFrame, error) {
	d.state = hdlcOutsideFrame
	if len(d.buf) < 2 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	payload := d.buf[:len(d.buf)-2]
	crcBytes := d.buf[len(d.buf)-2:]

	var gotCrc uint16
	if d.order == LittleEndian {
		gotCrc = binary.LittleEndian.Uint16(crcBytes)
	} else {
		gotCrc = binary.BigEndian.Uint16(crcBytes)
	}
	wantCrc := CRC16(payload)

	out := make([]byte, len(payload))
	copy(out, payload)
	return &HdlcFrame{Payload: out, CrcOK: gotCrc == wantCrc}, nil
}

// FeedAll decodes every complete frame found in data, in order. A trailing
// partial frame is retained internally for the next FeedAll/Feed call.
func (d *HdlcDecoder) FeedAll(data []byte) ([]HdlcFrame, error) {
	var frames []HdlcFrame
	for _, b := range data {
		f, err := d.Feed(b)
		if err != nil {
			return frames, err
		}
		if f != nil {
			frames = append(frames, *f)
		}
	}
	return frames, nil
}

// DecodeHDLC is a convenience one-shot decode of a single complete frame
// (used by round-trip tests): EncodeHDLC(payload) fed through a fresh
// decoder must reproduce payload with CrcOK true.
func DecodeHDLC(data []byte, order ByteOrder) (*HdlcFrame, error) {
	d := NewHdlcDecoder(order, len(data)+16)
	frames, err := d.FeedAll(data)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, flasherr.NewFrameError(flasherr.FrameUnexpectedFlag, nil)
	}
	return &frames[0], nil
}
