package framer

import (
	"bytes"
	"testing"
)

// payloads includes both escape-significant bytes (0x7E/0x7D) named by the
// HDLC round-trip property, plus a plain ASCII case and an empty one.
var hdlcRoundTripPayloads = [][]byte{
	{},
	[]byte("hello"),
	{0x7E, 0x7D, 0x00, 0xFF, 0x7E, 0x7E, 0x7D, 0x7D},
	{0x01, 0x7D, 0x02, 0x7E, 0x03},
}

func TestHDLCRoundTrip(t *testing.T) {
	for _, order := range []ByteOrder{LittleEndian, BigEndian} {
		for _, payload := range hdlcRoundTripPayloads {
			encoded := EncodeHDLC(payload, order)
			frame, err := DecodeHDLC(encoded, order)
			if err != nil {
				t.Fatalf("order=%v payload=% X: decode: %v", order, payload, err)
			}
			if !frame.CrcOK {
				t.Fatalf("order=%v payload=% X: CRC did not validate", order, payload)
			}
			if !bytes.Equal(frame.Payload, payload) {
				t.Fatalf("order=%v payload=% X: got % X", order, payload, frame.Payload)
			}
		}
	}
}

func TestHDLCDecodeDetectsBadCRC(t *testing.T) {
	encoded := EncodeHDLC([]byte("hello"), LittleEndian)
	// Flip a payload byte after the flag but before the CRC so the frame
	// still closes structurally but the CRC no longer matches.
	corrupt := append([]byte{}, encoded...)
	corrupt[1] ^= 0xFF
	frame, err := DecodeHDLC(corrupt, LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.CrcOK {
		t.Fatalf("expected CRC mismatch on corrupted frame")
	}
}

func TestHDLCStreamingFeedAcrossMultipleFrames(t *testing.T) {
	first := EncodeHDLC([]byte("alpha"), BigEndian)
	second := EncodeHDLC([]byte{0x7E, 0x7D}, BigEndian)
	d := NewHdlcDecoder(BigEndian, 0)
	frames, err := d.FeedAll(append(append([]byte{}, first...), second...))
	if err != nil {
		t.Fatalf("FeedAll: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Payload) != "alpha" || !frames[0].CrcOK {
		t.Fatalf("unexpected first frame: %+v", frames[0])
	}
	if !bytes.Equal(frames[1].Payload, []byte{0x7E, 0x7D}) || !frames[1].CrcOK {
		t.Fatalf("unexpected second frame: %+v", frames[1])
	}
}

func TestSprdRoundTrip(t *testing.T) {
	for _, payload := range hdlcRoundTripPayloads {
		encoded := EncodeSprd(BslCmdMidstData, payload, BigEndian)
		hf, err := DecodeHDLC(encoded, BigEndian)
		if err != nil {
			t.Fatalf("payload=% X: DecodeHDLC: %v", payload, err)
		}
		sf, err := DecodeSprd(*hf)
		if err != nil {
			t.Fatalf("payload=% X: DecodeSprd: %v", payload, err)
		}
		if sf.Type != BslCmdMidstData {
			t.Fatalf("payload=% X: got type %#x", payload, sf.Type)
		}
		if !bytes.Equal(sf.Payload, payload) {
			t.Fatalf("payload=% X: got % X", payload, sf.Payload)
		}
	}
}

func TestSprdDecodeRejectsBadCRC(t *testing.T) {
	encoded := EncodeSprd(BslRepAck, []byte("x"), LittleEndian)
	encoded[1] ^= 0xFF
	hf, err := DecodeHDLC(encoded, LittleEndian)
	if err != nil {
		t.Fatalf("DecodeHDLC: %v", err)
	}
	if _, err := DecodeSprd(*hf); err == nil {
		t.Fatalf("expected FrameBadCrc for a corrupted frame")
	}
}

func TestSaharaRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x7E, 0x7D, 0xFF},
		bytes.Repeat([]byte{0xAB}, 64),
	}
	for _, payload := range payloads {
		encoded := EncodeSahara(SaharaReadData, payload)
		tlv, err := DecodeSahara(encoded)
		if err != nil {
			t.Fatalf("payload=% X: decode: %v", payload, err)
		}
		if tlv.Command != SaharaReadData {
			t.Fatalf("payload=% X: got command %#x", payload, tlv.Command)
		}
		if !bytes.Equal(tlv.Payload, payload) {
			t.Fatalf("payload=% X: got % X", payload, tlv.Payload)
		}

		var hdr [8]byte
		copy(hdr[:], encoded[:8])
		if got := PeekCommand(hdr); got != SaharaReadData {
			t.Fatalf("PeekCommand: got %#x", got)
		}
		if got := PeekLength(hdr); got != uint32(len(encoded)) {
			t.Fatalf("PeekLength: got %d want %d", got, len(encoded))
		}
	}
}

func TestSaharaDecodeRejectsLengthMismatch(t *testing.T) {
	encoded := EncodeSahara(SaharaHello, []byte("x"))
	if _, err := DecodeSahara(encoded[:len(encoded)-1]); err == nil {
		t.Fatalf("expected a length-mismatch error on a truncated TLV")
	}
}

func TestXflashEchoRoundTrip(t *testing.T) {
	cmd := EncodeXflashEcho(XflashCmdSendDA, 0x40000000, 0x1000)
	// A device echo reply: the command byte echoed back, no trailing words.
	reply := []byte{cmd[0]}
	frame, err := DecodeXflashEcho(reply, XflashCmdSendDA, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Command != XflashCmdSendDA {
		t.Fatalf("got command %#x", frame.Command)
	}
}

func TestXflashEchoRoundTripWithWords(t *testing.T) {
	reply := EncodeXflashEcho(XflashCmdAck, 0x7E7D0001, 0x0000FFFF)
	frame, err := DecodeXflashEcho(reply, XflashCmdAck, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frame.Words) != 2 || frame.Words[0] != 0x7E7D0001 || frame.Words[1] != 0x0000FFFF {
		t.Fatalf("unexpected words: %+v", frame.Words)
	}
}

func TestXflashEchoDetectsMismatch(t *testing.T) {
	reply := []byte{XflashCmdNack}
	if _, err := DecodeXflashEcho(reply, XflashCmdSendDA, 0); err == nil {
		t.Fatalf("expected EchoMismatch when the echoed byte differs")
	}
}

func TestXflashDARoundTrip(t *testing.T) {
	for _, payload := range hdlcRoundTripPayloads {
		encoded := EncodeXflashDA(payload)
		frame, err := DecodeXflashDA(encoded)
		if err != nil {
			t.Fatalf("payload=% X: decode: %v", payload, err)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("payload=% X: got % X", payload, frame.Payload)
		}
		if frame.Length != uint32(len(payload)) {
			t.Fatalf("payload=% X: got length %d", payload, frame.Length)
		}
	}
}

func TestFirehoseCommandPaddedToBlock(t *testing.T) {
	out := EncodeFirehoseCommand(`<configure verbose="0"/>`)
	if len(out)%firehoseBlock != 0 {
		t.Fatalf("expected padding to a %d-byte boundary, got %d bytes", firehoseBlock, len(out))
	}
	trimmed := bytes.TrimRight(out, "\x00")
	if !bytes.Contains(trimmed, []byte(`<configure verbose="0"/>`)) {
		t.Fatalf("expected inner body preserved, got %q", trimmed)
	}
}

func TestFirehoseDecodeFrameParsesLogsAndResponses(t *testing.T) {
	doc := []byte(`<?xml version="1.0" ?><data>` +
		`<log value="entering firehose"/>` +
		`<response value="ACK" rawmode="false"/>` +
		`</data>`)
	padded := make([]byte, firehoseBlock)
	copy(padded, doc)

	logs, responses, err := DecodeFirehoseFrame(padded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 || logs[0].Value != "entering firehose" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if len(responses) != 1 || responses[0].Value != "ACK" || responses[0].RawMode {
		t.Fatalf("unexpected responses: %+v", responses)
	}
}

func TestFirehoseDecodeFrameEmptyOnAllPadding(t *testing.T) {
	logs, responses, err := DecodeFirehoseFrame(make([]byte, firehoseBlock))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if logs != nil || responses != nil {
		t.Fatalf("expected no logs/responses for an all-NUL frame, got %+v %+v", logs, responses)
	}
}
