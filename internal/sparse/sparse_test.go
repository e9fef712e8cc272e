package sparse

import (
	"bytes"
	"testing"
)

type recordingSink struct {
	writes []WriteChunk
	skips  []SkipTo
}

func (r *recordingSink) Write(w WriteChunk) error {
	r.writes = append(r.writes, w)
	return nil
}

func (r *recordingSink) Skip(s SkipTo) error {
	r.skips = append(r.skips, s)
	return nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := make([]byte, 3*DefaultBlockSize)
	for i := range raw[0:DefaultBlockSize] {
		raw[i] = byte(i)
	}
	// block 1 stays zero (DONT_CARE), block 2 is a repeating fill value
	for off := 2 * DefaultBlockSize; off < 3*DefaultBlockSize; off += 4 {
		raw[off] = 0xEF
		raw[off+1] = 0xBE
		raw[off+2] = 0xAD
		raw[off+3] = 0xDE
	}

	var buf bytes.Buffer
	if err := Encode(&buf, raw, DefaultBlockSize); err != nil {
		t.Fatalf("encode: %v", err)
	}

	sink := &recordingSink{}
	hdr, err := Decode(&buf, sink, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.BlockSize != DefaultBlockSize || hdr.TotalBlocks != 3 {
		t.Fatalf("unexpected header: %+v", hdr)
	}

	got := make([]byte, 0, len(raw))
	for _, w := range sink.writes {
		if int64(len(got)) != w.Offset {
			t.Fatalf("non-contiguous write at offset %d, have %d bytes", w.Offset, len(got))
		}
		got = append(got, w.Bytes...)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDecodeSkipsDontCare(t *testing.T) {
	raw := make([]byte, 3*DefaultBlockSize) // all zero: one big DONT_CARE chunk
	var buf bytes.Buffer
	if err := Encode(&buf, raw, DefaultBlockSize); err != nil {
		t.Fatalf("encode: %v", err)
	}
	sink := &recordingSink{}
	if _, err := Decode(&buf, sink, false); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(sink.writes))
	}
	if len(sink.skips) != 1 || sink.skips[0].Offset != int64(3*DefaultBlockSize) {
		t.Fatalf("unexpected skips: %+v", sink.skips)
	}
}

func TestDecodeRejectsZeroChunkBlocks(t *testing.T) {
	var buf bytes.Buffer
	fileHdr := []byte{
		0x3A, 0xFF, 0x26, 0xED, // magic
		1, 0, 0, 0, // major/minor
		28, 0, 12, 0, // file hdr size / chunk hdr size
		0, 0x10, 0, 0, // block size 4096
		1, 0, 0, 0, // total blocks
		1, 0, 0, 0, // total chunks
		0, 0, 0, 0, // checksum
	}
	buf.Write(fileHdr)
	chunkHdr := []byte{
		0xC3, 0xCA, 0, 0, // DONT_CARE
		0, 0, 0, 0, // chunk_blocks = 0 (malformed)
		12, 0, 0, 0,
	}
	buf.Write(chunkHdr)

	sink := &recordingSink{}
	if _, err := Decode(&buf, sink, false); err == nil {
		t.Fatalf("expected error for zero chunk_blocks")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, sparseFileHdrSize))
	sink := &recordingSink{}
	if _, err := Decode(buf, sink, false); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestLargeSparseWriteScenario(t *testing.T) {
	// spec.md §8 worked scenario 3: header{block=4096, total_blocks=2048,
	// total_chunks=3}, chunks [RAW blocks=1 (0xAA fill), DONT_CARE
	// blocks=2046, FILL blocks=1 value=0xDEADBEEF].
	var buf bytes.Buffer
	fileHdr := make([]byte, sparseFileHdrSize)
	put32 := func(b []byte, off int, v uint32) {
		b[off] = byte(v)
		b[off+1] = byte(v >> 8)
		b[off+2] = byte(v >> 16)
		b[off+3] = byte(v >> 24)
	}
	put32(fileHdr, 0, sparseMagic)
	fileHdr[4], fileHdr[5] = 1, 0
	fileHdr[8], fileHdr[9] = 28, 0
	fileHdr[10], fileHdr[11] = 12, 0
	put32(fileHdr, 12, 4096)
	put32(fileHdr, 16, 2048)
	put32(fileHdr, 20, 3)
	buf.Write(fileHdr)

	writeChunkHdr := func(kind uint16, blocks, totalSize uint32) {
		h := make([]byte, sparseChunkHdrSize)
		h[0], h[1] = byte(kind), byte(kind>>8)
		put32(h, 4, blocks)
		put32(h, 8, totalSize)
		buf.Write(h)
	}

	writeChunkHdr(chunkTypeRaw, 1, sparseChunkHdrSize+4096)
	rawBody := bytes.Repeat([]byte{0xAA}, 4096)
	buf.Write(rawBody)

	writeChunkHdr(chunkTypeDontCare, 2046, sparseChunkHdrSize)

	writeChunkHdr(chunkTypeFill, 1, sparseChunkHdrSize+4)
	buf.Write([]byte{0xEF, 0xBE, 0xAD, 0xDE})

	sink := &recordingSink{}
	if _, err := Decode(&buf, sink, false); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sink.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(sink.writes))
	}
	if sink.writes[0].Offset != 0 || !bytes.Equal(sink.writes[0].Bytes, rawBody) {
		t.Fatalf("unexpected first write")
	}
	wantOffset := int64(8384512)
	if sink.writes[1].Offset != wantOffset {
		t.Fatalf("expected second write at %d, got %d", wantOffset, sink.writes[1].Offset)
	}
	if len(sink.skips) != 1 || sink.skips[0].Offset != wantOffset {
		t.Fatalf("unexpected skip: %+v", sink.skips)
	}
}
