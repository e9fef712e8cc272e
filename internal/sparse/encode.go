// internal/sparse/encode.go
// Sparse encoding (spec.md §4.6): scans a raw image block-by-block and
// emits RAW for non-uniform blocks, FILL for blocks that repeat a single
// u32, and DONT_CARE for all-zero blocks.
package sparse

import (
	"encoding/binary"
	"io"
)

const DefaultBlockSize = 4096

// Encode writes raw, a complete raw image whose length must be a multiple
// of blockSize, to w as an Android sparse image. blockSize of 0 selects
// DefaultBlockSize.
func Encode(w io.Writer, raw []byte, blockSize uint32) error {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	totalBlocks := uint32(len(raw)) / blockSize

	type encodedChunk struct {
		kind   uint16
		blocks uint32
		fill   uint32
		body   []byte
	}
	var chunks []encodedChunk

	for i := uint32(0); i < totalBlocks; i++ {
		block := raw[int64(i)*int64(blockSize) : int64(i+1)*int64(blockSize)]
		kind, fill := classifyBlock(block)

		if len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			if last.kind == kind && (kind == chunkTypeDontCare || (kind == chunkTypeFill && last.fill == fill)) {
				last.blocks++
				continue
			}
			if last.kind == chunkTypeRaw && kind == chunkTypeRaw {
				last.blocks++
				last.body = append(last.body, block...)
				continue
			}
		}

		c := encodedChunk{kind: kind, blocks: 1, fill: fill}
		if kind == chunkTypeRaw {
			c.body = append([]byte(nil), block...)
		}
		chunks = append(chunks, c)
	}

	fileHdr := make([]byte, sparseFileHdrSize)
	binary.LittleEndian.PutUint32(fileHdr[0:4], sparseMagic)
	binary.LittleEndian.PutUint16(fileHdr[4:6], 1) // major version
	binary.LittleEndian.PutUint16(fileHdr[6:8], 0) // minor version
	binary.LittleEndian.PutUint16(fileHdr[8:10], sparseFileHdrSize)
	binary.LittleEndian.PutUint16(fileHdr[10:12], sparseChunkHdrSize)
	binary.LittleEndian.PutUint32(fileHdr[12:16], blockSize)
	binary.LittleEndian.PutUint32(fileHdr[16:20], totalBlocks)
	binary.LittleEndian.PutUint32(fileHdr[20:24], uint32(len(chunks)))
	binary.LittleEndian.PutUint32(fileHdr[24:28], 0) // image checksum: unused by this encoder
	if _, err := w.Write(fileHdr); err != nil {
		return err
	}

	chunkHdr := make([]byte, sparseChunkHdrSize)
	for _, c := range chunks {
		var bodySize uint32
		switch c.kind {
		case chunkTypeRaw:
			bodySize = uint32(len(c.body))
		case chunkTypeFill:
			bodySize = 4
		case chunkTypeDontCare:
			bodySize = 0
		}
		binary.LittleEndian.PutUint16(chunkHdr[0:2], c.kind)
		binary.LittleEndian.PutUint16(chunkHdr[2:4], 0)
		binary.LittleEndian.PutUint32(chunkHdr[4:8], c.blocks)
		binary.LittleEndian.PutUint32(chunkHdr[8:12], sparseChunkHdrSize+bodySize)
		if _, err := w.Write(chunkHdr); err != nil {
			return err
		}
		switch c.kind {
		case chunkTypeRaw:
			if _, err := w.Write(c.body); err != nil {
				return err
			}
		case chunkTypeFill:
			fillBytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(fillBytes, c.fill)
			if _, err := w.Write(fillBytes); err != nil {
				return err
			}
		case chunkTypeDontCare:
			// no body
		}
	}
	return nil
}

// classifyBlock decides whether block is uniform (every little-endian u32
// word equals the first one) and returns DONT_CARE for an all-zero
// block, FILL for any other uniform block, or RAW otherwise.
func classifyBlock(block []byte) (kind uint16, fill uint32) {
	if len(block) < 4 || len(block)%4 != 0 {
		return chunkTypeRaw, 0
	}
	first := binary.LittleEndian.Uint32(block[0:4])
	for off := 0; off < len(block); off += 4 {
		if binary.LittleEndian.Uint32(block[off:off+4]) != first {
			return chunkTypeRaw, 0
		}
	}
	if first == 0 {
		return chunkTypeDontCare, 0
	}
	return chunkTypeFill, first
}
