// internal/storage/pac.go
// Unisoc PAC archive TOC parser (spec.md §4.5): a fixed header carrying a
// version tag and product name, followed by a list of 512-byte fixed
// partition descriptors. Grounded on the same field-by-field struct style
// as gpt.go/pmt.go.
package storage

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"flashcore/internal/flasherr"
)

const (
	pacDescriptorSize = 512
	pacVersionLen      = 24
	pacProductNameLen  = 512 // UTF-16, generous per real-world PAC headers
)

var pacVersionTags = [][]byte{
	append([]byte("BP_R1.0.0"), make([]byte, pacVersionLen-len("BP_R1.0.0"))...),
	append([]byte("BP_R2.0.1"), make([]byte, pacVersionLen-len("BP_R2.0.1"))...),
}

// PACPartitionDescriptor is one 512-byte on-disk partition record (spec.md
// §4.5).
type PACPartitionDescriptor struct {
	FileID     string
	FileName   string
	DataOffset uint64
	DataSize   uint64
	FlashFlags uint32
}

// ParsePAC parses a Unisoc PAC archive's table of contents out of data.
// Only the TOC header and descriptor list are interpreted here; the
// payload bytes for each partition live at DataOffset in the same archive
// and are read by internal/partop when flashing.
func ParsePAC(data []byte) (Table, error) {
	if len(data) < 16 {
		return Table{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "pac")
	}
	tag := data[0:pacVersionLen]
	recognized := false
	for _, want := range pacVersionTags {
		if bytes.HasPrefix(tag, want[:9]) {
			recognized = true
			break
		}
	}
	if !recognized {
		return Table{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "pac")
	}

	off := pacVersionLen
	// product name (pacProductNameLen bytes UTF-16) — consumed but not
	// surfaced by this package; callers wanting a display name parse it
	// directly from the header bytes.
	off += pacProductNameLen

	if off+8 > len(data) {
		return Table{}, flasherr.NewStorageError(flasherr.StorageOutOfRange, "pac header")
	}
	partitionCount := binary.LittleEndian.Uint32(data[off : off+4])
	listOffset := binary.LittleEndian.Uint32(data[off+4 : off+8])

	var partitions []Partition
	for i := uint32(0); i < partitionCount; i++ {
		start := int(listOffset) + int(i)*pacDescriptorSize
		if start+pacDescriptorSize > len(data) {
			return Table{}, flasherr.NewStorageError(flasherr.StorageOutOfRange, "pac descriptor")
		}
		desc := parsePACDescriptor(data[start : start+pacDescriptorSize])
		baseName, slot := splitSlotSuffix(desc.FileID)
		partitions = append(partitions, Partition{
			Name:        baseName,
			Slot:        slot,
			LUN:         0,
			StartSector: desc.DataOffset / 512,
			SectorCount: (desc.DataSize + 511) / 512,
			SectorSize:  512,
			Attributes:  uint64(desc.FlashFlags),
		})
	}
	return Table{Partitions: partitions}, nil
}

func parsePACDescriptor(b []byte) PACPartitionDescriptor {
	fileIDLen := 256
	fileNameLen := 192
	fileID := decodeUTF16NameBytes(b[0:fileIDLen])
	fileName := decodeUTF16NameBytes(b[fileIDLen : fileIDLen+fileNameLen])
	off := fileIDLen + fileNameLen
	dataOffset := binary.LittleEndian.Uint64(b[off : off+8])
	dataSize := binary.LittleEndian.Uint64(b[off+8 : off+16])
	flashFlags := binary.LittleEndian.Uint32(b[off+16 : off+20])
	return PACPartitionDescriptor{
		FileID:     fileID,
		FileName:   fileName,
		DataOffset: dataOffset,
		DataSize:   dataSize,
		FlashFlags: flashFlags,
	}
}

func decodeUTF16NameBytes(raw []byte) string {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i : 2*i+2])
	}
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}
