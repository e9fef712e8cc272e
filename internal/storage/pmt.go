// internal/storage/pmt.go
// MTK legacy PMT partition-table parser (spec.md §4.5): 4-byte ASCII magic
// ("PT" or " PT "), version-selected entry size, fixed 32-byte-name/u64/u64
// entries. Grounded on the same field-by-field struct style as gpt.go.
package storage

import (
	"bytes"
	"encoding/binary"

	"flashcore/internal/flasherr"
)

const (
	pmtEntrySizeV1 = 64
	pmtEntrySizeV2 = 128
	pmtNameLen     = 32
)

// ParsePMT parses an MTK legacy PMT partition table out of data.
func ParsePMT(data []byte) (Table, error) {
	if len(data) < 8 {
		return Table{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "pmt")
	}
	magic := data[0:4]
	if !bytes.Equal(magic, []byte("PT\x00\x00")) && !bytes.Equal(magic, []byte(" PT ")) {
		return Table{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "pmt")
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	entrySize := pmtEntrySizeV1
	if version >= 2 {
		entrySize = pmtEntrySizeV2
	}

	var partitions []Partition
	for off := 8; off+entrySize <= len(data); off += entrySize {
		entry := data[off : off+entrySize]
		if isZero(entry[:pmtNameLen]) {
			break // trailing unused entries terminate the table
		}
		name := cString(entry[:pmtNameLen])
		start := binary.LittleEndian.Uint64(entry[pmtNameLen : pmtNameLen+8])
		size := binary.LittleEndian.Uint64(entry[pmtNameLen+8 : pmtNameLen+16])

		base, slot := splitSlotSuffix(name)
		partitions = append(partitions, Partition{
			Name:        base,
			Slot:        slot,
			LUN:         0,
			StartSector: start / 512,
			SectorCount: size / 512,
			SectorSize:  512,
		})
	}
	return Table{Partitions: partitions}, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
