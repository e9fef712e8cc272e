// internal/storage/lpmetadata.go
// Android super-partition (LP-metadata) parser (spec.md §4.5). Geometry
// lives at a fixed offset; the header and its four descriptor tables
// (partitions/extents/groups/block-devices) follow immediately after.
// Grounded on the same field-by-field struct style as gpt.go/pmt.go.
package storage

import (
	"encoding/binary"

	"flashcore/internal/flasherr"
)

const (
	lpGeometryOffset = 4096
	lpMagic          = 0x414C5030 // "0PLA" little-endian, per spec.md §4.5
	lpPartitionEntrySize = 52
	lpExtentEntrySize    = 24
	lpDescriptorSize     = 12 // offset:u32, num_entries:u32, entry_size:u32
)

// LPGeometry is the fixed-offset geometry block (spec.md §4.5).
type LPGeometry struct {
	Checksum         [32]byte
	MetadataMaxSize  uint32
	MetadataSlotCount uint32
	LogicalBlockSize uint32
}

type lpDescriptor struct {
	offset    uint32
	numEntries uint32
	entrySize  uint32
}

// ParseLPMetadata parses an Android super-partition image's logical
// partition table out of data.
func ParseLPMetadata(data []byte) (Table, LPGeometry, error) {
	if len(data) < lpGeometryOffset+48 {
		return Table{}, LPGeometry{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "lp-metadata")
	}
	geomBlock := data[lpGeometryOffset : lpGeometryOffset+48]
	if binary.LittleEndian.Uint32(geomBlock[0:4]) != lpMagic {
		return Table{}, LPGeometry{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "lp-metadata")
	}

	var geom LPGeometry
	copy(geom.Checksum[:], geomBlock[4:36])
	geom.MetadataMaxSize = binary.LittleEndian.Uint32(geomBlock[36:40])
	geom.MetadataSlotCount = binary.LittleEndian.Uint32(geomBlock[40:44])
	geom.LogicalBlockSize = binary.LittleEndian.Uint32(geomBlock[44:48])

	headerOff := lpGeometryOffset + 48
	if len(data) < headerOff+4*lpDescriptorSize {
		return Table{}, geom, flasherr.NewStorageError(flasherr.StorageOutOfRange, "lp-metadata header")
	}
	header := data[headerOff:]
	partDesc := parseLPDescriptor(header[0:12])
	extentDesc := parseLPDescriptor(header[12:24])
	// groups (header[24:36]) and block-devices (header[36:48]) are parsed
	// by callers that need group quotas or multi-device layouts; neither
	// is required to produce the uniform Partition records this package
	// returns.

	extents, err := readLPExtents(data, extentDesc)
	if err != nil {
		return Table{}, geom, err
	}

	partitions, err := readLPPartitions(data, partDesc, extents, int(geom.LogicalBlockSize))
	if err != nil {
		return Table{}, geom, err
	}
	return Table{Partitions: partitions}, geom, nil
}

func parseLPDescriptor(b []byte) lpDescriptor {
	return lpDescriptor{
		offset:     binary.LittleEndian.Uint32(b[0:4]),
		numEntries: binary.LittleEndian.Uint32(b[4:8]),
		entrySize:  binary.LittleEndian.Uint32(b[8:12]),
	}
}

type lpExtent struct {
	NumSectors uint64
	TargetType uint32
	TargetData uint64
}

func readLPExtents(data []byte, desc lpDescriptor) ([]lpExtent, error) {
	base := int(desc.offset)
	entrySize := int(desc.entrySize)
	if entrySize == 0 {
		entrySize = lpExtentEntrySize
	}
	out := make([]lpExtent, 0, desc.numEntries)
	for i := 0; i < int(desc.numEntries); i++ {
		off := base + i*entrySize
		if off+20 > len(data) {
			return nil, flasherr.NewStorageError(flasherr.StorageOutOfRange, "lp-metadata extent")
		}
		e := data[off:]
		out = append(out, lpExtent{
			NumSectors: binary.LittleEndian.Uint64(e[0:8]),
			TargetType: binary.LittleEndian.Uint32(e[8:12]),
			TargetData: binary.LittleEndian.Uint64(e[12:20]),
		})
	}
	return out, nil
}

func readLPPartitions(data []byte, desc lpDescriptor, extents []lpExtent, logicalBlockSize int) ([]Partition, error) {
	base := int(desc.offset)
	entrySize := int(desc.entrySize)
	if entrySize == 0 {
		entrySize = lpPartitionEntrySize
	}
	var partitions []Partition
	for i := 0; i < int(desc.numEntries); i++ {
		off := base + i*entrySize
		if off+52 > len(data) {
			return nil, flasherr.NewStorageError(flasherr.StorageOutOfRange, "lp-metadata partition")
		}
		e := data[off:]
		name := cString(e[0:36])
		firstExtentIndex := binary.LittleEndian.Uint32(e[40:44])
		numExtents := binary.LittleEndian.Uint32(e[44:48])

		var totalSectors uint64
		for j := uint32(0); j < numExtents; j++ {
			idx := firstExtentIndex + j
			if int(idx) >= len(extents) {
				return nil, flasherr.NewStorageError(flasherr.StorageOutOfRange, "lp-metadata extent index")
			}
			totalSectors += extents[idx].NumSectors
		}

		sectorSize := 512
		if logicalBlockSize > 0 {
			sectorSize = logicalBlockSize
		}
		baseName, slot := splitSlotSuffix(name)
		partitions = append(partitions, Partition{
			Name:        baseName,
			Slot:        slot,
			LUN:         0,
			StartSector: 0, // logical partitions are extent-mapped, not LBA-contiguous
			SectorCount: totalSectors,
			SectorSize:  sectorSize,
		})
	}
	return partitions, nil
}
