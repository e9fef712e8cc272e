// internal/storage/gpt.go
// GPT partition table parser (spec.md §4.5). Sector size is probed: 512 is
// tried first, then 4096, picking whichever validates signature+CRC.
// Grounded on the teacher's encoding/binary.LittleEndian field-by-field
// struct access in usb_device.go's ParseRxNonce, generalized to GPT's
// header+entry-array layout and its standard CRC-32 (hash/crc32, the same
// polynomial GPT itself specifies — no reason to hand-roll one when the
// standard library already implements it, unlike the SPRD CRC16 which has
// no stdlib equivalent).
package storage

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf16"

	"flashcore/internal/flasherr"
)

const gptSignature = "EFI PART"

// GPTHeader is the decoded primary (or backup) GPT header (spec.md §4.5).
type GPTHeader struct {
	Revision              uint32
	HeaderSize            uint32
	HeaderCRC32           uint32
	CurrentLBA            uint64
	BackupLBA             uint64
	FirstUsableLBA        uint64
	LastUsableLBA         uint64
	PartitionEntriesLBA   uint64
	NumEntries            uint32
	EntrySize             uint32
	PartitionArrayCRC32   uint32
	SectorSize            int
}

// ParseGPT parses a GPT layout out of a raw disk image, probing sector
// size 512 then 4096 as spec.md §4.5 requires ("read sector 1 at both
// sizes, pick the one whose signature validates").
func ParseGPT(data []byte) (Table, GPTHeader, error) {
	for _, sectorSize := range []int{512, 4096} {
		hdr, ok := tryParseGPTHeader(data, sectorSize)
		if ok {
			table, err := parseGPTEntries(data, hdr)
			return table, hdr, err
		}
	}
	return Table{}, GPTHeader{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "gpt")
}

func tryParseGPTHeader(data []byte, sectorSize int) (GPTHeader, bool) {
	off := sectorSize // sector 1
	if len(data) < off+92 {
		return GPTHeader{}, false
	}
	block := data[off : off+92]
	if string(block[0:8]) != gptSignature {
		return GPTHeader{}, false
	}

	headerSize := binary.LittleEndian.Uint32(block[12:16])
	storedCRC := binary.LittleEndian.Uint32(block[16:20])

	crcInput := make([]byte, headerSize)
	copy(crcInput, data[off:off+int(headerSize)])
	binary.LittleEndian.PutUint32(crcInput[16:20], 0)
	if crc32.ChecksumIEEE(crcInput) != storedCRC {
		return GPTHeader{}, false
	}

	return GPTHeader{
		Revision:            binary.LittleEndian.Uint32(block[8:12]),
		HeaderSize:          headerSize,
		HeaderCRC32:         storedCRC,
		CurrentLBA:          binary.LittleEndian.Uint64(block[24:32]),
		BackupLBA:           binary.LittleEndian.Uint64(block[32:40]),
		FirstUsableLBA:      binary.LittleEndian.Uint64(block[40:48]),
		LastUsableLBA:       binary.LittleEndian.Uint64(block[48:56]),
		PartitionEntriesLBA: binary.LittleEndian.Uint64(block[72:80]),
		NumEntries:          binary.LittleEndian.Uint32(block[80:84]),
		EntrySize:           binary.LittleEndian.Uint32(block[84:88]),
		PartitionArrayCRC32: binary.LittleEndian.Uint32(block[88:92]),
		SectorSize:          sectorSize,
	}, true
}

func parseGPTEntries(data []byte, hdr GPTHeader) (Table, error) {
	base := int(hdr.PartitionEntriesLBA) * hdr.SectorSize
	entrySize := int(hdr.EntrySize)
	arraySize := int(hdr.NumEntries) * entrySize
	if len(data) < base+arraySize {
		return Table{}, flasherr.NewStorageError(flasherr.StorageOutOfRange, "gpt entry array")
	}
	arrayBytes := data[base : base+arraySize]
	if crc32.ChecksumIEEE(arrayBytes) != hdr.PartitionArrayCRC32 {
		return Table{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "gpt array crc mismatch")
	}

	var partitions []Partition
	for i := 0; i < int(hdr.NumEntries); i++ {
		entry := arrayBytes[i*entrySize : (i+1)*entrySize]
		typeGUID := entry[0:16]
		if isZero(typeGUID) {
			continue // unused entry
		}
		firstLBA := binary.LittleEndian.Uint64(entry[32:40])
		lastLBA := binary.LittleEndian.Uint64(entry[40:48])
		attrs := binary.LittleEndian.Uint64(entry[48:56])
		name := decodeUTF16Name(entry[56:128])

		base, slot := splitSlotSuffix(name)
		partitions = append(partitions, Partition{
			Name:        base,
			Slot:        slot,
			LUN:         0,
			StartSector: firstLBA,
			SectorCount: lastLBA - firstLBA + 1,
			SectorSize:  hdr.SectorSize,
			Attributes:  attrs,
		})
	}
	return Table{Partitions: partitions}, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func decodeUTF16Name(raw []byte) string {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i : 2*i+2])
	}
	// Trim at the first NUL code unit.
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}

// splitSlotSuffix recognizes the conventional "_a"/"_b" A/B slot suffix
// (spec.md's supplemented "A/B slot-name inference" feature) and returns
// the base name plus the slot letter, or the name unchanged with an empty
// slot when no suffix matches.
func splitSlotSuffix(name string) (base, slot string) {
	if len(name) > 2 && name[len(name)-2] == '_' {
		switch name[len(name)-1] {
		case 'a', 'A':
			return name[:len(name)-2], "a"
		case 'b', 'B':
			return name[:len(name)-2], "b"
		}
	}
	return name, ""
}
