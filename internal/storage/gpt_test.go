package storage

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
)

// buildGPT assembles a minimal single-sector-size GPT image with one
// partition entry and correctly computed header/array CRCs, for round-trip
// testing ParseGPT against a hand-built image rather than a real disk.
func buildGPT(sectorSize int) []byte {
	const numEntries = 4
	const entrySize = 128
	arraySectors := (numEntries*entrySize + sectorSize - 1) / sectorSize
	totalSectors := 2 + arraySectors + 10 // header + array + some data

	data := make([]byte, totalSectors*sectorSize)

	entryArrayOff := 2 * sectorSize
	entry := data[entryArrayOff : entryArrayOff+entrySize]
	copy(entry[0:16], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}) // non-zero type GUID
	binary.LittleEndian.PutUint64(entry[32:40], 34)                                 // first LBA
	binary.LittleEndian.PutUint64(entry[40:48], 43)                                 // last LBA
	name := []byte("boot_a")
	for i, c := range name {
		binary.LittleEndian.PutUint16(entry[56+i*2:58+i*2], uint16(c))
	}

	arrayBytes := data[entryArrayOff : entryArrayOff+numEntries*entrySize]
	arrayCRC := crc32.ChecksumIEEE(arrayBytes)

	hdrOff := sectorSize
	hdr := data[hdrOff : hdrOff+92]
	copy(hdr[0:8], []byte(gptSignature))
	binary.LittleEndian.PutUint32(hdr[8:12], 0x00010000) // revision 1.0
	binary.LittleEndian.PutUint32(hdr[12:16], 92)         // header size
	binary.LittleEndian.PutUint64(hdr[24:32], 1)          // current LBA
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(totalSectors-1))
	binary.LittleEndian.PutUint64(hdr[40:48], 2)
	binary.LittleEndian.PutUint64(hdr[48:56], uint64(totalSectors-2))
	binary.LittleEndian.PutUint64(hdr[72:80], 2) // partition entries LBA
	binary.LittleEndian.PutUint32(hdr[80:84], numEntries)
	binary.LittleEndian.PutUint32(hdr[84:88], entrySize)
	binary.LittleEndian.PutUint32(hdr[88:92], arrayCRC)

	crcInput := make([]byte, 92)
	copy(crcInput, hdr)
	binary.LittleEndian.PutUint32(crcInput[16:20], 0)
	headerCRC := crc32.ChecksumIEEE(crcInput)
	binary.LittleEndian.PutUint32(hdr[16:20], headerCRC)

	return data
}

func TestParseGPTRoundTrip(t *testing.T) {
	for _, sectorSize := range []int{512, 4096} {
		data := buildGPT(sectorSize)
		table, hdr, err := ParseGPT(data)
		if err != nil {
			t.Fatalf("sector size %d: parse: %v", sectorSize, err)
		}
		if hdr.SectorSize != sectorSize {
			t.Fatalf("sector size %d: got header sector size %d", sectorSize, hdr.SectorSize)
		}
		if len(table.Partitions) != 1 {
			t.Fatalf("sector size %d: expected 1 partition, got %d", sectorSize, len(table.Partitions))
		}
		p := table.Partitions[0]
		if p.Name != "boot" || p.Slot != "a" {
			t.Fatalf("sector size %d: unexpected partition %+v", sectorSize, p)
		}
		if p.StartSector != 34 || p.SectorCount != 10 {
			t.Fatalf("sector size %d: unexpected range %+v", sectorSize, p)
		}
	}
}

func TestParseGPTRejectsBadSignature(t *testing.T) {
	data := make([]byte, 8192)
	if _, _, err := ParseGPT(data); err == nil {
		t.Fatalf("expected error for missing GPT signature")
	}
}
