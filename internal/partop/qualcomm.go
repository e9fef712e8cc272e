// internal/partop/qualcomm.go
// Device adapter over internal/protocol's Firehose machine: translates
// partop's byte-extent addressing to Firehose's LUN+sector addressing.
package partop

import (
	"context"

	"flashcore/internal/flasherr"
	"flashcore/internal/protocol"
	"flashcore/internal/storage"
)

// QualcommDevice drives partop operations over a live Firehose session.
type QualcommDevice struct {
	Firehose *protocol.Firehose
}

func (q QualcommDevice) ChunkSize() int { return 0 }

func (q QualcommDevice) sectorRange(p storage.Partition, byteOffset uint64, length int) (startSector, numSectors uint64, err error) {
	if p.SectorSize == 0 || int(byteOffset)%p.SectorSize != 0 || length%p.SectorSize != 0 {
		return 0, 0, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, p.Name)
	}
	startSector = p.StartSector + byteOffset/uint64(p.SectorSize)
	numSectors = uint64(length) / uint64(p.SectorSize)
	return startSector, numSectors, nil
}

func (q QualcommDevice) ReadChunk(ctx context.Context, p storage.Partition, byteOffset uint64, length int) ([]byte, error) {
	startSector, numSectors, err := q.sectorRange(p, byteOffset, length)
	if err != nil {
		return nil, err
	}
	return q.Firehose.ReadChunk(ctx, p.LUN, startSector, numSectors, p.SectorSize)
}

func (q QualcommDevice) WriteChunk(ctx context.Context, p storage.Partition, byteOffset uint64, data []byte) error {
	startSector, numSectors, err := q.sectorRange(p, byteOffset, len(data))
	if err != nil {
		return err
	}
	return q.Firehose.ProgramChunk(ctx, p.LUN, startSector, numSectors, p.SectorSize, data)
}

func (q QualcommDevice) EraseExtent(ctx context.Context, p storage.Partition) error {
	return q.Firehose.Erase(ctx, p.LUN, p.StartSector, p.SectorCount)
}

// FormatRegion erases [byteOffset, byteOffset+length) within LUN 0 using
// Firehose's erase primitive (Firehose has no dedicated "format" command;
// spec.md §4.10 treats format as "region-wide erase plus a trim where
// supported" and Firehose's erase already trims the backing NAND/UFS
// region).
func (q QualcommDevice) FormatRegion(ctx context.Context, byteOffset, length uint64) error {
	const sectorSize = 512
	if byteOffset%sectorSize != 0 || length%sectorSize != 0 {
		return flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "")
	}
	return q.Firehose.Erase(ctx, 0, byteOffset/sectorSize, length/sectorSize)
}
