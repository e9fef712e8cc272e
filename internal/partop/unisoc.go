// internal/partop/unisoc.go
// Device adapter over internal/protocol's SprdBootROM machine, which
// addresses partitions by name directly rather than by LUN/sector — the
// adapter just forwards partop's relative byte offsets.
package partop

import (
	"context"

	"flashcore/internal/flasherr"
	"flashcore/internal/protocol"
	"flashcore/internal/storage"
)

// UnisocDevice drives partop operations over a live FDL2 session.
type UnisocDevice struct {
	BootROM *protocol.SprdBootROM
}

func (u UnisocDevice) ChunkSize() int { return 0 }

func (u UnisocDevice) ReadChunk(ctx context.Context, p storage.Partition, byteOffset uint64, length int) ([]byte, error) {
	return u.BootROM.ReadPartition(ctx, p.Name, uint32(byteOffset), uint32(length))
}

func (u UnisocDevice) WriteChunk(ctx context.Context, p storage.Partition, byteOffset uint64, data []byte) error {
	return u.BootROM.WritePartition(ctx, p.Name, uint32(byteOffset), data)
}

func (u UnisocDevice) EraseExtent(ctx context.Context, p storage.Partition) error {
	return u.BootROM.ErasePartition(ctx, p.Name)
}

// FormatRegion is unsupported: Unisoc's FDL wire protocol has no
// region-wide format primitive, only per-partition erase (spec.md §4.10:
// "format... where supported").
func (u UnisocDevice) FormatRegion(ctx context.Context, byteOffset, length uint64) error {
	return flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "unisoc: format unsupported")
}
