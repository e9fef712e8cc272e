// internal/partop/mtk.go
// Device adapter over internal/protocol's XFlash machine: translates
// partop's partition-relative byte-extent addressing to XFlash's absolute
// byte-offset+part-type addressing.
package partop

import (
	"context"

	"flashcore/internal/protocol"
	"flashcore/internal/storage"
)

// MTKDevice drives partop operations over a live XFlash session. PartType
// selects which eMMC/UFS region XFlash addresses (0 = user data area,
// matching the chip's default boot mode); callers targeting boot1/boot2 or
// a GPP set it explicitly.
type MTKDevice struct {
	XFlash   *protocol.XFlash
	PartType byte
}

func (m MTKDevice) ChunkSize() int { return 0 }

func (m MTKDevice) absolute(p storage.Partition, byteOffset uint64) uint64 {
	return p.StartSector*uint64(p.SectorSize) + byteOffset
}

func (m MTKDevice) ReadChunk(ctx context.Context, p storage.Partition, byteOffset uint64, length int) ([]byte, error) {
	return m.XFlash.ReadFlash(ctx, m.absolute(p, byteOffset), uint64(length), m.PartType)
}

func (m MTKDevice) WriteChunk(ctx context.Context, p storage.Partition, byteOffset uint64, data []byte) error {
	return m.XFlash.WriteFlash(ctx, m.absolute(p, byteOffset), data, m.PartType)
}

func (m MTKDevice) EraseExtent(ctx context.Context, p storage.Partition) error {
	return m.XFlash.FormatFlash(ctx, p.StartSector*uint64(p.SectorSize), p.SectorCount*uint64(p.SectorSize), m.PartType)
}

func (m MTKDevice) FormatRegion(ctx context.Context, byteOffset, length uint64) error {
	return m.XFlash.FormatFlash(ctx, byteOffset, length, m.PartType)
}
