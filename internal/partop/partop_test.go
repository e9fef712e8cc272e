package partop

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/sparse"
	"flashcore/internal/storage"
)

// fakeDevice is an in-memory Device backed by a byte slice per partition
// name, recording every write for assertions.
type fakeDevice struct {
	chunkSize int
	data      map[string][]byte
	writes    []sparse.WriteChunk
	erased    []string
	formatted [][2]uint64
	failRead  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{data: map[string][]byte{}}
}

func (f *fakeDevice) ChunkSize() int { return f.chunkSize }

func (f *fakeDevice) ReadChunk(ctx context.Context, p storage.Partition, byteOffset uint64, length int) ([]byte, error) {
	if f.failRead {
		return nil, errors.New("read failed")
	}
	buf := f.data[p.Name]
	end := int(byteOffset) + length
	if end > len(buf) {
		padded := make([]byte, end)
		copy(padded, buf)
		buf = padded
		f.data[p.Name] = buf
	}
	return append([]byte(nil), buf[byteOffset:end]...), nil
}

func (f *fakeDevice) WriteChunk(ctx context.Context, p storage.Partition, byteOffset uint64, data []byte) error {
	buf := f.data[p.Name]
	end := int(byteOffset) + len(data)
	if end > len(buf) {
		padded := make([]byte, end)
		copy(padded, buf)
		buf = padded
	}
	copy(buf[byteOffset:], data)
	f.data[p.Name] = buf
	f.writes = append(f.writes, sparse.WriteChunk{Offset: int64(byteOffset), Bytes: append([]byte(nil), data...)})
	return nil
}

func (f *fakeDevice) EraseExtent(ctx context.Context, p storage.Partition) error {
	f.erased = append(f.erased, p.Name)
	delete(f.data, p.Name)
	return nil
}

func (f *fakeDevice) FormatRegion(ctx context.Context, byteOffset, length uint64) error {
	f.formatted = append(f.formatted, [2]uint64{byteOffset, length})
	return nil
}

func testPartition(name string, sectors uint64) storage.Partition {
	return storage.Partition{Name: name, SectorSize: 512, SectorCount: sectors}
}

func TestReadStreamsFullExtent(t *testing.T) {
	d := newFakeDevice()
	d.chunkSize = 512
	p := testPartition("boot", 4)
	want := bytes.Repeat([]byte("0123456789ABCDEF"), 128)
	d.data["boot"] = append([]byte(nil), want...)

	var buf bytes.Buffer
	sink := events.NewSink(16)
	if err := Read(context.Background(), d, p, &buf, sink); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("read mismatch: got %d bytes want %d", buf.Len(), len(want))
	}
}

func TestWriteStreamsRawChunks(t *testing.T) {
	d := newFakeDevice()
	d.chunkSize = 512
	p := testPartition("boot", 4)
	payload := bytes.Repeat([]byte{0xAB}, 2048)

	sink := events.NewSink(16)
	if err := Write(context.Background(), d, p, bytes.NewReader(payload), int64(len(payload)), sink); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(d.data["boot"], payload) {
		t.Fatalf("write mismatch")
	}
	if len(d.writes) != 4 {
		t.Fatalf("expected 4 chunk writes, got %d", len(d.writes))
	}
}

func TestWriteRejectsShortInput(t *testing.T) {
	d := newFakeDevice()
	p := testPartition("boot", 4)
	sink := events.NewSink(16)
	err := Write(context.Background(), d, p, bytes.NewReader([]byte("short")), 2048, sink)
	if err == nil {
		t.Fatalf("expected size mismatch error")
	}
	var sErr *flasherr.StorageError
	if !errors.As(err, &sErr) || sErr.Kind != flasherr.StorageSizeMismatch {
		t.Fatalf("expected StorageSizeMismatch, got %v", err)
	}
}

func TestWriteSparseDrivesOneWritePerChunk(t *testing.T) {
	d := newFakeDevice()
	p := testPartition("system", 8) // 4096 bytes

	var stream bytes.Buffer
	raw := make([]byte, 4096)
	for i := 0; i < 512; i++ {
		raw[i] = 0xAA
	}
	// raw[512:4096] stays zero -> one DONT_CARE chunk when encoded.
	if err := sparse.Encode(&stream, raw, 512); err != nil {
		t.Fatalf("encode: %v", err)
	}

	sink := events.NewSink(16)
	if _, err := WriteSparse(context.Background(), d, p, &stream, false, sink); err != nil {
		t.Fatalf("WriteSparse: %v", err)
	}
	if len(d.writes) != 1 {
		t.Fatalf("expected exactly one underlying write for the FILL chunk, got %d", len(d.writes))
	}
	if d.writes[0].Offset != 0 || !bytes.Equal(d.writes[0].Bytes, raw[:512]) {
		t.Fatalf("unexpected write: %+v", d.writes[0])
	}
}

func TestEraseAndFormat(t *testing.T) {
	d := newFakeDevice()
	p := testPartition("cache", 4)
	sink := events.NewSink(16)
	if err := Erase(context.Background(), d, p, sink); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if len(d.erased) != 1 || d.erased[0] != "cache" {
		t.Fatalf("expected erase recorded, got %v", d.erased)
	}
	if err := Format(context.Background(), d, 0, 4096, sink); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(d.formatted) != 1 || d.formatted[0] != [2]uint64{0, 4096} {
		t.Fatalf("expected format recorded, got %v", d.formatted)
	}
}

func TestReadCancellation(t *testing.T) {
	d := newFakeDevice()
	d.chunkSize = 512
	p := testPartition("boot", 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := events.NewSink(16)
	err := Read(ctx, d, p, io.Discard, sink)
	var cErr *flasherr.CancelledError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
}

func TestForEachSlotBothIteratesAndFailsFast(t *testing.T) {
	table := storage.Table{Partitions: []storage.Partition{
		{Name: "boot", Slot: "a", SectorSize: 512, SectorCount: 4},
		{Name: "boot", Slot: "b", SectorSize: 512, SectorCount: 4},
	}}
	var seen []string
	err := ForEachSlot(table, "boot", "both", func(p storage.Partition) error {
		seen = append(seen, p.Slot)
		if p.Slot == "b" {
			return errors.New("boom")
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected failure on slot b")
	}
	if len(seen) != 2 {
		t.Fatalf("expected both slots attempted, got %v", seen)
	}
}

func TestForEachSlotAmbiguousWithoutSlot(t *testing.T) {
	table := storage.Table{Partitions: []storage.Partition{
		{Name: "boot", Slot: "a", SectorSize: 512, SectorCount: 4},
		{Name: "boot", Slot: "b", SectorSize: 512, SectorCount: 4},
	}}
	err := ForEachSlot(table, "boot", "", func(p storage.Partition) error { return nil })
	var sErr *flasherr.StorageError
	if !errors.As(err, &sErr) || sErr.Kind != flasherr.StorageAmbiguous {
		t.Fatalf("expected Ambiguous, got %v", err)
	}
}
