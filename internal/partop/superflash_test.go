package partop

import (
	"bytes"
	"context"
	"io"
	"testing"

	"flashcore/internal/events"
	"flashcore/internal/storage"
)

type fakeFile struct {
	*bytes.Reader
}

func (f fakeFile) Close() error { return nil }

func withFakeFiles(t *testing.T, files map[string][]byte) {
	t.Helper()
	orig := openFile
	openFile = func(path string) (io.ReadCloser, int64, error) {
		data, ok := files[path]
		if !ok {
			return nil, 0, &fakeNotFoundError{path}
		}
		return fakeFile{bytes.NewReader(data)}, int64(len(data)), nil
	}
	t.Cleanup(func() { openFile = orig })
}

type fakeNotFoundError struct{ path string }

func (e *fakeNotFoundError) Error() string { return "not found: " + e.path }

func TestSuperFlashHappyPath(t *testing.T) {
	withFakeFiles(t, map[string][]byte{
		"/system.img": bytes.Repeat([]byte{0x01}, 2048),
		"/vendor.img": bytes.Repeat([]byte{0x02}, 1024),
		"/super.meta": bytes.Repeat([]byte{0x03}, 512),
	})
	table := storage.Table{Partitions: []storage.Partition{
		{Name: "system", SectorSize: 512, SectorCount: 4},
		{Name: "vendor", SectorSize: 512, SectorCount: 2},
		{Name: "super", SectorSize: 512, SectorCount: 1},
	}}
	def := SuperDef{
		NVID: "1",
		Partitions: []SuperDefPartition{
			{Name: "system", Path: "/system.img"},
			{Name: "vendor", Path: "/vendor.img"},
		},
		MetaPath: "/super.meta",
	}
	d := newFakeDevice()
	sink := events.NewSink(16)
	result, err := SuperFlash(context.Background(), d, table, def, sink)
	if err != nil {
		t.Fatalf("SuperFlash: %v", err)
	}
	if result.Failed() {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if len(result.Children) != 2 {
		t.Fatalf("expected 2 child results, got %d", len(result.Children))
	}
	if !bytes.Equal(d.data["super"], bytes.Repeat([]byte{0x03}, 512)) {
		t.Fatalf("expected super-meta flashed last")
	}
}

func TestSuperFlashFailsFastOnMissingChild(t *testing.T) {
	withFakeFiles(t, map[string][]byte{
		"/system.img": bytes.Repeat([]byte{0x01}, 2048),
		"/super.meta": bytes.Repeat([]byte{0x03}, 512),
	})
	table := storage.Table{Partitions: []storage.Partition{
		{Name: "system", SectorSize: 512, SectorCount: 4},
		{Name: "super", SectorSize: 512, SectorCount: 1},
	}}
	def := SuperDef{
		Partitions: []SuperDefPartition{
			{Name: "system", Path: "/system.img"},
			{Name: "missing_child", Path: "/nope.img"},
		},
		MetaPath: "/super.meta",
	}
	d := newFakeDevice()
	sink := events.NewSink(16)
	result, err := SuperFlash(context.Background(), d, table, def, sink)
	if err == nil {
		t.Fatalf("expected fail-fast error on missing child")
	}
	if len(result.Children) != 2 {
		t.Fatalf("expected system to succeed then missing_child reported, got %d entries", len(result.Children))
	}
	if result.Children[0].Err != nil {
		t.Fatalf("expected system child to have succeeded: %v", result.Children[0].Err)
	}
	if result.Children[1].Err == nil {
		t.Fatalf("expected missing_child to be reported as failed")
	}
	// super-meta must never be written once a child fails.
	if _, ok := d.data["super"]; ok {
		t.Fatalf("super-meta should not be flashed after a child failure")
	}
}

func TestParseSuperDef(t *testing.T) {
	raw := []byte(`{"nv_id":"1","partitions":[{"name":"system","path":"/a.img","slot":"a"}],"meta_path":"/super.meta"}`)
	def, err := ParseSuperDef(raw)
	if err != nil {
		t.Fatalf("ParseSuperDef: %v", err)
	}
	if def.NVID != "1" || len(def.Partitions) != 1 || def.Partitions[0].Slot != "a" || def.MetaPath != "/super.meta" {
		t.Fatalf("unexpected parse: %+v", def)
	}
}
