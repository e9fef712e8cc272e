// internal/partop/superflash.go
// Qualcomm super-partition flashing (spec.md §4.10): parses a caller-
// supplied super_def.<nv>.json payload listing child partitions, flashes
// each child, then the super-meta blob last, failing fast on the first
// child missing from the device's partition table.
package partop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/storage"
)

// SuperDefPartition is one child entry of a parsed super_def.<nv>.json
// (spec.md §6: "{nv_id, partitions:[{name, path, slot?}], meta_path}").
type SuperDefPartition struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Slot string `json:"slot,omitempty"`
}

// SuperDef is the parsed super_def.<nv>.json structure.
type SuperDef struct {
	NVID       string              `json:"nv_id"`
	Partitions []SuperDefPartition `json:"partitions"`
	MetaPath   string              `json:"meta_path"`
}

// ParseSuperDef decodes a super_def.<nv>.json payload.
func ParseSuperDef(data []byte) (SuperDef, error) {
	var def SuperDef
	if err := json.Unmarshal(data, &def); err != nil {
		return SuperDef{}, flasherr.NewStorageError(flasherr.StorageUnsupportedLayout, "super_def: "+err.Error())
	}
	return def, nil
}

// ChildResult is one child partition's outcome within a SuperFlash run.
// Per spec.md §7's partial-failure semantics, one failure does not roll
// back prior successes — the caller gets the full per-partition ledger.
type ChildResult struct {
	Name string
	Err  error
}

// SuperFlashResult is the full report of a SuperFlash run.
type SuperFlashResult struct {
	Children []ChildResult
	MetaErr  error
}

// Failed reports whether any child or the meta-blob write failed.
func (r SuperFlashResult) Failed() bool {
	if r.MetaErr != nil {
		return true
	}
	for _, c := range r.Children {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// openFile is overridable for tests.
var openFile = func(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// SuperFlash drives spec.md §4.10's super-partition flow: for each child in
// def, find the child partition on-device by name+slot, stream its file,
// then flash def.MetaPath's blob last under the "super" name. It fails
// fast (stops immediately, reporting the partition) on the first child
// whose device partition is missing — missing children are reported, not
// auto-skipped, per spec.md.
func SuperFlash(ctx context.Context, d Device, t storage.Table, def SuperDef, sink events.Sink) (SuperFlashResult, error) {
	var result SuperFlashResult
	for _, child := range def.Partitions {
		part, err := t.Find(child.Name, child.Slot)
		if err != nil {
			result.Children = append(result.Children, ChildResult{Name: child.Name, Err: err})
			return result, err
		}

		f, size, err := openFile(child.Path)
		if err != nil {
			cErr := fmt.Errorf("super flash: open %s: %w", child.Path, err)
			result.Children = append(result.Children, ChildResult{Name: child.Name, Err: cErr})
			return result, cErr
		}
		sink.Emit(events.Log("super flash: writing %s from %s", child.Name, child.Path))
		writeErr := Write(ctx, d, part, f, size, sink)
		f.Close()
		result.Children = append(result.Children, ChildResult{Name: child.Name, Err: writeErr})
		if writeErr != nil {
			return result, writeErr
		}
	}

	metaPart, err := t.Find("super", "")
	if err != nil {
		result.MetaErr = err
		return result, err
	}
	f, size, err := openFile(def.MetaPath)
	if err != nil {
		result.MetaErr = fmt.Errorf("super flash: open meta %s: %w", def.MetaPath, err)
		return result, result.MetaErr
	}
	defer f.Close()
	sink.Emit(events.Log("super flash: writing super-meta from %s", def.MetaPath))
	if err := Write(ctx, d, metaPart, f, size, sink); err != nil {
		result.MetaErr = err
		return result, err
	}
	sink.Emit(events.Completed(result))
	return result, nil
}
