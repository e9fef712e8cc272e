// internal/storage/storage.go
// Uniform partition-addressing layer (spec.md §4.5): GPT, PMT, LP-metadata,
// and PAC TOC parsers all produce the same Partition record, and Table's
// find(name) lookup is shared across all four. No teacher analogue exists
// (the teacher never parses an on-disk partition table); built in the
// arena-of-records style the rest of flashcore uses for binary layouts,
// following the teacher's struct-plus-encoding/binary field access seen in
// usb_device.go's ParseRxNonce.
package storage

import (
	"flashcore/internal/flasherr"
)

// Partition is the uniform record every layout parser in this package
// produces (spec.md §3).
type Partition struct {
	Name         string
	Slot         string // "", "a", or "b"
	LUN          int    // logical unit (0 for single-LUN layouts)
	StartSector  uint64
	SectorCount  uint64
	SectorSize   int
	Attributes   uint64
}

// EndSector is the exclusive end of the partition's sector range.
func (p Partition) EndSector() uint64 { return p.StartSector + p.SectorCount }

// Table is a parsed partition layout: an ordered list of Partition records
// plus the lookup contract spec.md §4.5 requires.
type Table struct {
	Partitions []Partition
}

// Find resolves name via case-insensitive exact match (spec.md §4.5). When
// more than one partition shares the name (an A/B layout) and slot is "",
// the lookup fails Ambiguous; slot must be "a" or "b" to disambiguate.
func (t Table) Find(name, slot string) (Partition, error) {
	var matches []Partition
	lower := toLower(name)
	for _, p := range t.Partitions {
		if toLower(p.Name) == lower {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Partition{}, flasherr.NewStorageError(flasherr.StoragePartitionNotFound, name)
	case 1:
		return matches[0], nil
	default:
		if slot == "" {
			return Partition{}, flasherr.NewStorageError(flasherr.StorageAmbiguous, name)
		}
		for _, p := range matches {
			if toLower(p.Slot) == toLower(slot) {
				return p, nil
			}
		}
		return Partition{}, flasherr.NewStorageError(flasherr.StoragePartitionNotFound, name+":"+slot)
	}
}

// Disjoint reports whether every pair of partitions sharing a LUN has
// non-overlapping sector ranges (spec.md §8's invariant).
func (t Table) Disjoint() bool {
	byLUN := map[int][]Partition{}
	for _, p := range t.Partitions {
		byLUN[p.LUN] = append(byLUN[p.LUN], p)
	}
	for _, parts := range byLUN {
		for i := range parts {
			for j := range parts {
				if i == j {
					continue
				}
				if parts[i].StartSector < parts[j].EndSector() && parts[j].StartSector < parts[i].EndSector() {
					return false
				}
			}
		}
	}
	return true
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
