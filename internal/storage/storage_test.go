package storage

import "testing"

func TestTableFindUnique(t *testing.T) {
	table := Table{Partitions: []Partition{
		{Name: "boot", StartSector: 0, SectorCount: 10},
		{Name: "system", StartSector: 10, SectorCount: 100},
	}}
	p, err := table.Find("BOOT", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Name != "boot" {
		t.Fatalf("unexpected match: %+v", p)
	}
}

func TestTableFindAmbiguousWithoutSlot(t *testing.T) {
	table := Table{Partitions: []Partition{
		{Name: "boot", Slot: "a", StartSector: 0, SectorCount: 10},
		{Name: "boot", Slot: "b", StartSector: 10, SectorCount: 10},
	}}
	if _, err := table.Find("boot", ""); err == nil {
		t.Fatalf("expected ambiguous error")
	}
	p, err := table.Find("boot", "b")
	if err != nil {
		t.Fatalf("find with slot: %v", err)
	}
	if p.Slot != "b" {
		t.Fatalf("unexpected slot match: %+v", p)
	}
}

func TestTableFindNotFound(t *testing.T) {
	table := Table{}
	if _, err := table.Find("missing", ""); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestTableDisjoint(t *testing.T) {
	disjoint := Table{Partitions: []Partition{
		{LUN: 0, StartSector: 0, SectorCount: 10},
		{LUN: 0, StartSector: 10, SectorCount: 10},
	}}
	if !disjoint.Disjoint() {
		t.Fatalf("expected disjoint table to report disjoint")
	}

	overlapping := Table{Partitions: []Partition{
		{LUN: 0, StartSector: 0, SectorCount: 10},
		{LUN: 0, StartSector: 5, SectorCount: 10},
	}}
	if overlapping.Disjoint() {
		t.Fatalf("expected overlapping table to report non-disjoint")
	}

	differentLUNsCanOverlap := Table{Partitions: []Partition{
		{LUN: 0, StartSector: 0, SectorCount: 10},
		{LUN: 1, StartSector: 0, SectorCount: 10},
	}}
	if !differentLUNsCanOverlap.Disjoint() {
		t.Fatalf("expected overlapping ranges on different LUNs to be fine")
	}
}

func TestSplitSlotSuffix(t *testing.T) {
	cases := []struct {
		in, wantBase, wantSlot string
	}{
		{"boot_a", "boot", "a"},
		{"boot_b", "boot", "b"},
		{"boot_B", "boot", "b"},
		{"system", "system", ""},
		{"a", "a", ""},
	}
	for _, c := range cases {
		base, slot := splitSlotSuffix(c.in)
		if base != c.wantBase || slot != c.wantSlot {
			t.Errorf("splitSlotSuffix(%q) = (%q,%q), want (%q,%q)", c.in, base, slot, c.wantBase, c.wantSlot)
		}
	}
}
