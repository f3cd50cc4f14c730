package model

import "testing"

func TestDiffInvertSwapsSides(t *testing.T) {
	d := Diff{
		ParentID: 7,
		AVersion: 2,
		BVersion: 5,
		Lines: []DiffLine{
			{Op: DiffOpEqual, Text: "header", ALine: 1, BLine: 1},
			{Op: DiffOpDelete, Text: "old terms", ALine: 2},
			{Op: DiffOpInsert, Text: "new terms", BLine: 2},
		},
		Inserted: 1,
		Deleted:  1,
	}

	inv := d.Invert()

	if inv.AVersion != 5 || inv.BVersion != 2 {
		t.Errorf("versions = (%d, %d), want (5, 2)", inv.AVersion, inv.BVersion)
	}
	if inv.Lines[1].Op != DiffOpInsert || inv.Lines[1].BLine != 2 || inv.Lines[1].ALine != 0 {
		t.Errorf("delete did not become insert: %+v", inv.Lines[1])
	}
	if inv.Lines[2].Op != DiffOpDelete || inv.Lines[2].ALine != 2 {
		t.Errorf("insert did not become delete: %+v", inv.Lines[2])
	}
	if inv.Inserted != 1 || inv.Deleted != 1 {
		t.Errorf("counts = (%d, %d)", inv.Inserted, inv.Deleted)
	}

	// Inverting twice restores the original.
	back := inv.Invert()
	if back.AVersion != d.AVersion || back.BVersion != d.BVersion {
		t.Error("double inversion did not restore versions")
	}
	for i := range d.Lines {
		if back.Lines[i] != d.Lines[i] {
			t.Errorf("line %d = %+v, want %+v", i, back.Lines[i], d.Lines[i])
		}
	}
}
