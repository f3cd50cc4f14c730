package version

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sellside/coedit/model"
)

func TestDiffLinesIdenticalContent(t *testing.T) {
	lines, inserted, deleted := diffLines("a\nb\nc\n", "a\nb\nc\n")
	assert.Zero(t, inserted)
	assert.Zero(t, deleted)
	for _, l := range lines {
		assert.Equal(t, model.DiffOpEqual, l.Op)
	}
}

func TestDiffLinesInsertAndDelete(t *testing.T) {
	a := "intro\npricing: old\noutro\n"
	b := "intro\npricing: new\nterms\noutro\n"

	lines, inserted, deleted := diffLines(a, b)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, deleted)

	var ops []string
	for _, l := range lines {
		ops = append(ops, l.Op)
	}
	assert.Equal(t, []string{
		model.DiffOpEqual,
		model.DiffOpDelete,
		model.DiffOpInsert,
		model.DiffOpInsert,
		model.DiffOpEqual,
	}, ops)

	assert.Equal(t, "pricing: old", lines[1].Text)
	assert.Equal(t, 2, lines[1].ALine)
	assert.Zero(t, lines[1].BLine)
	assert.Equal(t, "pricing: new", lines[2].Text)
	assert.Equal(t, 2, lines[2].BLine)
}

func TestDiffLinesEmptySides(t *testing.T) {
	lines, inserted, deleted := diffLines("", "one\ntwo\n")
	assert.Equal(t, 2, inserted)
	assert.Zero(t, deleted)
	assert.Len(t, lines, 2)

	lines, inserted, deleted = diffLines("one\n", "")
	assert.Zero(t, inserted)
	assert.Equal(t, 1, deleted)
	assert.Len(t, lines, 1)

	lines, inserted, deleted = diffLines("", "")
	assert.Empty(t, lines)
	assert.Zero(t, inserted)
	assert.Zero(t, deleted)
}

// TestDiffSymmetry checks that comparing A to B and inverting yields the
// comparison of B to A: every insert becomes a delete and counts swap.
func TestDiffSymmetry(t *testing.T) {
	a := "alpha\nbeta\ngamma\n"
	b := "alpha\nbravo\ngamma\ndelta\n"

	abLines, abIns, abDel := diffLines(a, b)
	baLines, baIns, baDel := diffLines(b, a)

	ab := model.Diff{AVersion: 1, BVersion: 2, Lines: abLines, Inserted: abIns, Deleted: abDel}
	inv := ab.Invert()

	assert.Equal(t, baIns, inv.Inserted)
	assert.Equal(t, baDel, inv.Deleted)

	countOps := func(lines []model.DiffLine) (ins, del, eq int) {
		for _, l := range lines {
			switch l.Op {
			case model.DiffOpInsert:
				ins++
			case model.DiffOpDelete:
				del++
			default:
				eq++
			}
		}
		return
	}
	wantIns, wantDel, wantEq := countOps(baLines)
	gotIns, gotDel, gotEq := countOps(inv.Lines)
	assert.Equal(t, wantIns, gotIns)
	assert.Equal(t, wantDel, gotDel)
	assert.Equal(t, wantEq, gotEq)
}
