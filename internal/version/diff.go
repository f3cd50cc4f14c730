package version

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sellside/coedit/model"
)

// diffLines computes a line-level diff between two content strings using
// the difflib sequence matcher. Replacements are expanded into delete
// lines followed by insert lines.
func diffLines(a, b string) ([]model.DiffLine, int, int) {
	aLines := splitLines(a)
	bLines := splitLines(b)

	matcher := difflib.NewMatcher(aLines, bLines)

	var lines []model.DiffLine
	var inserted, deleted int
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i := op.I1; i < op.I2; i++ {
				lines = append(lines, model.DiffLine{
					Op:    model.DiffOpEqual,
					Text:  aLines[i],
					ALine: i + 1,
					BLine: op.J1 + (i - op.I1) + 1,
				})
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				lines = append(lines, model.DiffLine{
					Op:    model.DiffOpDelete,
					Text:  aLines[i],
					ALine: i + 1,
				})
				deleted++
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				lines = append(lines, model.DiffLine{
					Op:    model.DiffOpInsert,
					Text:  bLines[j],
					BLine: j + 1,
				})
				inserted++
			}
		case 'r':
			for i := op.I1; i < op.I2; i++ {
				lines = append(lines, model.DiffLine{
					Op:    model.DiffOpDelete,
					Text:  aLines[i],
					ALine: i + 1,
				})
				deleted++
			}
			for j := op.J1; j < op.J2; j++ {
				lines = append(lines, model.DiffLine{
					Op:    model.DiffOpInsert,
					Text:  bLines[j],
					BLine: j + 1,
				})
				inserted++
			}
		}
	}
	return lines, inserted, deleted
}

// splitLines splits content into lines without trailing newlines. Empty
// content yields no lines so the diff of two empty snapshots is empty.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}
