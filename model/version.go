package model

import "time"

// Metadata keys recorded on snapshots created by a revert.
const (
	MetaRestoredFromVersion = "restored_from_version"
	MetaRestoreReason       = "restore_reason"
	MetaBackupBeforeRestore = "backup_before_restore"
)

// VersionSnapshot is an immutable point-in-time capture of a record's
// content. Snapshots are append-only; corrections are new snapshots.
type VersionSnapshot struct {
	ID            string            `json:"id"`
	ParentID      int64             `json:"parent_id"`
	VersionNumber int64             `json:"version_number"`
	Content       string            `json:"content"`
	ChangeSummary string            `json:"change_summary,omitempty"`
	IsMajor       bool              `json:"is_major"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedBy     string            `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
}

// VersionStats summarizes a record's version history.
type VersionStats struct {
	TotalVersions     int64      `json:"total_versions"`
	MajorVersionCount int64      `json:"major_version_count"`
	FirstVersionAt    *time.Time `json:"first_version_at,omitempty"`
	LastVersionAt     *time.Time `json:"last_version_at,omitempty"`
}

// Diff line operations.
const (
	DiffOpEqual  = "equal"
	DiffOpInsert = "insert"
	DiffOpDelete = "delete"
)

// DiffLine is one line of a comparison between two snapshots.
type DiffLine struct {
	Op   string `json:"op"`
	Text string `json:"text"`
	// ALine and BLine are 1-based line numbers in the respective
	// snapshots; zero means the line does not exist on that side.
	ALine int `json:"a_line,omitempty"`
	BLine int `json:"b_line,omitempty"`
}

// Diff is a line-level comparison of two snapshots of the same parent.
type Diff struct {
	ParentID int64      `json:"parent_id"`
	AVersion int64      `json:"a_version"`
	BVersion int64      `json:"b_version"`
	Lines    []DiffLine `json:"lines"`
	Inserted int        `json:"inserted"`
	Deleted  int        `json:"deleted"`
}

// Invert returns the same comparison seen from the other side: inserts
// become deletes and vice versa, with line numbers swapped.
func (d Diff) Invert() Diff {
	inv := Diff{
		ParentID: d.ParentID,
		AVersion: d.BVersion,
		BVersion: d.AVersion,
		Lines:    make([]DiffLine, len(d.Lines)),
		Inserted: d.Deleted,
		Deleted:  d.Inserted,
	}
	for i, l := range d.Lines {
		op := l.Op
		switch op {
		case DiffOpInsert:
			op = DiffOpDelete
		case DiffOpDelete:
			op = DiffOpInsert
		}
		inv.Lines[i] = DiffLine{Op: op, Text: l.Text, ALine: l.BLine, BLine: l.ALine}
	}
	return inv
}
