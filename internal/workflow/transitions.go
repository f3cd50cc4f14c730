// Package workflow drives records through their status lifecycle. The
// transition table is the single source of truth for which edges exist;
// everything else (permissions, snapshots, audit) hangs off an edge.
package workflow

import "github.com/sellside/coedit/model"

// transitions maps each status to its legal targets. Archived has no
// entry: it is terminal.
var transitions = map[model.Status][]model.Status{
	model.StatusDraft:           {model.StatusPendingApproval},
	model.StatusPendingApproval: {model.StatusApproved, model.StatusRejected, model.StatusDraft},
	model.StatusApproved:        {model.StatusSent},
	model.StatusRejected:        {model.StatusPendingApproval},
	model.StatusSent:            {model.StatusArchived},
}

type edge struct {
	from, to model.Status
}

// edgePermissions maps each legal edge to the permission it requires.
var edgePermissions = map[edge]string{
	{model.StatusDraft, model.StatusPendingApproval}:    model.PermSubmit,
	{model.StatusPendingApproval, model.StatusApproved}: model.PermReview,
	{model.StatusPendingApproval, model.StatusRejected}: model.PermReview,
	{model.StatusPendingApproval, model.StatusDraft}:    model.PermReview,
	{model.StatusRejected, model.StatusPendingApproval}: model.PermSubmit,
	{model.StatusApproved, model.StatusSent}:            model.PermSend,
	{model.StatusSent, model.StatusArchived}:            model.PermArchive,
}

// edgeAllowed reports whether the edge exists in the transition table.
func edgeAllowed(from, to model.Status) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status.
// An empty result means the status is terminal.
func AllowedTargets(from model.Status) []model.Status {
	targets := transitions[from]
	out := make([]model.Status, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether the status has no outgoing edges.
func IsTerminal(s model.Status) bool {
	return len(transitions[s]) == 0
}
