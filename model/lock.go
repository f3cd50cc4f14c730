package model

import "time"

// Lock is an exclusive advisory claim on one resource. The storage layer
// does not enforce it on writes; DetectConflict's version check is the
// safety net against lost updates.
type Lock struct {
	ID              string    `json:"id"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      int64     `json:"resource_id"`
	HolderID        string    `json:"holder_id"`
	AcquiredAt      time.Time `json:"acquired_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// Active reports whether the lock has not yet lapsed at the given
// instant. A lapsed lock is logically absent even if its row persists.
func (l Lock) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// ConflictInfo is the result of a conflict probe on a resource.
type ConflictInfo struct {
	HasConflict bool   `json:"has_conflict"`
	Reason      string `json:"reason,omitempty"` // LOCKED_BY_OTHER or VERSION_MISMATCH
	HolderID    string `json:"holder_id,omitempty"`
	Lock        *Lock  `json:"lock,omitempty"`
	// CurrentVersion is set when the probe included a known-version check.
	CurrentVersion int64 `json:"current_version,omitempty"`
}
