package types

import "errors"

// RoleSyncFailure records a role that could not be reconciled.
type RoleSyncFailure struct {
	RoleID uint64
	Err    error
}

// SyncResult summarizes a role reconciliation of one guild.
type SyncResult struct {
	GuildID   uint64
	Created   []uint64
	Renamed   []uint64
	Unchanged []uint64
	Deleted   []uint64
	Failures  []RoleSyncFailure
}

// Changed reports whether the sync wrote anything.
func (r *SyncResult) Changed() bool {
	return len(r.Created) > 0 || len(r.Renamed) > 0 || len(r.Deleted) > 0
}

// Err joins all per-role failures, or returns nil when there were none.
func (r *SyncResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		errs = append(errs, failure.Err)
	}

	return errors.Join(errs...)
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported []uint64
	Failures []*ImportItemError
}

// SuccessCount returns the number of guilds persisted.
func (r *ImportResult) SuccessCount() int {
	return len(r.Imported)
}

// Err joins all per-guild failures, or returns nil when there were none.
func (r *ImportResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		errs = append(errs, failure)
	}

	return errors.Join(errs...)
}
