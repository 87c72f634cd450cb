package store

import "errors"

// Sentinel errors surfaced by the transactional claim operations. Absent
// rows are reported as sql.ErrNoRows throughout the package.
var (
	ErrDuplicatePendingClaim = errors.New("claimant already has a pending claim for this item")
	ErrClaimNotPending       = errors.New("claim is not pending")
)
