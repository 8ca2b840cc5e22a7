package domain

import "time"

// Approval records that a user's join request was approved, so a later
// revocation knows to remove them even when no credential was consumed.
type Approval struct {
	UserID     int64
	ApprovedAt time.Time
}

// NewApproval creates an approval record.
func NewApproval(userID int64, at time.Time) Approval {
	return Approval{UserID: userID, ApprovedAt: at.UTC()}
}
