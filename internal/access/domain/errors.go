package domain

import "errors"

// Access domain errors.
var (
	ErrCredentialNotFound = errors.New("invite credential not found")
	ErrCredentialSpent    = errors.New("invite credential already spent")
	ErrInvalidCredential  = errors.New("invalid invite credential")
	ErrNotApproved        = errors.New("user not approved")
)
