package domain

import "errors"

// Error taxonomy. Callers wrap these with context via fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrWindowClosed         = errors.New("window closed")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrEvidenceRequired     = errors.New("evidence required")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrPayoutAccountMissing = errors.New("payout account missing")
	ErrTransientStorage     = errors.New("transient storage error")
	ErrDuplicateRelease     = errors.New("duplicate release event")
	ErrInvalidConfig        = errors.New("invalid finance config")
	ErrNotFound             = errors.New("not found")
	ErrVersionConflict      = errors.New("version conflict")
	ErrForbidden            = errors.New("forbidden")
)
