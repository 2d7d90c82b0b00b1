package job

import "errors"

// Sentinel errors for job transitions.
var (
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrNoPendingBatch    = errors.New("no pending batch")
)
