package repository

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnknownDialect     = errors.New("unknown database dialect")
	ErrBackupUnsupported  = errors.New("backup is only supported for sqlite")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrMarkerAdvanced     = errors.New("refresh marker advanced since the cycle started")
)
