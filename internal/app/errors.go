package service

import "errors"

var (
	// ErrCooldownActive is returned when a refresh is requested inside the cooldown window.
	ErrCooldownActive = errors.New("refresh cooldown active")
	// ErrJobNotFound is returned for unknown or expired jobs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFailed is returned when finalizing a failed job.
	ErrJobFailed = errors.New("job failed")
	// ErrJobIncomplete is returned when finalizing before every batch ran.
	ErrJobIncomplete = errors.New("job has unprocessed batches")
	// ErrNoParticipants is returned when a refresh finds nothing to refresh.
	ErrNoParticipants = errors.New("no participants")
	// ErrParticipantNotFound is returned for unknown participant ids.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrInvalidInput is returned when descriptors fail validation.
	ErrInvalidInput = errors.New("invalid input")
)
