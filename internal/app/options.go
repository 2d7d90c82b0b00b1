package service

import (
	"time"

	"github.com/okian/pointsledger/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBatchSize sets how many participants make up one batch.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithCooldown sets the minimum interval between two refreshes.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithJobTTL sets how long an idle job is kept.
func WithJobTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTTL = d
		}
	}
}

// WithJanitorInterval sets how often idle jobs are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.janitorInterval = d
		}
	}
}

// WithBackup snapshots the database into dir before each upload or refresh,
// keeping the newest keep files.
func WithBackup(dir string, keep int) Option {
	return func(s *Service) {
		s.backupDir = dir
		s.backupKeep = keep
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
