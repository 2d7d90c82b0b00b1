package service

import (
	"context"
	"time"

	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// Start launches the background janitor that evicts idle jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.started = true

	go s.janitor(ctx, s.stopCh, s.doneCh)

	s.logger.Info(ctx, "points service started",
		logger.Int("batchSize", s.batchSize),
		logger.Duration("jobTTL", s.jobTTL),
		logger.Duration("janitorInterval", s.janitorInterval),
	)
	return nil
}

// Stop halts the janitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.doneCh
	s.started = false
	s.mu.Unlock()

	<-done
	s.logger.Info(context.Background(), "points service stopped")
}

func (s *Service) janitor(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.ExpireIdleJobs(ctx); err != nil {
				s.logger.Warn(ctx, "job expiry sweep failed", logger.Error(err))
			}
		}
	}
}

// ExpireIdleJobs deletes jobs without activity for longer than the TTL and
// returns how many of them had not finished.
func (s *Service) ExpireIdleJobs(ctx context.Context) (int, error) {
	n, err := s.store.DeleteJobsBefore(ctx, s.now().Add(-s.jobTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordJobsExpired(n)
		s.logger.Info(ctx, "expired idle jobs", logger.Int("count", n))
	}
	if st, err := s.store.Stats(ctx); err == nil {
		metrics.UpdateJobsActive(int(st.ActiveJobs))
	}
	return n, nil
}
