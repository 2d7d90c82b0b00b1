// Package resolve turns a participant into exactly one points value.
//
// Each resolution is a small state machine: Attempt(n) ends in Success,
// Retry or GiveUp. Retry waits for an exponential backoff and attempts again;
// GiveUp reports the configured fallback value. Resolve never fails.
package resolve

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/pointsledger/internal/domain/extract"
	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// Default resolver configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// Status is the terminal status of one resolution.
type Status string

// Resolution statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fetcher retrieves a raw profile page.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (model.RawPage, error)
}

// Extractor recovers a points value from a raw page.
type Extractor interface {
	Extract(raw []byte) (extract.Result, error)
}

// Outcome is the terminal result for one participant.
type Outcome struct {
	ParticipantID int64
	Points        int
	Status        Status
	Reason        failure.Kind
	Strategy      extract.Strategy
	Attempts      int
	Err           error
}

// Fallback builds the outcome reported when no value could be determined.
func Fallback(participantID int64, points int, reason failure.Kind, attempts int, err error) Outcome {
	return Outcome{
		ParticipantID: participantID,
		Points:        points,
		Status:        StatusError,
		Reason:        reason,
		Attempts:      attempts,
		Err:           err,
	}
}

type step int

const (
	stepSuccess step = iota
	stepRetry
	stepGiveUp
)

// Resolver composes a Fetcher and an Extractor with a bounded retry policy.
// It holds no per-resolution state and is safe for concurrent use.
type Resolver struct {
	fetcher         Fetcher
	extractor       Extractor
	maxRetries      int
	fallback        int
	retryOnNotFound bool
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	logger          logger.Logger
}

// New creates a Resolver with configuration options.
func New(fetcher Fetcher, extractor Extractor, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:        fetcher,
		extractor:      extractor,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         logger.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FallbackPoints returns the configured fallback value.
func (r *Resolver) FallbackPoints() int {
	return r.fallback
}

// Resolve returns exactly one outcome for p within maxRetries+1 attempts.
func (r *Resolver) Resolve(ctx context.Context, p model.Participant) Outcome {
	if !p.HasValidProfile() {
		metrics.RecordInvalidProfile()
		return r.finish(ctx, p, Fallback(p.ID, r.fallback, failure.KindInvalidProfile, 0, failure.ErrInvalidProfile))
	}

	bo := r.newBackOff()
	for attempt := 1; ; attempt++ {
		next, out := r.attempt(ctx, p, attempt)
		switch next {
		case stepSuccess, stepGiveUp:
			return r.finish(ctx, p, out)
		case stepRetry:
			wait := bo.NextBackOff()
			r.logger.Debug(ctx, "retrying profile fetch",
				logger.Int64("participantID", p.ID),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(out.Err),
			)
			metrics.RecordFetchRetry()
			if err := sleep(ctx, wait); err != nil {
				return r.finish(ctx, p, Fallback(p.ID, r.fallback, failure.KindNetworkTransient, attempt, err))
			}
		}
	}
}

// attempt performs Attempt(n) and decides the next step.
func (r *Resolver) attempt(ctx context.Context, p model.Participant, n int) (step, Outcome) {
	page, err := r.fetcher.Fetch(ctx, p.ProfileRef)
	if err == nil && page.Skipped {
		return stepGiveUp, Fallback(p.ID, r.fallback, failure.KindInvalidProfile, n, failure.ErrInvalidProfile)
	}

	if err == nil {
		var res extract.Result
		if res, err = r.extractor.Extract(page.Body); err == nil {
			metrics.RecordStrategyHit(string(res.Strategy))
			return stepSuccess, Outcome{
				ParticipantID: p.ID,
				Points:        res.Points,
				Status:        StatusSuccess,
				Strategy:      res.Strategy,
				Attempts:      n,
			}
		}
	}

	kind := failure.Classify(err)
	out := Fallback(p.ID, r.fallback, kind, n, err)
	if r.shouldRetry(ctx, kind, n) {
		return stepRetry, out
	}
	return stepGiveUp, out
}

func (r *Resolver) shouldRetry(ctx context.Context, kind failure.Kind, n int) bool {
	if n > r.maxRetries || ctx.Err() != nil {
		return false
	}
	if kind == failure.KindParseNotFound {
		return r.retryOnNotFound
	}
	return kind.Retryable()
}

func (r *Resolver) finish(ctx context.Context, p model.Participant, out Outcome) Outcome {
	metrics.RecordResolution(string(out.Status), string(out.Reason))
	if out.Status == StatusError {
		r.logger.Warn(ctx, "falling back for participant",
			logger.Int64("participantID", p.ID),
			logger.String("name", p.Name),
			logger.String("reason", string(out.Reason)),
			logger.Int("attempts", out.Attempts),
			logger.Error(out.Err),
		)
	}
	return out
}

func (r *Resolver) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	b.MaxInterval = r.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
