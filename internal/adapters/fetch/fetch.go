// Package fetch retrieves profile pages over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// Default fetch configuration constants.
const (
	defaultTimeout   = 10 * time.Second
	defaultMinDelay  = 200 * time.Millisecond
	defaultMaxDelay  = 800 * time.Millisecond
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Fetcher issues one GET per profile reference. It is stateless apart from
// its HTTP client and safe for concurrent use.
type Fetcher struct {
	client   *resty.Client
	timeout  time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	headers  map[string]string
	logger   logger.Logger
}

// New creates a Fetcher with configuration options.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:  defaultTimeout,
		minDelay: defaultMinDelay,
		maxDelay: defaultMaxDelay,
		headers: map[string]string{
			"User-Agent":      defaultUserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Connection":      "keep-alive",
		},
		logger: logger.Nop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.client = resty.New().
		SetTimeout(f.timeout).
		SetHeaders(f.headers).
		SetRetryCount(0)

	return f
}

// Fetch returns the raw page for ref. Placeholder references are skipped
// without a network call and without an error.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (model.RawPage, error) {
	if model.IsInvalidProfileRef(ref) {
		metrics.RecordFetch("skipped", 0)
		f.logger.Debug(ctx, "skipping placeholder profile", logger.String("ref", ref))
		return model.RawPage{Skipped: true}, nil
	}

	if err := f.pause(ctx); err != nil {
		metrics.RecordFetch("timeout", 0)
		return model.RawPage{}, fmt.Errorf("%w: waiting before request: %w", failure.ErrTimeout, err)
	}

	start := time.Now()
	res, err := f.client.R().
		SetContext(ctx).
		Get(ref)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		if isTimeout(err) {
			metrics.RecordFetch("timeout", latency)
			return model.RawPage{}, fmt.Errorf("%w: %s: %w", failure.ErrTimeout, ref, err)
		}
		metrics.RecordFetch("network", latency)
		return model.RawPage{}, fmt.Errorf("%w: %s: %w", failure.ErrNetwork, ref, err)
	}

	if !res.IsSuccess() {
		metrics.RecordFetch("status", latency)
		return model.RawPage{Status: res.StatusCode()}, fmt.Errorf("%s: %w", ref, &failure.StatusError{Code: res.StatusCode()})
	}

	metrics.RecordFetch("ok", latency)
	return model.RawPage{Body: res.Body(), Status: res.StatusCode()}, nil
}

// pause sleeps for a random duration in [minDelay, maxDelay] unless ctx ends first.
func (f *Fetcher) pause(ctx context.Context) error {
	d := f.minDelay
	if span := f.maxDelay - f.minDelay; span > 0 {
		d += rand.N(span + 1)
	}
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

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
