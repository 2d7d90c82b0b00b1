package fetch

import (
	"time"

	"github.com/okian/pointsledger/pkg/logger"
)

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds every request. Non-positive values are ignored; a fetch is never unbounded.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithDelayRange sets the randomized pause applied before each request.
func WithDelayRange(minDelay, maxDelay time.Duration) Option {
	return func(f *Fetcher) {
		if minDelay >= 0 && maxDelay >= minDelay {
			f.minDelay = minDelay
			f.maxDelay = maxDelay
		}
	}
}

// WithUserAgent overrides the user-agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.headers["User-Agent"] = ua
		}
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if key != "" {
			f.headers[key] = value
		}
	}
}

// WithLogger sets a custom logger for the fetcher.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
