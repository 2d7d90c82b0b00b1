package resolve

import (
	"time"

	"github.com/okian/pointsledger/pkg/logger"
)

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithMaxRetries bounds re-attempts after the first one.
func WithMaxRetries(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithFallback sets the value reported when no real value could be determined.
func WithFallback(points int) Option {
	return func(r *Resolver) {
		r.fallback = points
	}
}

// WithRetryOnNotFound retries pages where every extraction strategy failed.
func WithRetryOnNotFound(enabled bool) Option {
	return func(r *Resolver) {
		r.retryOnNotFound = enabled
	}
}

// WithBackoff sets the initial and maximum wait between attempts.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(r *Resolver) {
		if initial > 0 {
			r.initialBackoff = initial
		}
		if maxInterval >= r.initialBackoff {
			r.maxBackoff = maxInterval
		}
	}
}

// WithLogger sets a custom logger for the resolver.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}
