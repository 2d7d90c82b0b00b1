// Package failure holds the error taxonomy shared by the fetch, resolve and
// storage layers.
package failure

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/pointsledger/internal/domain/extract"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrInvalidProfile = errors.New("invalid profile reference")
	ErrTimeout        = errors.New("fetch timed out")
	ErrNetwork        = errors.New("network error")
	ErrStorage        = errors.New("storage failure")
)

// StatusError is a non-2xx answer from the profile host.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

// Kind is the failure class of a resolution; the values double as metric labels.
type Kind string

// Failure kinds.
const (
	KindNone             Kind = ""
	KindInvalidProfile   Kind = "invalid_profile"
	KindNetworkTransient Kind = "network_transient"
	KindNetworkPermanent Kind = "network_permanent"
	KindParseNotFound    Kind = "not_found"
	KindStorage          Kind = "storage"
	KindTaskTimeout      Kind = "task_timeout"
	KindUnexpected       Kind = "unexpected"
)

// Classify maps err to its Kind.
func Classify(err error) Kind {
	var status *StatusError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidProfile):
		return KindInvalidProfile
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkTransient
	case errors.As(err, &status):
		return KindNetworkPermanent
	case errors.Is(err, extract.ErrNotFound):
		return KindParseNotFound
	default:
		return KindUnexpected
	}
}

// Retryable reports whether another attempt may change the outcome.
// Not-found is decided by the caller's policy and is not covered here.
func (k Kind) Retryable() bool {
	return k == KindNetworkTransient || k == KindNetworkPermanent
}

// Storage wraps err as a job-fatal storage failure.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
