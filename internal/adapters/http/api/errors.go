package api

import (
	"errors"
	"net/http"

	"github.com/okian/pointsledger/internal/adapters/csvinput"
	service "github.com/okian/pointsledger/internal/app"
	"github.com/okian/pointsledger/internal/domain/job"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// Error tags a failure with the operation that produced it and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKind builds an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap attaches op to err and derives the kind from it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

// WrapKind attaches op and an explicit kind to err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return nil
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, csvinput.ErrMissingColumns),
		errors.Is(err, csvinput.ErrMissingNames),
		errors.Is(err, csvinput.ErrMalformed):
		return ErrBadRequest
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, service.ErrParticipantNotFound):
		return ErrNotFound
	case errors.Is(err, service.ErrCooldownActive),
		errors.Is(err, service.ErrJobIncomplete),
		errors.Is(err, service.ErrJobFailed),
		errors.Is(err, service.ErrNoParticipants),
		errors.Is(err, job.ErrNoPendingBatch),
		errors.Is(err, job.ErrInvalidTransition):
		return ErrConflict
	default:
		return ErrInternal
	}
}

// statusOf maps an error to its HTTP status and response code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrCooldownActive):
		return http.StatusConflict, "cooldown_active"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
