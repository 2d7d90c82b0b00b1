package csvinput

import "errors"

var (
	// ErrMissingColumns is returned when a required header is absent.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrMissingNames is returned when rows have an empty Name.
	ErrMissingNames = errors.New("missing values in 'Name' column")
	// ErrMalformed wraps reader failures.
	ErrMalformed = errors.New("malformed csv")
)
