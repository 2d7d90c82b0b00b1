package extract

import "errors"

// ErrNotFound is returned when every strategy failed to recover a points value.
var ErrNotFound = errors.New("points not found")
