package repositories

import "errors"

// ErrNotFound is returned by gateway reads when the requested record does
// not exist. Implementations translate their driver's not-found error into
// this sentinel.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err represents a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
