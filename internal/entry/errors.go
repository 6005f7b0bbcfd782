package entry

import "errors"

// Domain-specific errors for entry persistence.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("entry: not found")

	// ErrExists is returned when creating an entry whose ID is already taken.
	ErrExists = errors.New("entry: already exists")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("entry: invalid entry")
)
