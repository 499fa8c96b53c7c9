package domain

import "errors"

var (
	// ErrInvalidIdea wraps every record validation failure.
	ErrInvalidIdea = errors.New("invalid idea")
	// ErrScoreOutOfRange is returned for scores outside [0, 1] or NaN.
	ErrScoreOutOfRange = errors.New("score must be between 0.0 and 1.0")
	// ErrNotFound is returned by keyed lookups that miss.
	ErrNotFound = errors.New("not found")
)
