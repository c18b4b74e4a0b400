package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration reports a duration that cannot be read as a
	// non-negative number of seconds.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidDate reports a publish date that is not ISO-8601.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidSplitIndex reports a negative split index.
	ErrInvalidSplitIndex = errors.New("split index must not be negative")
	// ErrIndexOutOfRange reports a play index outside the episode list.
	ErrIndexOutOfRange = errors.New("episode index out of range")
)

// EpisodeError locates a transform failure inside the raw episode list.
type EpisodeError struct {
	Index int
	ID    string
	Field string
	Value string
	Err   error
}

func (e *EpisodeError) Error() string {
	return fmt.Sprintf("episode %q at index %d: %s %q: %v", e.ID, e.Index, e.Field, e.Value, e.Err)
}

func (e *EpisodeError) Unwrap() error {
	return e.Err
}
