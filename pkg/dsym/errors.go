package dsym

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no candidate exists on disk
	ErrNotFound = errors.New("symbols not found")
	// ErrUUIDMismatch means a candidate exists but none has the frame's UUID
	ErrUUIDMismatch = errors.New("UUID mismatch")
	// ErrUUIDUnreadable means candidates exist but none of their UUIDs could be read
	ErrUUIDUnreadable = errors.New("UUID unreadable")
)

// LookupError is returned when a binary's symbols cannot be located
type LookupError struct {
	Binary string
	UUID   string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Binary, e.UUID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Reason is the short reason printed next to an unresolved frame
func (e *LookupError) Reason() string { return e.Err.Error() }

// UUIDParseError is returned when the UUID tool's output has no UUID in it
type UUIDParseError struct {
	Path   string
	Output string
}

func (e *UUIDParseError) Error() string {
	return fmt.Sprintf("failed to parse UUID of %s from %q", e.Path, e.Output)
}
