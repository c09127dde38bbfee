package lattice

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for invalid lattice construction or
	// configuration values.
	ErrInvalidConfig = errors.New("invalid lattice configuration")

	// ErrNotFinalized is returned by Step when Configure was called without
	// a following Finalize.
	ErrNotFinalized = errors.New("lattice configuration changed but not finalized")

	// ErrIndexOutOfRange matches any *IndexError via errors.Is.
	ErrIndexOutOfRange = errors.New("node index out of range")
)

// IndexError reports a node index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("node index %d out of range [0, %d)", e.Index, e.Len)
}

// Is reports whether target is ErrIndexOutOfRange.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
