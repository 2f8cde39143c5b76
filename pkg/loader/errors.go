package loader

import (
	"fmt"
)

// ParsingError reports a descriptor or plans document that could not be
// turned into a topology.
type ParsingError struct {
	File string
	Err  error
}

func (e *ParsingError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("failed to parse topology: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse topology %s: %v", e.File, e.Err)
}

func (e *ParsingError) Unwrap() error {
	return e.Err
}

// ConflictError reports documents that parse on their own but cannot be
// loaded together, or a descriptor that references missing inputs. It
// matches ParsingError with errors.As and errors.Is.
type ConflictError struct {
	Prefix string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Prefix == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (prefix: %s)", e.Reason, e.Prefix)
}

// As lets callers catch conflicts as parsing errors.
func (e *ConflictError) As(target any) bool {
	pe, ok := target.(**ParsingError)
	if !ok {
		return false
	}
	*pe = &ParsingError{Err: e}
	return true
}

// Is reports any ParsingError target as a match.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ParsingError)
	return ok
}
