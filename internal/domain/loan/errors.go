package loan

import "errors"

var (
	ErrNotFound          = errors.New("loan not found")
	ErrInvalidTransition = errors.New("invalid loan state transition")
	// ErrStatusConflict: compare-and-swap observed a different status than
	// expected (a concurrent transition won).
	ErrStatusConflict = errors.New("loan status changed concurrently")
	ErrAlreadyExists  = errors.New("loan already exists")
)
