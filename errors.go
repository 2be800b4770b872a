package pocketbook

import (
	"errors"
	"fmt"
)

// ErrVersionsRequired is returned by New when caching is enabled without a version store.
var ErrVersionsRequired = errors.New("pocketbook: version store is required")

// FillError describes a snapshot that could not be stored after a miss.
// It is reported to hooks and logs; the read itself still succeeds.
type FillError struct {
	Collection string
	EncodeErr  error
	SetErr     error
}

func (e *FillError) Error() string {
	switch {
	case e.EncodeErr != nil:
		return fmt.Sprintf("fill %q: encode failed: %v", e.Collection, e.EncodeErr)
	case e.SetErr != nil:
		return fmt.Sprintf("fill %q: provider set failed: %v", e.Collection, e.SetErr)
	default:
		return fmt.Sprintf("fill %q: unknown error", e.Collection)
	}
}

func (e *FillError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.EncodeErr != nil {
		errs = append(errs, e.EncodeErr)
	}
	if e.SetErr != nil {
		errs = append(errs, e.SetErr)
	}
	return errs
}

// EncodeError wraps a codec failure on the result of a source read.
// CachedReader still returns the fresh value; only caching is skipped.
type EncodeError struct {
	Collection string
	Err        error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %q: %v", e.Collection, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
