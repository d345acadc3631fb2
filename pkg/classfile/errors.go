package classfile

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput is returned when fewer bytes remain than a field needs.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrInvalidIndex is returned for a pool index outside the current table.
	ErrInvalidIndex = errors.New("invalid constant pool index")
	// ErrInvalidSymbolReference is returned when a pool reference does not
	// resolve to an entry of the required kind.
	ErrInvalidSymbolReference = errors.New("invalid symbol reference")
)

// SymbolError describes a pool reference that failed to resolve.
type SymbolError struct {
	Index uint16
	Want  string // required entry kind
	Got   string // actual entry kind, empty if the index did not resolve
	Err   error  // underlying lookup failure, if any
}

func (e *SymbolError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("%v: #%d is not a %s entry: %v", ErrInvalidSymbolReference, e.Index, e.Want, e.Err)
	}
	return fmt.Sprintf("%v: #%d is %s, want %s", ErrInvalidSymbolReference, e.Index, e.Got, e.Want)
}

func (e *SymbolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSymbolReference, e.Err}
	}
	return []error{ErrInvalidSymbolReference}
}
