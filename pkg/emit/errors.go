package emit

import "errors"

var (
	// ErrUnresolvedSymbol is returned when a static field or method is not
	// known to the resolver.
	ErrUnresolvedSymbol = errors.New("unresolved symbol")
	// ErrInconsistentStack is returned when operand stack types do not agree
	// at a join point or an operation finds the wrong types.
	ErrInconsistentStack = errors.New("inconsistent operand stack")
	// ErrUnsupported is returned for methods that cannot be lowered.
	ErrUnsupported = errors.New("unsupported method")
)
