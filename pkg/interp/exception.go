package interp

import (
	"errors"
	"fmt"
)

var (
	// ErrArithmetic matches a JavaException of java/lang/ArithmeticException.
	ErrArithmetic    = errors.New("arithmetic exception")
	ErrStackOverflow = errors.New("stack overflow")
	ErrNoSuchMethod  = errors.New("no such method")
	ErrUnresolved    = errors.New("unresolved symbol")
	ErrBadArguments  = errors.New("bad arguments")
	ErrMalformed     = errors.New("malformed method")
)

const arithmeticException = "java/lang/ArithmeticException"

// JavaException represents a JVM exception being thrown. Nothing catches
// it; it ends the invocation.
type JavaException struct {
	ClassName string
	Message   string
}

func (e *JavaException) Error() string {
	return fmt.Sprintf("JavaException: %s: %s", e.ClassName, e.Message)
}

func (e *JavaException) Is(target error) bool {
	return target == ErrArithmetic && e.ClassName == arithmeticException
}

func NewJavaException(className, message string) *JavaException {
	return &JavaException{ClassName: className, Message: message}
}
