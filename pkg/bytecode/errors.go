package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOpcode is returned for instructions with no translation.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrMalformedCode is returned for operands that violate the class file
	// format, such as a tableswitch with low > high.
	ErrMalformedCode = errors.New("malformed code")
)

// UnsupportedOpcodeError reports the instruction the decoder refused.
type UnsupportedOpcodeError struct {
	Opcode   byte
	Mnemonic string
	Offset   int
	Wide     bool
	Reason   string
}

func (e *UnsupportedOpcodeError) Error() string {
	name := e.Mnemonic
	if e.Wide {
		name = "wide " + name
	}
	msg := fmt.Sprintf("%v: %s (0x%02X) at offset %d", ErrUnsupportedOpcode, name, e.Opcode, e.Offset)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedOpcodeError) Unwrap() error { return ErrUnsupportedOpcode }

func unsupported(op byte, offset int, wide bool, reason string) error {
	return &UnsupportedOpcodeError{Opcode: op, Mnemonic: Mnemonic(op), Offset: offset, Wide: wide, Reason: reason}
}
