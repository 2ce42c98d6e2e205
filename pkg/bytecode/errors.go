package bytecode

import "fmt"

// DecodeError reports a truncated buffer, malformed EXTENDED_ARG sequencing,
// or an encoding that does not match the pinned instruction set.
// Offset is -1 when the error is not tied to a byte position.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return "decode: " + e.Reason
	}
	return fmt.Sprintf("decode: at offset %d: %s", e.Offset, e.Reason)
}

// UnknownOpcodeError reports an opcode missing from the opcode table.
type UnknownOpcodeError struct {
	Offset int
	Opcode Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode %d at offset %d", byte(e.Opcode), e.Offset)
}
