package bytecode

import "fmt"

// InstructionSet describes a pinned virtual-machine encoding.
type InstructionSet struct {
	Name         string
	Magic        uint16 // .pyc magic number
	HaveArgument int    // first opcode that carries an argument
	ArgWidth     int    // argument width in bytes
}

// Python27 is the only instruction set this package understands.
var Python27 = &InstructionSet{
	Name:         "cpython-2.7",
	Magic:        62211,
	HaveArgument: 90,
	ArgWidth:     2,
}

// Encoding is what a frame producer declares about the buffer it captured.
// Zero fields are undeclared and not checked.
type Encoding struct {
	Magic        uint16
	HaveArgument int
	ArgWidth     int
}

// LookupInstructionSet returns the instruction set registered under name.
func LookupInstructionSet(name string) (*InstructionSet, error) {
	if name == "" || name == Python27.Name {
		return Python27, nil
	}
	return nil, fmt.Errorf("unsupported instruction set %q (only %q is available)", name, Python27.Name)
}

// Check returns a *DecodeError if a declared encoding disagrees with the set.
func (s *InstructionSet) Check(enc Encoding) error {
	if enc.Magic != 0 && enc.Magic != s.Magic {
		return &DecodeError{Offset: -1, Reason: fmt.Sprintf("magic %d does not match %s (%d)", enc.Magic, s.Name, s.Magic)}
	}
	if enc.HaveArgument != 0 && enc.HaveArgument != s.HaveArgument {
		return &DecodeError{Offset: -1, Reason: fmt.Sprintf("has-argument threshold %d does not match %s (%d)", enc.HaveArgument, s.Name, s.HaveArgument)}
	}
	if enc.ArgWidth != 0 && enc.ArgWidth != s.ArgWidth {
		return &DecodeError{Offset: -1, Reason: fmt.Sprintf("argument width %d does not match %s (%d)", enc.ArgWidth, s.Name, s.ArgWidth)}
	}
	return nil
}
