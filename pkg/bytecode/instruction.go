package bytecode

import (
	"encoding/binary"
	"fmt"
)

// extendedArgShift is the weight of an EXTENDED_ARG chunk.
const extendedArgShift = 65536

// Instruction is one decoded instruction. Values are never mutated after Decode.
type Instruction struct {
	Offset int    // byte offset; the EXTENDED_ARG prefix offset when Extended
	Op     Opcode // opcode
	Arg    int    // merged argument, valid when HasArg
	HasArg bool
	// Extended is set when the argument was widened by an EXTENDED_ARG prefix.
	Extended bool
	Length   int // encoded length in bytes including any prefix
}

// String implements the Stringer interface.
func (in Instruction) String() string {
	if in.HasArg {
		return fmt.Sprintf("%04d %s %d", in.Offset, in.Op, in.Arg)
	}
	return fmt.Sprintf("%04d %s", in.Offset, in.Op)
}

// Stream is a decoded instruction list indexable by position and by offset.
type Stream struct {
	instrs []Instruction
	index  map[int]int // offset -> position
}

// NewStream builds a stream over already-decoded instructions.
func NewStream(instrs []Instruction) *Stream {
	s := &Stream{
		instrs: instrs,
		index:  make(map[int]int, len(instrs)),
	}
	for i, in := range instrs {
		s.index[in.Offset] = i
	}
	return s
}

// Len returns the number of instructions.
func (s *Stream) Len() int {
	return len(s.instrs)
}

// At returns the instruction at position i.
func (s *Stream) At(i int) Instruction {
	return s.instrs[i]
}

// IndexOf returns the position of the instruction starting at offset.
func (s *Stream) IndexOf(offset int) (int, bool) {
	i, ok := s.index[offset]
	return i, ok
}

// Instructions returns a copy of the instruction list.
func (s *Stream) Instructions() []Instruction {
	out := make([]Instruction, len(s.instrs))
	copy(out, s.instrs)
	return out
}

// Slice returns the instructions in [begin, end). The result must not be modified.
func (s *Stream) Slice(begin, end int) []Instruction {
	return s.instrs[begin:end]
}

// Decode turns a raw CPython 2.7 code buffer into a Stream.
//
// An EXTENDED_ARG is folded into the following argument-bearing instruction
// and never appears in the output. It must not be the last instruction, must
// not be followed by another EXTENDED_ARG, and must not be followed by an
// argument-less opcode.
func Decode(code []byte) (*Stream, error) {
	return Python27.Decode(code)
}

// Decode decodes code using the set's has-argument threshold and argument width.
func (s *InstructionSet) Decode(code []byte) (*Stream, error) {
	if s.ArgWidth != 2 {
		return nil, &DecodeError{Offset: -1, Reason: fmt.Sprintf("argument width %d is not supported", s.ArgWidth)}
	}

	instrs := make([]Instruction, 0, len(code)/2)
	pos := 0
	prefixAt := -1 // offset of a pending EXTENDED_ARG
	high := 0

	for pos < len(code) {
		op := Opcode(code[pos])
		hasArg := int(op) >= s.HaveArgument

		if !hasArg {
			if prefixAt >= 0 {
				return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("EXTENDED_ARG at %d followed by argument-less %s", prefixAt, op)}
			}
			instrs = append(instrs, Instruction{Offset: pos, Op: op, Length: 1})
			pos++
			continue
		}

		if pos+1+s.ArgWidth > len(code) {
			return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("unexpected end of bytecode reading %s argument", op)}
		}
		arg := int(binary.LittleEndian.Uint16(code[pos+1:]))

		if op == OpExtendedArg {
			if prefixAt >= 0 {
				return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("EXTENDED_ARG at %d followed by another EXTENDED_ARG", prefixAt)}
			}
			prefixAt = pos
			high = arg
			pos += 1 + s.ArgWidth
			continue
		}

		in := Instruction{Offset: pos, Op: op, Arg: arg, HasArg: true, Length: 1 + s.ArgWidth}
		if prefixAt >= 0 {
			in.Offset = prefixAt
			in.Arg += high * extendedArgShift
			in.Extended = true
			in.Length += 1 + s.ArgWidth
			prefixAt = -1
			high = 0
		}
		instrs = append(instrs, in)
		pos += 1 + s.ArgWidth
	}

	if prefixAt >= 0 {
		return nil, &DecodeError{Offset: prefixAt, Reason: "EXTENDED_ARG is the last instruction"}
	}
	return NewStream(instrs), nil
}
