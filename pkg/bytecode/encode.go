package bytecode

import (
	"fmt"

	"fortio.org/safecast"
)

// maxArg is the widest argument an EXTENDED_ARG pair can carry.
const maxArg = 1<<32 - 1

// Builder helps construct CPython 2.7 code buffers and their constant pools.
type Builder struct {
	code   []byte
	consts []any
}

// NewBuilder creates a new builder.
func NewBuilder() *Builder {
	return &Builder{
		code:   make([]byte, 0, 64),
		consts: make([]any, 0, 8),
	}
}

// Bytes returns the constructed code buffer.
func (b *Builder) Bytes() []byte {
	return b.code
}

// Consts returns the constant pool.
func (b *Builder) Consts() []any {
	return b.consts
}

// Len returns the current length, which is also the offset of the next instruction.
func (b *Builder) Len() int {
	return len(b.code)
}

// AddConstant adds a value to the pool and returns its index.
// Strings, integers, floats, booleans and nil are shared when already present.
func (b *Builder) AddConstant(value any) int {
	switch value.(type) {
	case nil, string, bool, int, int64, uint64, float64:
		for i, c := range b.consts {
			if c == value {
				return i
			}
		}
	}
	b.consts = append(b.consts, value)
	return len(b.consts) - 1
}

// Emit appends an argument-less opcode and returns its offset.
func (b *Builder) Emit(op Opcode) int {
	offset := len(b.code)
	b.code = append(b.code, byte(op))
	return offset
}

// EmitRaw appends raw bytes to the code buffer.
func (b *Builder) EmitRaw(data ...byte) {
	b.code = append(b.code, data...)
}

// EmitArg appends an argument-bearing opcode, inserting an EXTENDED_ARG prefix
// when arg does not fit in 16 bits. It returns the offset of the instruction
// as the interpreter reports it, which is the prefix offset when extended.
func (b *Builder) EmitArg(op Opcode, arg int) (int, error) {
	return b.emitArg(op, arg, arg >= extendedArgShift)
}

func (b *Builder) emitArg(op Opcode, arg int, extended bool) (int, error) {
	if !op.HasArg() {
		return 0, fmt.Errorf("%s does not take an argument", op)
	}
	if arg < 0 || arg > maxArg {
		return 0, fmt.Errorf("%s argument %d out of range", op, arg)
	}
	offset := len(b.code)
	if extended {
		hi, err := safecast.Conv[uint16](arg / extendedArgShift)
		if err != nil {
			return 0, fmt.Errorf("%s argument %d: %w", op, arg, err)
		}
		b.code = append(b.code, byte(OpExtendedArg), byte(hi), byte(hi>>8))
	} else if arg >= extendedArgShift {
		return 0, fmt.Errorf("%s argument %d needs EXTENDED_ARG", op, arg)
	}
	lo, err := safecast.Conv[uint16](arg % extendedArgShift)
	if err != nil {
		return 0, fmt.Errorf("%s argument %d: %w", op, arg, err)
	}
	b.code = append(b.code, byte(op), byte(lo), byte(lo>>8))
	return offset, nil
}

// EmitConst emits LOAD_CONST for value, adding it to the pool.
func (b *Builder) EmitConst(value any) int {
	offset, err := b.EmitArg(OpLoadConst, b.AddConstant(value))
	if err != nil {
		panic(err)
	}
	return offset
}

// EmitCall emits a call-shaped instruction for the given counts.
func (b *Builder) EmitCall(op Opcode, positional, keywords int) (int, error) {
	if !op.IsCall() {
		return 0, fmt.Errorf("%s is not a call instruction", op)
	}
	if positional < 0 || positional > 0xff || keywords < 0 || keywords > 0xff {
		return 0, fmt.Errorf("%s counts out of range: positional=%d keywords=%d", op, positional, keywords)
	}
	return b.EmitArg(op, keywords<<8|positional)
}

// Encode re-encodes a decoded instruction list. Encode(Decode(b)) reproduces b.
func Encode(instrs []Instruction) ([]byte, error) {
	b := NewBuilder()
	for _, in := range instrs {
		if b.Len() != in.Offset {
			return nil, fmt.Errorf("encode: instruction %s expected at offset %d, builder is at %d", in.Op, in.Offset, b.Len())
		}
		if !in.HasArg {
			if in.Op.HasArg() {
				return nil, fmt.Errorf("encode: %s at %d is missing its argument", in.Op, in.Offset)
			}
			b.Emit(in.Op)
			continue
		}
		if _, err := b.emitArg(in.Op, in.Arg, in.Extended); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	}
	return b.Bytes(), nil
}
