// Package bytecode decodes, encodes and describes CPython 2.7 code buffers.
//
// The package is pinned to a single instruction-set version (see Python27).
// Opcode numbering, the has-argument threshold and the argument width are
// authored statically rather than read from a live interpreter, and buffers
// that declare a different encoding are rejected.
//
// # Components
//
//   - Opcodes: every 2.7 opcode mapped to an Effect describing what it does to
//     the operand stack. Opcodes missing from the table produce an
//     *UnknownOpcodeError instead of a silent no-op.
//
//   - Decode: turns a raw buffer into a Stream of Instructions, folding each
//     EXTENDED_ARG into the argument of the instruction that follows it.
//
//   - Encode and Builder: the inverse of Decode. Encode(Decode(b)) returns b
//     byte for byte, including EXTENDED_ARG prefixes.
//
//   - Disassemble: an offset-prefixed listing for debugging.
//
// # Effects
//
// Each Effect is one of four variants:
//
//   - Fixed(pop, push)
//   - DynamicCount(popBase, pushBase, source), where the argument is added to
//     the pop or push count
//   - Call(varPositional, keywordMapping), whose argument packs the positional
//     count in the low byte and the keyword-pair count in the next byte
//   - Opaque, for control flow and region setup/teardown
//
// Effect.StackCounts is the only place the variant is switched on.
package bytecode
