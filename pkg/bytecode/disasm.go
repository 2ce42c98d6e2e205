package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a decoded stream.
// consts may be nil; when present LOAD_CONST lines carry the constant value.
func Disassemble(s *Stream, consts []any) string {
	var sb strings.Builder
	for _, line := range DisassembleToLines(s, consts) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleToLines returns the disassembly as a slice of lines.
func DisassembleToLines(s *Stream, consts []any) []string {
	lines := make([]string, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		lines = append(lines, DisassembleInstruction(s.At(i), consts))
	}
	return lines
}

// DisassembleInstruction formats a single instruction.
func DisassembleInstruction(in Instruction, consts []any) string {
	if !in.HasArg {
		return fmt.Sprintf("%04d  %s", in.Offset, in.Op)
	}

	head := fmt.Sprintf("%04d  %-22s %d", in.Offset, in.Op, in.Arg)
	var note string
	switch {
	case in.Op == OpLoadConst:
		if in.Arg < len(consts) {
			note = formatConst(consts[in.Arg])
		}
	case in.Op.IsCall():
		positional, keywords := CallArgs(in.Arg)
		note = fmt.Sprintf("positional=%d keywords=%d", positional, keywords)
	case in.Op == OpJumpForward, in.Op == OpForIter, in.Op == OpSetupLoop,
		in.Op == OpSetupExcept, in.Op == OpSetupFinally, in.Op == OpSetupWith:
		note = fmt.Sprintf("-> %04d", in.Offset+in.Length+in.Arg)
	case in.Op == OpJumpAbsolute, in.Op == OpPopJumpIfFalse, in.Op == OpPopJumpIfTrue,
		in.Op == OpJumpIfFalseOrPop, in.Op == OpJumpIfTrueOrPop, in.Op == OpContinueLoop:
		note = fmt.Sprintf("-> %04d", in.Arg)
	}
	if in.Extended {
		if note != "" {
			note += " "
		}
		note += "[EXT]"
	}
	if note == "" {
		return head
	}
	return head + " ; " + note
}

// formatConst renders a constant, truncating long strings for readability.
func formatConst(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return fmt.Sprintf("%q", s)
}
