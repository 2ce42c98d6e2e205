package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info, ok := GetOpcodeInfo(op)
		if !ok || info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode %d has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	// dis.opmap in 2.7 has 119 entries.
	if got := OpcodeCount(); got != 119 {
		t.Errorf("OpcodeCount() = %d, want 119", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpStopCode, "STOP_CODE"},
		{OpPopTop, "POP_TOP"},
		{OpSlice3, "SLICE+3"},
		{OpLoadConst, "LOAD_CONST"},
		{OpCallFunction, "CALL_FUNCTION"},
		{OpCallFunctionVarKw, "CALL_FUNCTION_VAR_KW"},
		{OpExtendedArg, "EXTENDED_ARG"},
		{OpMapAdd, "MAP_ADD"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(6) // gap in the 2.7 numbering
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
}

func TestLookupEffectUnknown(t *testing.T) {
	_, err := LookupEffect(Opcode(200), 12)
	var unknown *UnknownOpcodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("LookupEffect(200) error = %v, want *UnknownOpcodeError", err)
	}
	if unknown.Offset != 12 || unknown.Opcode != 200 {
		t.Errorf("UnknownOpcodeError = %+v, want offset 12 opcode 200", unknown)
	}
}

func TestOpcodeHasArg(t *testing.T) {
	tests := []struct {
		op   Opcode
		want bool
	}{
		{OpBuildClass, false},
		{OpStoreName, true},
		{OpLoadConst, true},
		{OpReturnValue, false},
		{OpExtendedArg, true},
	}

	for _, tt := range tests {
		if got := tt.op.HasArg(); got != tt.want {
			t.Errorf("%s.HasArg() = %t, want %t", tt.op, got, tt.want)
		}
		want := 1
		if tt.want {
			want = 3
		}
		if got := tt.op.InstructionLen(); got != want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, want)
		}
	}
}

func TestOpaqueOpcodes(t *testing.T) {
	opaque := []Opcode{
		OpJumpForward, OpJumpAbsolute, OpPopJumpIfFalse, OpPopJumpIfTrue,
		OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpForIter, OpSetupLoop,
		OpSetupExcept, OpSetupFinally, OpSetupWith, OpWithCleanup, OpPopBlock,
		OpEndFinally, OpReturnValue, OpRaiseVarargs, OpYieldValue, OpBreakLoop,
		OpContinueLoop, OpStopCode, OpExtendedArg,
	}
	for _, op := range opaque {
		if !op.IsOpaque() {
			t.Errorf("%s.IsOpaque() = false, want true", op)
		}
	}

	summarised := []Opcode{OpLoadConst, OpBinaryAdd, OpCallFunction, OpBuildTuple, OpRotTwo}
	for _, op := range summarised {
		if op.IsOpaque() {
			t.Errorf("%s.IsOpaque() = true, want false", op)
		}
	}
}

func TestCallOpcodes(t *testing.T) {
	tests := []struct {
		op     Opcode
		varPos bool
		kw     bool
		marked int
	}{
		{OpCallFunction, false, false, 0},
		{OpCallFunctionVar, true, false, 1},
		{OpCallFunctionKw, false, true, 1},
		{OpCallFunctionVarKw, true, true, 2},
	}

	for _, tt := range tests {
		if !tt.op.IsCall() {
			t.Errorf("%s.IsCall() = false, want true", tt.op)
			continue
		}
		info, _ := GetOpcodeInfo(tt.op)
		if info.Effect.VarPositional != tt.varPos || info.Effect.KeywordMapping != tt.kw {
			t.Errorf("%s effect = %s, want var=%t kw=%t", tt.op, info.Effect, tt.varPos, tt.kw)
		}
		if got := info.Effect.Markers(); got != tt.marked {
			t.Errorf("%s.Markers() = %d, want %d", tt.op, got, tt.marked)
		}
	}

	if OpMakeFunction.IsCall() {
		t.Error("MAKE_FUNCTION.IsCall() = true, want false")
	}
}
