package bytecode

import "fmt"

// Opcode represents a CPython 2.7 bytecode instruction.
// Opcodes at or above HaveArgument carry a 16-bit little-endian argument.
type Opcode byte

const (
	// ========================================================================
	// Argument-less opcodes (0x00-0x59)
	// ========================================================================

	OpStopCode          Opcode = 0
	OpPopTop            Opcode = 1
	OpRotTwo            Opcode = 2
	OpRotThree          Opcode = 3
	OpDupTop            Opcode = 4
	OpRotFour           Opcode = 5
	OpNop               Opcode = 9
	OpUnaryPositive     Opcode = 10
	OpUnaryNegative     Opcode = 11
	OpUnaryNot          Opcode = 12
	OpUnaryConvert      Opcode = 13
	OpUnaryInvert       Opcode = 15
	OpBinaryPower       Opcode = 19
	OpBinaryMultiply    Opcode = 20
	OpBinaryDivide      Opcode = 21
	OpBinaryModulo      Opcode = 22
	OpBinaryAdd         Opcode = 23
	OpBinarySubtract    Opcode = 24
	OpBinarySubscr      Opcode = 25
	OpBinaryFloorDivide Opcode = 26
	OpBinaryTrueDivide  Opcode = 27
	OpInplaceFloorDiv   Opcode = 28
	OpInplaceTrueDiv    Opcode = 29
	OpSlice0            Opcode = 30
	OpSlice1            Opcode = 31
	OpSlice2            Opcode = 32
	OpSlice3            Opcode = 33
	OpStoreSlice0       Opcode = 40
	OpStoreSlice1       Opcode = 41
	OpStoreSlice2       Opcode = 42
	OpStoreSlice3       Opcode = 43
	OpDeleteSlice0      Opcode = 50
	OpDeleteSlice1      Opcode = 51
	OpDeleteSlice2      Opcode = 52
	OpDeleteSlice3      Opcode = 53
	OpStoreMap          Opcode = 54
	OpInplaceAdd        Opcode = 55
	OpInplaceSubtract   Opcode = 56
	OpInplaceMultiply   Opcode = 57
	OpInplaceDivide     Opcode = 58
	OpInplaceModulo     Opcode = 59
	OpStoreSubscr       Opcode = 60
	OpDeleteSubscr      Opcode = 61
	OpBinaryLshift      Opcode = 62
	OpBinaryRshift      Opcode = 63
	OpBinaryAnd         Opcode = 64
	OpBinaryXor         Opcode = 65
	OpBinaryOr          Opcode = 66
	OpInplacePower      Opcode = 67
	OpGetIter           Opcode = 68
	OpPrintExpr         Opcode = 70
	OpPrintItem         Opcode = 71
	OpPrintNewline      Opcode = 72
	OpPrintItemTo       Opcode = 73
	OpPrintNewlineTo    Opcode = 74
	OpInplaceLshift     Opcode = 75
	OpInplaceRshift     Opcode = 76
	OpInplaceAnd        Opcode = 77
	OpInplaceXor        Opcode = 78
	OpInplaceOr         Opcode = 79
	OpBreakLoop         Opcode = 80
	OpWithCleanup       Opcode = 81
	OpLoadLocals        Opcode = 82
	OpReturnValue       Opcode = 83
	OpImportStar        Opcode = 84
	OpExecStmt          Opcode = 85
	OpYieldValue        Opcode = 86
	OpPopBlock          Opcode = 87
	OpEndFinally        Opcode = 88
	OpBuildClass        Opcode = 89

	// ========================================================================
	// Argument-bearing opcodes (0x5A-0xFF)
	// ========================================================================

	OpStoreName         Opcode = 90
	OpDeleteName        Opcode = 91
	OpUnpackSequence    Opcode = 92
	OpForIter           Opcode = 93
	OpListAppend        Opcode = 94
	OpStoreAttr         Opcode = 95
	OpDeleteAttr        Opcode = 96
	OpStoreGlobal       Opcode = 97
	OpDeleteGlobal      Opcode = 98
	OpDupTopX           Opcode = 99
	OpLoadConst         Opcode = 100
	OpLoadName          Opcode = 101
	OpBuildTuple        Opcode = 102
	OpBuildList         Opcode = 103
	OpBuildSet          Opcode = 104
	OpBuildMap          Opcode = 105
	OpLoadAttr          Opcode = 106
	OpCompareOp         Opcode = 107
	OpImportName        Opcode = 108
	OpImportFrom        Opcode = 109
	OpJumpForward       Opcode = 110
	OpJumpIfFalseOrPop  Opcode = 111
	OpJumpIfTrueOrPop   Opcode = 112
	OpJumpAbsolute      Opcode = 113
	OpPopJumpIfFalse    Opcode = 114
	OpPopJumpIfTrue     Opcode = 115
	OpLoadGlobal        Opcode = 116
	OpContinueLoop      Opcode = 119
	OpSetupLoop         Opcode = 120
	OpSetupExcept       Opcode = 121
	OpSetupFinally      Opcode = 122
	OpLoadFast          Opcode = 124
	OpStoreFast         Opcode = 125
	OpDeleteFast        Opcode = 126
	OpRaiseVarargs      Opcode = 130
	OpCallFunction      Opcode = 131
	OpMakeFunction      Opcode = 132
	OpBuildSlice        Opcode = 133
	OpMakeClosure       Opcode = 134
	OpLoadClosure       Opcode = 135
	OpLoadDeref         Opcode = 136
	OpStoreDeref        Opcode = 137
	OpCallFunctionVar   Opcode = 140
	OpCallFunctionKw    Opcode = 141
	OpCallFunctionVarKw Opcode = 142
	OpSetupWith         Opcode = 143
	OpExtendedArg       Opcode = 145
	OpSetAdd            Opcode = 146
	OpMapAdd            Opcode = 147
)

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name   string // dis.opname spelling
	Effect Effect // stack effect used by the abstract interpreter
}

// Shortcuts for the common effect shapes.
var (
	nop      = Fixed(0, 0)
	unaryOp  = Fixed(1, 1)
	binaryOp = Fixed(2, 1)
	ternary  = Fixed(3, 1)
	naryOp   = Dynamic(0, 1, CountPop)
	pop1     = Fixed(1, 0)
	pop2     = Fixed(2, 0)
	pop3     = Fixed(3, 0)
	pop4     = Fixed(4, 0)
	push1    = Fixed(0, 1)
	opaque   = Opaque()
)

// opcodeInfoTable maps every opcode of the pinned instruction set to its metadata.
// Anything opening or closing a loop, exception or with region, and anything that
// transfers control, is opaque.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpStopCode:  {"STOP_CODE", opaque},
	OpPopTop:    {"POP_TOP", pop1},
	OpRotTwo:    {"ROT_TWO", Fixed(2, 2)},
	OpRotThree:  {"ROT_THREE", Fixed(3, 3)},
	OpDupTop:    {"DUP_TOP", push1},
	OpRotFour:   {"ROT_FOUR", Fixed(4, 4)},
	OpNop:       {"NOP", nop},
	OpDupTopX:   {"DUP_TOPX", Dynamic(0, 0, CountPush)},
	OpLoadConst: {"LOAD_CONST", push1},

	// Unary
	OpUnaryPositive: {"UNARY_POSITIVE", unaryOp},
	OpUnaryNegative: {"UNARY_NEGATIVE", unaryOp},
	OpUnaryNot:      {"UNARY_NOT", unaryOp},
	OpUnaryConvert:  {"UNARY_CONVERT", unaryOp},
	OpUnaryInvert:   {"UNARY_INVERT", unaryOp},
	OpGetIter:       {"GET_ITER", unaryOp},

	// Binary
	OpBinaryPower:       {"BINARY_POWER", binaryOp},
	OpBinaryMultiply:    {"BINARY_MULTIPLY", binaryOp},
	OpBinaryDivide:      {"BINARY_DIVIDE", binaryOp},
	OpBinaryModulo:      {"BINARY_MODULO", binaryOp},
	OpBinaryAdd:         {"BINARY_ADD", binaryOp},
	OpBinarySubtract:    {"BINARY_SUBTRACT", binaryOp},
	OpBinarySubscr:      {"BINARY_SUBSCR", binaryOp},
	OpBinaryFloorDivide: {"BINARY_FLOOR_DIVIDE", binaryOp},
	OpBinaryTrueDivide:  {"BINARY_TRUE_DIVIDE", binaryOp},
	OpBinaryLshift:      {"BINARY_LSHIFT", binaryOp},
	OpBinaryRshift:      {"BINARY_RSHIFT", binaryOp},
	OpBinaryAnd:         {"BINARY_AND", binaryOp},
	OpBinaryXor:         {"BINARY_XOR", binaryOp},
	OpBinaryOr:          {"BINARY_OR", binaryOp},
	OpCompareOp:         {"COMPARE_OP", binaryOp},

	// In-place
	OpInplaceFloorDiv: {"INPLACE_FLOOR_DIVIDE", binaryOp},
	OpInplaceTrueDiv:  {"INPLACE_TRUE_DIVIDE", binaryOp},
	OpInplaceAdd:      {"INPLACE_ADD", binaryOp},
	OpInplaceSubtract: {"INPLACE_SUBTRACT", binaryOp},
	OpInplaceMultiply: {"INPLACE_MULTIPLY", binaryOp},
	OpInplaceDivide:   {"INPLACE_DIVIDE", binaryOp},
	OpInplaceModulo:   {"INPLACE_MODULO", binaryOp},
	OpInplacePower:    {"INPLACE_POWER", binaryOp},
	OpInplaceLshift:   {"INPLACE_LSHIFT", binaryOp},
	OpInplaceRshift:   {"INPLACE_RSHIFT", binaryOp},
	OpInplaceAnd:      {"INPLACE_AND", binaryOp},
	OpInplaceXor:      {"INPLACE_XOR", binaryOp},
	OpInplaceOr:       {"INPLACE_OR", binaryOp},

	// Slices
	OpSlice0:       {"SLICE+0", unaryOp},
	OpSlice1:       {"SLICE+1", binaryOp},
	OpSlice2:       {"SLICE+2", binaryOp},
	OpSlice3:       {"SLICE+3", ternary},
	OpStoreSlice0:  {"STORE_SLICE+0", pop2},
	OpStoreSlice1:  {"STORE_SLICE+1", pop3},
	OpStoreSlice2:  {"STORE_SLICE+2", pop3},
	OpStoreSlice3:  {"STORE_SLICE+3", pop4},
	OpDeleteSlice0: {"DELETE_SLICE+0", pop1},
	OpDeleteSlice1: {"DELETE_SLICE+1", pop2},
	OpDeleteSlice2: {"DELETE_SLICE+2", pop2},
	OpDeleteSlice3: {"DELETE_SLICE+3", pop3},
	OpBuildSlice:   {"BUILD_SLICE", naryOp},

	// Containers
	OpStoreMap:       {"STORE_MAP", pop2},
	OpStoreSubscr:    {"STORE_SUBSCR", pop3},
	OpDeleteSubscr:   {"DELETE_SUBSCR", pop2},
	OpBuildTuple:     {"BUILD_TUPLE", naryOp},
	OpBuildList:      {"BUILD_LIST", naryOp},
	OpBuildSet:       {"BUILD_SET", naryOp},
	OpBuildMap:       {"BUILD_MAP", push1}, // argument is a size hint
	OpListAppend:     {"LIST_APPEND", pop1},
	OpSetAdd:         {"SET_ADD", pop1},
	OpMapAdd:         {"MAP_ADD", pop2},
	OpUnpackSequence: {"UNPACK_SEQUENCE", Dynamic(1, 0, CountPush)},

	// Printing and statements
	OpPrintExpr:      {"PRINT_EXPR", pop1},
	OpPrintItem:      {"PRINT_ITEM", pop1},
	OpPrintNewline:   {"PRINT_NEWLINE", nop},
	OpPrintItemTo:    {"PRINT_ITEM_TO", pop2},
	OpPrintNewlineTo: {"PRINT_NEWLINE_TO", pop1},
	OpExecStmt:       {"EXEC_STMT", pop3},
	OpBuildClass:     {"BUILD_CLASS", ternary},
	OpImportName:     {"IMPORT_NAME", binaryOp},
	OpImportFrom:     {"IMPORT_FROM", push1},
	OpImportStar:     {"IMPORT_STAR", pop1},
	OpLoadLocals:     {"LOAD_LOCALS", push1},

	// Names
	OpStoreName:    {"STORE_NAME", pop1},
	OpDeleteName:   {"DELETE_NAME", nop},
	OpStoreAttr:    {"STORE_ATTR", pop2},
	OpDeleteAttr:   {"DELETE_ATTR", pop1},
	OpStoreGlobal:  {"STORE_GLOBAL", pop1},
	OpDeleteGlobal: {"DELETE_GLOBAL", nop},
	OpLoadName:     {"LOAD_NAME", push1},
	OpLoadAttr:     {"LOAD_ATTR", unaryOp},
	OpLoadGlobal:   {"LOAD_GLOBAL", push1},
	OpLoadFast:     {"LOAD_FAST", push1},
	OpStoreFast:    {"STORE_FAST", pop1},
	OpDeleteFast:   {"DELETE_FAST", nop},
	OpLoadClosure:  {"LOAD_CLOSURE", push1},
	OpLoadDeref:    {"LOAD_DEREF", push1},
	OpStoreDeref:   {"STORE_DEREF", pop1},

	// Functions
	OpMakeFunction:      {"MAKE_FUNCTION", Dynamic(1, 1, CountPop)},
	OpMakeClosure:       {"MAKE_CLOSURE", Dynamic(2, 1, CountPop)},
	OpCallFunction:      {"CALL_FUNCTION", Call(false, false)},
	OpCallFunctionVar:   {"CALL_FUNCTION_VAR", Call(true, false)},
	OpCallFunctionKw:    {"CALL_FUNCTION_KW", Call(false, true)},
	OpCallFunctionVarKw: {"CALL_FUNCTION_VAR_KW", Call(true, true)},

	// Control flow and regions
	OpJumpForward:      {"JUMP_FORWARD", opaque},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", opaque},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", opaque},
	OpJumpAbsolute:     {"JUMP_ABSOLUTE", opaque},
	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", opaque},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", opaque},
	OpForIter:          {"FOR_ITER", opaque},
	OpContinueLoop:     {"CONTINUE_LOOP", opaque},
	OpBreakLoop:        {"BREAK_LOOP", opaque},
	OpSetupLoop:        {"SETUP_LOOP", opaque},
	OpSetupExcept:      {"SETUP_EXCEPT", opaque},
	OpSetupFinally:     {"SETUP_FINALLY", opaque},
	OpSetupWith:        {"SETUP_WITH", opaque},
	OpWithCleanup:      {"WITH_CLEANUP", opaque},
	OpPopBlock:         {"POP_BLOCK", opaque},
	OpEndFinally:       {"END_FINALLY", opaque},
	OpReturnValue:      {"RETURN_VALUE", opaque},
	OpRaiseVarargs:     {"RAISE_VARARGS", opaque},
	OpYieldValue:       {"YIELD_VALUE", opaque},
	OpExtendedArg:      {"EXTENDED_ARG", opaque},
}

// GetOpcodeInfo returns metadata for an opcode.
// The boolean is false if the opcode is not part of the pinned instruction set.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// LookupEffect returns the stack effect of op, or an *UnknownOpcodeError.
// An unknown opcode is never treated as a no-op.
func LookupEffect(op Opcode, offset int) (Effect, error) {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return Effect{}, &UnknownOpcodeError{Offset: offset, Opcode: op}
	}
	return info.Effect, nil
}

// String returns the dis.opname spelling of an opcode.
func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(op))
}

// HasArg reports whether the opcode carries an argument in the pinned encoding.
func (op Opcode) HasArg() bool {
	return int(op) >= Python27.HaveArgument
}

// InstructionLen returns the encoded length of a non-extended instruction.
func (op Opcode) InstructionLen() int {
	if op.HasArg() {
		return 1 + Python27.ArgWidth
	}
	return 1
}

// IsCall reports whether the opcode is call-shaped.
func (op Opcode) IsCall() bool {
	info, ok := opcodeInfoTable[op]
	return ok && info.Effect.Kind == EffectCall
}

// IsOpaque reports whether the opcode is a hard analysis boundary.
func (op Opcode) IsOpaque() bool {
	info, ok := opcodeInfoTable[op]
	return ok && info.Effect.Kind == EffectOpaque
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
