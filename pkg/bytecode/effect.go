package bytecode

import "fmt"

// EffectKind tags the variant held by an Effect.
type EffectKind uint8

const (
	// EffectFixed pops and pushes constant counts.
	EffectFixed EffectKind = iota
	// EffectDynamic adds the instruction argument to one of its counts.
	EffectDynamic
	// EffectCall is a call-shaped instruction whose argument encodes the
	// positional and keyword-pair counts.
	EffectCall
	// EffectOpaque alters control flow or opens/closes a region. Opaque
	// instructions are hard block boundaries and are never replayed.
	EffectOpaque
)

// String returns a human-readable name for the kind.
func (k EffectKind) String() string {
	switch k {
	case EffectFixed:
		return "fixed"
	case EffectDynamic:
		return "dynamic"
	case EffectCall:
		return "call"
	case EffectOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("EffectKind(%d)", k)
	}
}

// CountSource says which count of a dynamic effect receives the argument.
type CountSource uint8

const (
	CountPop CountSource = iota
	CountPush
)

// Effect describes how an instruction changes the operand stack.
// Only the fields relevant to Kind are meaningful.
type Effect struct {
	Kind EffectKind

	Pop  int // fixed pops, or base pops for EffectDynamic
	Push int // fixed pushes, or base pushes for EffectDynamic

	Count CountSource // EffectDynamic only

	VarPositional  bool // EffectCall: a *args collector sits above the keyword pairs
	KeywordMapping bool // EffectCall: a **kwargs collector sits on top
}

// Fixed returns an effect popping pop and pushing push slots.
func Fixed(pop, push int) Effect {
	return Effect{Kind: EffectFixed, Pop: pop, Push: push}
}

// Dynamic returns an effect whose pop or push count is extended by the
// instruction argument.
func Dynamic(popBase, pushBase int, source CountSource) Effect {
	return Effect{Kind: EffectDynamic, Pop: popBase, Push: pushBase, Count: source}
}

// Call returns a call-shaped effect.
func Call(hasVarPositional, hasKeywordMapping bool) Effect {
	return Effect{Kind: EffectCall, VarPositional: hasVarPositional, KeywordMapping: hasKeywordMapping}
}

// Opaque returns the boundary effect.
func Opaque() Effect {
	return Effect{Kind: EffectOpaque}
}

// Markers returns how many collector slots a call effect expects above its
// keyword pairs.
func (e Effect) Markers() int {
	n := 0
	if e.VarPositional {
		n++
	}
	if e.KeywordMapping {
		n++
	}
	return n
}

// CallArgs splits a merged call argument into its positional and keyword-pair
// counts: low byte positional, next byte keyword pairs.
func CallArgs(arg int) (positional, keywords int) {
	return arg & 0xff, (arg >> 8) & 0xff
}

// StackCounts resolves the effect against an instruction argument.
// Opaque effects have no summary and report ok == false.
func (e Effect) StackCounts(arg int) (pop, push int, ok bool) {
	switch e.Kind {
	case EffectFixed:
		return e.Pop, e.Push, true
	case EffectDynamic:
		if e.Count == CountPop {
			return e.Pop + arg, e.Push, true
		}
		return e.Pop, e.Push + arg, true
	case EffectCall:
		positional, keywords := CallArgs(arg)
		return 1 + positional + 2*keywords + e.Markers(), 1, true
	case EffectOpaque:
		return 0, 0, false
	default:
		panic(fmt.Sprintf("bytecode: unhandled effect kind %s", e.Kind))
	}
}

// String implements the Stringer interface.
func (e Effect) String() string {
	switch e.Kind {
	case EffectFixed:
		return fmt.Sprintf("Fixed(%d, %d)", e.Pop, e.Push)
	case EffectDynamic:
		src := "pop"
		if e.Count == CountPush {
			src = "push"
		}
		return fmt.Sprintf("DynamicCount(%d, %d, %s)", e.Pop, e.Push, src)
	case EffectCall:
		return fmt.Sprintf("Call(var=%t, kw=%t)", e.VarPositional, e.KeywordMapping)
	default:
		return "Opaque"
	}
}
