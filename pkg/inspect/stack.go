package inspect

import (
	"errors"
	"fmt"

	"github.com/chazu/kworder/pkg/bytecode"
)

// ErrOpaqueInBlock is returned by Replay when the range contains an opaque
// instruction. FindBlockBegin never produces such a range.
var ErrOpaqueInBlock = errors.New("replay range contains an opaque instruction")

// SlotKind tags an abstract stack slot.
type SlotKind uint8

const (
	// SlotOpaque is an unknown runtime value; only its presence is tracked.
	SlotOpaque SlotKind = iota
	// SlotLiteral holds a constant pushed by LOAD_CONST.
	SlotLiteral
)

// Slot is one abstract operand stack entry.
type Slot struct {
	Kind  SlotKind
	Value any // constant value when Kind is SlotLiteral
}

// Literal returns a slot holding a known constant.
func Literal(v any) Slot {
	return Slot{Kind: SlotLiteral, Value: v}
}

// OpaqueSlot returns a placeholder slot.
func OpaqueSlot() Slot {
	return Slot{Kind: SlotOpaque}
}

// IsLiteral reports whether the slot holds a constant.
func (s Slot) IsLiteral() bool {
	return s.Kind == SlotLiteral
}

// String implements the Stringer interface.
func (s Slot) String() string {
	if s.IsLiteral() {
		return fmt.Sprintf("Literal(%#v)", s.Value)
	}
	return "Opaque"
}

// Stack is an abstract operand stack ordered bottom to top.
//
// Popping an empty stack is a no-op: the real depth at the start of a block is
// unknown, and only positions relative to the top matter.
type Stack struct {
	slots []Slot
}

// Push appends a slot on top.
func (s *Stack) Push(slot Slot) {
	s.slots = append(s.slots, slot)
}

// Pop removes the top slot. ok is false if the stack was already empty.
func (s *Stack) Pop() (slot Slot, ok bool) {
	if len(s.slots) == 0 {
		return Slot{}, false
	}
	slot = s.slots[len(s.slots)-1]
	s.slots = s.slots[:len(s.slots)-1]
	return slot, true
}

// apply pops pop slots and pushes push opaque slots.
func (s *Stack) apply(pop, push int) {
	if pop > len(s.slots) {
		pop = len(s.slots)
	}
	s.slots = s.slots[:len(s.slots)-pop]
	for i := 0; i < push; i++ {
		s.slots = append(s.slots, OpaqueSlot())
	}
}

// Len returns the current depth.
func (s *Stack) Len() int {
	return len(s.slots)
}

// At returns the slot at position i counted from the bottom.
func (s *Stack) At(i int) Slot {
	return s.slots[i]
}

// Slots returns a copy of the slots, bottom to top.
func (s *Stack) Slots() []Slot {
	out := make([]Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Replay simulates the instructions in [begin, end) on an empty abstract stack.
// LOAD_CONST pushes a literal from consts; everything else pushes opaque slots
// according to its effect. Calls are modeled, never executed.
func Replay(s *bytecode.Stream, consts []any, begin, end int) (*Stack, error) {
	if begin < 0 || end > s.Len() || begin > end {
		return nil, fmt.Errorf("replay range [%d, %d) outside stream of %d instructions", begin, end, s.Len())
	}

	stack := &Stack{slots: make([]Slot, 0, end-begin)}
	for _, in := range s.Slice(begin, end) {
		if in.Op == bytecode.OpLoadConst {
			if in.Arg >= len(consts) {
				return nil, &bytecode.DecodeError{
					Offset: in.Offset,
					Reason: fmt.Sprintf("LOAD_CONST index %d outside constant pool of %d", in.Arg, len(consts)),
				}
			}
			stack.Push(Literal(consts[in.Arg]))
			continue
		}

		effect, err := bytecode.LookupEffect(in.Op, in.Offset)
		if err != nil {
			return nil, err
		}
		pop, push, ok := effect.StackCounts(in.Arg)
		if !ok {
			return nil, fmt.Errorf("%w: %s at offset %d", ErrOpaqueInBlock, in.Op, in.Offset)
		}
		stack.apply(pop, push)
	}
	return stack, nil
}
