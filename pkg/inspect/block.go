package inspect

import (
	"fmt"

	"github.com/chazu/kworder/pkg/bytecode"
)

// FindBlockBegin returns the smallest index <= target such that no
// instruction in [index, target) is opaque.
//
// Argument-building code is emitted as one straight-line run ending at its
// call, so stopping at the nearest preceding opaque instruction (or the start
// of the stream) bounds the replay without a control-flow graph.
func FindBlockBegin(s *bytecode.Stream, target int) (int, error) {
	if target < 0 || target >= s.Len() {
		return 0, fmt.Errorf("block target %d outside stream of %d instructions", target, s.Len())
	}
	index := target
	for index > 0 {
		prev := s.At(index - 1)
		effect, err := bytecode.LookupEffect(prev.Op, prev.Offset)
		if err != nil {
			return 0, err
		}
		if effect.Kind == bytecode.EffectOpaque {
			break
		}
		index--
	}
	return index, nil
}

// CallSites returns the offsets of every call-shaped instruction in s.
func CallSites(s *bytecode.Stream) []int {
	var offsets []int
	for i := 0; i < s.Len(); i++ {
		if in := s.At(i); in.Op.IsCall() {
			offsets = append(offsets, in.Offset)
		}
	}
	return offsets
}
