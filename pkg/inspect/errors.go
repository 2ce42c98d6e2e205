package inspect

import (
	"fmt"

	"github.com/chazu/kworder/pkg/bytecode"
)

// NotACallSiteError reports an offset that does not name a call-shaped
// instruction. It usually means the frame's program counter is stale.
type NotACallSiteError struct {
	Offset int
	Opcode bytecode.Opcode // zero when no instruction starts at Offset
	Reason string
}

func (e *NotACallSiteError) Error() string {
	return fmt.Sprintf("offset %d is not a call site: %s", e.Offset, e.Reason)
}

// UnsupportedCallPatternError reports a keyword whose name is not a string
// constant at the expected stack position, such as a computed name.
type UnsupportedCallPatternError struct {
	Offset int // offset of the call instruction
	Pair   int // keyword pair index in source order
	Reason string
}

func (e *UnsupportedCallPatternError) Error() string {
	return fmt.Sprintf("unsupported call pattern at offset %d, keyword %d: %s", e.Offset, e.Pair, e.Reason)
}
