// Package binding splits keyword arguments, in the order recovered from the
// call site, between a callee's declared defaulted parameters and one
// order-preserving residual mapping.
package binding

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultResidualName is the parameter that receives the residual mapping
// when a Binder is built with New.
const DefaultResidualName = "kwargs"

var (
	ErrDuplicateKeyword  = errors.New("keyword repeated at call site")
	ErrMissingKeyword    = errors.New("recovered keyword has no value")
	ErrKeywordMismatch   = errors.New("keyword values not seen at call site")
	ErrResidualCollision = errors.New("keyword uses the residual parameter name")
)

// Binder describes one callee: which keyword names it declares as defaulted
// parameters, and the name under which it receives everything else.
type Binder struct {
	residual  string
	defaulted map[string]bool
}

// Bound is the result of binding one call.
type Bound struct {
	Defaults     map[string]any
	ResidualName string
	Residual     *OrderedMap
}

// New returns a Binder whose residual parameter is "kwargs".
func New(defaulted ...string) *Binder {
	return Named(DefaultResidualName, defaulted...)
}

// Named returns a Binder with a custom residual parameter name.
func Named(residual string, defaulted ...string) *Binder {
	b := &Binder{residual: residual, defaulted: make(map[string]bool, len(defaulted))}
	for _, name := range defaulted {
		b.defaulted[name] = true
	}
	return b
}

// ResidualName returns the residual parameter name.
func (b *Binder) ResidualName() string {
	return b.residual
}

// Bind distributes kwargs in the order given by names. Every recovered name
// must have a value in kwargs and every kwargs entry must have been
// recovered; anything else means the call site and the values disagree.
func (b *Binder) Bind(names []string, kwargs map[string]any) (*Bound, error) {
	bound := &Bound{
		Defaults:     make(map[string]any),
		ResidualName: b.residual,
		Residual:     NewOrderedMap(),
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKeyword, name)
		}
		seen[name] = true

		if name == b.residual {
			return nil, fmt.Errorf("%w: %q", ErrResidualCollision, name)
		}
		value, ok := kwargs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingKeyword, name)
		}
		if b.defaulted[name] {
			bound.Defaults[name] = value
		} else {
			bound.Residual.Set(name, value)
		}
	}

	var extra []string
	for name := range kwargs {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: %v", ErrKeywordMismatch, extra)
	}
	return bound, nil
}
