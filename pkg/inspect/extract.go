package inspect

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/kworder/pkg/bytecode"
)

// Frame is the calling-frame context supplied by a host integration shim.
type Frame struct {
	// Procedure identifies the code object. It keys the decode cache; when
	// empty the code digest is used instead.
	Procedure string
	Code      []byte            // raw instruction buffer
	Consts    []any             // literal constant pool
	Offset    int               // program counter of the executing call
	Encoding  bytecode.Encoding // what the producer declared, if anything
}

// SiteResult is the outcome of extracting one call site during a scan.
type SiteResult struct {
	Offset int
	Names  []string
	Err    error
}

// Extractor recovers keyword order from call sites.
// The zero value is not usable; construct with NewExtractor.
type Extractor struct {
	set   *bytecode.InstructionSet
	cache *Cache
	log   commonlog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache shares a decode cache across extractions.
func WithCache(c *Cache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithInstructionSet pins a different instruction set description.
func WithInstructionSet(set *bytecode.InstructionSet) Option {
	return func(e *Extractor) { e.set = set }
}

// WithLogger replaces the package logger.
func WithLogger(log commonlog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// NewExtractor creates an extractor pinned to CPython 2.7.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		set: bytecode.Python27,
		log: commonlog.GetLogger("kworder.inspect"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KeywordNames returns the keyword names supplied to the call at f.Offset, in
// the order they were written. It builds and discards all state per call.
func KeywordNames(f Frame) ([]string, error) {
	return NewExtractor().KeywordNames(f)
}

// KeywordNames returns the keyword names supplied to the call at f.Offset.
// The result has exactly as many entries as the call has keyword pairs;
// duplicates are preserved.
func (e *Extractor) KeywordNames(f Frame) ([]string, error) {
	stream, err := e.decode(f)
	if err != nil {
		return nil, err
	}
	if e.cache == nil {
		return e.namesAt(stream, f.Consts, f.Offset)
	}

	// Names depend on the constant pool as well as the code.
	frame, err := FrameDigest(f.Code, f.Consts)
	if err != nil {
		e.log.Debugf("not memoizing names for %q: %v", f.Procedure, err)
		return e.namesAt(stream, f.Consts, f.Offset)
	}
	key, digest := e.cacheKey(f), codeDigest(f.Code)
	nk := namesKey{offset: f.Offset, frame: frame}
	if names, ok := e.cache.names(e.set, key, digest, nk); ok {
		e.log.Debugf("cache hit for %q at %d", key, f.Offset)
		return names, nil
	}
	names, err := e.namesAt(stream, f.Consts, f.Offset)
	if err != nil {
		return nil, err
	}
	e.cache.storeNames(e.set, key, digest, nk, names)
	return names, nil
}

// Scan extracts every call site in f. f.Offset is ignored. A decode failure
// aborts the scan; per-site failures are reported in SiteResult.Err.
func (e *Extractor) Scan(f Frame) ([]SiteResult, error) {
	stream, err := e.decode(f)
	if err != nil {
		return nil, err
	}
	sites := CallSites(stream)
	results := make([]SiteResult, 0, len(sites))
	for _, off := range sites {
		names, err := e.namesAt(stream, f.Consts, off)
		results = append(results, SiteResult{Offset: off, Names: names, Err: err})
	}
	e.log.Debugf("scanned %d call sites in %q", len(results), f.Procedure)
	return results, nil
}

// Disassemble decodes f and returns its listing.
func (e *Extractor) Disassemble(f Frame) (string, error) {
	stream, err := e.decode(f)
	if err != nil {
		return "", err
	}
	return bytecode.Disassemble(stream, f.Consts), nil
}

func (e *Extractor) cacheKey(f Frame) string {
	if f.Procedure != "" {
		return f.Procedure
	}
	return codeDigest(f.Code).String()
}

func (e *Extractor) decode(f Frame) (*bytecode.Stream, error) {
	if err := e.set.Check(f.Encoding); err != nil {
		return nil, err
	}
	if e.cache != nil {
		return e.cache.Stream(e.cacheKey(f), f.Code, e.set)
	}
	return e.set.Decode(f.Code)
}

func (e *Extractor) namesAt(s *bytecode.Stream, consts []any, offset int) ([]string, error) {
	target, ok := s.IndexOf(offset)
	if !ok {
		return nil, &NotACallSiteError{Offset: offset, Reason: "no instruction starts at this offset"}
	}
	call := s.At(target)
	effect, err := bytecode.LookupEffect(call.Op, call.Offset)
	if err != nil {
		return nil, err
	}
	if effect.Kind != bytecode.EffectCall {
		return nil, &NotACallSiteError{Offset: offset, Opcode: call.Op, Reason: fmt.Sprintf("%s is not call-shaped", call.Op)}
	}

	begin, err := FindBlockBegin(s, target)
	if err != nil {
		return nil, err
	}
	stack, err := Replay(s, consts, begin, target)
	if err != nil {
		return nil, err
	}

	_, keywords := bytecode.CallArgs(call.Arg)
	e.log.Debugf("%s at %d: block starts at instruction %d, depth %d, %d keyword pairs",
		call.Op, call.Offset, begin, stack.Len(), keywords)

	// Keyword pairs sit directly below the *args / **kwargs collectors, each
	// pushed as key then value.
	top := stack.Len() - effect.Markers()
	names := make([]string, keywords)
	for pair := keywords - 1; pair >= 0; pair-- {
		pos := top - 2*(keywords-pair)
		if pos < 0 {
			return nil, &UnsupportedCallPatternError{Offset: offset, Pair: pair, Reason: "key is pushed before the enclosing block starts"}
		}
		slot := stack.At(pos)
		if !slot.IsLiteral() {
			return nil, &UnsupportedCallPatternError{Offset: offset, Pair: pair, Reason: "key is not a constant"}
		}
		name, ok := slot.Value.(string)
		if !ok {
			return nil, &UnsupportedCallPatternError{Offset: offset, Pair: pair, Reason: fmt.Sprintf("key constant is %T, not a string", slot.Value)}
		}
		names[pair] = name
	}
	return names, nil
}
