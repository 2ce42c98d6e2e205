package inspect

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/chazu/kworder/pkg/bytecode"
)

// callFrame assembles `callee(positional..., k1=v1, k2=v2, ...)` preceded by
// prelude and returns the frame pointing at the call.
func callFrame(t *testing.T, prelude func(b *bytecode.Builder), op bytecode.Opcode, positional int, keys ...string) Frame {
	t.Helper()
	b := bytecode.NewBuilder()
	if prelude != nil {
		prelude(b)
	}
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	for i := 0; i < positional; i++ {
		b.EmitConst(i + 1)
	}
	for i, k := range keys {
		b.EmitConst(k)
		b.EmitConst(10 * (i + 1))
	}
	info, _ := bytecode.GetOpcodeInfo(op)
	if info.Effect.VarPositional {
		b.EmitArg(bytecode.OpLoadFast, 0)
	}
	if info.Effect.KeywordMapping {
		b.EmitArg(bytecode.OpLoadFast, 1)
	}
	off, err := b.EmitCall(op, positional, len(keys))
	if err != nil {
		t.Fatalf("EmitCall failed: %v", err)
	}
	b.Emit(bytecode.OpPopTop)
	return Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off}
}

func TestKeywordNamesExample(t *testing.T) {
	// LOAD callee; LOAD_CONST 1; "x"; 10; "y"; 20; CALL(positional=1, keywords=2)
	f := callFrame(t, nil, bytecode.OpCallFunction, 1, "x", "y")
	names, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if want := []string{"x", "y"}; !reflect.DeepEqual(names, want) {
		t.Errorf("KeywordNames = %v, want %v", names, want)
	}
}

func TestKeywordNamesCallShapes(t *testing.T) {
	tests := []struct {
		name       string
		op         bytecode.Opcode
		positional int
		keys       []string
	}{
		{"no keywords", bytecode.OpCallFunction, 2, nil},
		{"only keywords", bytecode.OpCallFunction, 0, []string{"b", "a", "c"}},
		{"var positional", bytecode.OpCallFunctionVar, 1, []string{"z", "y"}},
		{"keyword mapping", bytecode.OpCallFunctionKw, 0, []string{"name"}},
		{"both collectors", bytecode.OpCallFunctionVarKw, 3, []string{"p", "q", "r", "s"}},
		{"duplicates preserved", bytecode.OpCallFunction, 0, []string{"x", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := callFrame(t, nil, tt.op, tt.positional, tt.keys...)
			names, err := KeywordNames(f)
			if err != nil {
				t.Fatalf("KeywordNames failed: %v", err)
			}
			if len(names) != len(tt.keys) {
				t.Fatalf("len(names) = %d, want %d", len(names), len(tt.keys))
			}
			for i := range tt.keys {
				if names[i] != tt.keys[i] {
					t.Errorf("names[%d] = %q, want %q", i, names[i], tt.keys[i])
				}
			}
		})
	}
}

func TestKeywordNamesZeroKeywords(t *testing.T) {
	f := callFrame(t, nil, bytecode.OpCallFunction, 0)
	names, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if names == nil || len(names) != 0 {
		t.Errorf("KeywordNames = %#v, want empty list", names)
	}
}

func TestKeywordNamesIdempotent(t *testing.T) {
	f := callFrame(t, nil, bytecode.OpCallFunction, 1, "first", "second")
	a, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	b, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated extraction differs: %v vs %v", a, b)
	}
}

func TestKeywordNamesNestedCall(t *testing.T) {
	// f(a=g(1, b=2), c=3): the inner call collapses to one opaque value.
	b := bytecode.NewBuilder()
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	b.EmitConst("a")
	b.EmitArg(bytecode.OpLoadGlobal, 1)
	b.EmitConst(1)
	b.EmitConst("b")
	b.EmitConst(2)
	inner, _ := b.EmitCall(bytecode.OpCallFunction, 1, 1)
	b.EmitConst("c")
	b.EmitConst(3)
	outer, _ := b.EmitCall(bytecode.OpCallFunction, 0, 2)

	f := Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: outer}
	names, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(names, want) {
		t.Errorf("outer KeywordNames = %v, want %v", names, want)
	}

	f.Offset = inner
	names, err = KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if want := []string{"b"}; !reflect.DeepEqual(names, want) {
		t.Errorf("inner KeywordNames = %v, want %v", names, want)
	}
}

func TestKeywordNamesComputedKey(t *testing.T) {
	// Same shape as the example but the first key comes from LOAD_FAST.
	b := bytecode.NewBuilder()
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	b.EmitConst(1)
	b.EmitArg(bytecode.OpLoadFast, 0)
	b.EmitConst(10)
	b.EmitConst("y")
	b.EmitConst(20)
	off, _ := b.EmitCall(bytecode.OpCallFunction, 1, 2)

	_, err := KeywordNames(Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off})
	var ue *UnsupportedCallPatternError
	if !errors.As(err, &ue) {
		t.Fatalf("KeywordNames error = %v, want *UnsupportedCallPatternError", err)
	}
	if ue.Pair != 0 {
		t.Errorf("Pair = %d, want 0", ue.Pair)
	}
}

func TestKeywordNamesNonStringKey(t *testing.T) {
	b := bytecode.NewBuilder()
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	b.EmitConst(7)
	b.EmitConst(10)
	off, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)

	_, err := KeywordNames(Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off})
	var ue *UnsupportedCallPatternError
	if !errors.As(err, &ue) {
		t.Fatalf("KeywordNames error = %v, want *UnsupportedCallPatternError", err)
	}
}

func TestKeywordNamesBoundary(t *testing.T) {
	// `if cond: f(x=1, y=2, **kw)`: the conditional jump closes the previous
	// block, so the leftover constants before it never reach the replay.
	prelude := func(b *bytecode.Builder) {
		b.EmitConst("noise")
		b.EmitConst("more")
		b.EmitArg(bytecode.OpLoadFast, 3)
		b.EmitArg(bytecode.OpPopJumpIfFalse, 0)
	}
	f := callFrame(t, prelude, bytecode.OpCallFunctionKw, 0, "x", "y")

	s, err := bytecode.Decode(f.Code)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	target, _ := s.IndexOf(f.Offset)
	begin, err := FindBlockBegin(s, target)
	if err != nil {
		t.Fatalf("FindBlockBegin failed: %v", err)
	}
	if begin != 4 {
		t.Errorf("FindBlockBegin = %d, want 4 (just after POP_JUMP_IF_FALSE)", begin)
	}
	for i := begin; i < target; i++ {
		if s.At(i).Op.IsOpaque() {
			t.Errorf("instruction %d inside the block is opaque", i)
		}
	}

	names, err := KeywordNames(f)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if want := []string{"x", "y"}; !reflect.DeepEqual(names, want) {
		t.Errorf("KeywordNames = %v, want %v", names, want)
	}
}

func TestKeywordNamesKeyBeforeBoundary(t *testing.T) {
	// A key pushed before an opaque instruction is outside the block.
	b := bytecode.NewBuilder()
	b.EmitConst("x")
	b.EmitArg(bytecode.OpSetupLoop, 0)
	b.EmitConst(1)
	off, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)

	_, err := KeywordNames(Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off})
	var ue *UnsupportedCallPatternError
	if !errors.As(err, &ue) {
		t.Errorf("KeywordNames error = %v, want *UnsupportedCallPatternError", err)
	}
}

func TestKeywordNamesExtendedArgs(t *testing.T) {
	// Constant indices past 65535 go through EXTENDED_ARG.
	b := bytecode.NewBuilder()
	for i := 0; i < 70000; i++ {
		b.AddConstant([]int{i}) // never shared, so no lookup
	}
	key := b.AddConstant("wide")
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	if _, err := b.EmitArg(bytecode.OpLoadConst, key); err != nil {
		t.Fatalf("EmitArg failed: %v", err)
	}
	b.EmitConst(1)
	off, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)

	names, err := KeywordNames(Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off})
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if want := []string{"wide"}; !reflect.DeepEqual(names, want) {
		t.Errorf("KeywordNames = %v, want %v", names, want)
	}
}

func TestKeywordNamesErrors(t *testing.T) {
	f := callFrame(t, nil, bytecode.OpCallFunction, 1, "x")

	t.Run("offset inside instruction", func(t *testing.T) {
		bad := f
		bad.Offset = f.Offset + 1
		_, err := KeywordNames(bad)
		var ne *NotACallSiteError
		if !errors.As(err, &ne) {
			t.Errorf("error = %v, want *NotACallSiteError", err)
		}
	})

	t.Run("not call shaped", func(t *testing.T) {
		bad := f
		bad.Offset = 0 // LOAD_GLOBAL
		_, err := KeywordNames(bad)
		var ne *NotACallSiteError
		if !errors.As(err, &ne) || ne.Opcode != bytecode.OpLoadGlobal {
			t.Errorf("error = %v, want *NotACallSiteError for LOAD_GLOBAL", err)
		}
	})

	t.Run("truncated buffer", func(t *testing.T) {
		bad := f
		bad.Code = f.Code[:len(f.Code)-3]
		_, err := KeywordNames(bad)
		var de *bytecode.DecodeError
		if !errors.As(err, &de) {
			t.Errorf("error = %v, want *DecodeError", err)
		}
	})

	t.Run("encoding mismatch", func(t *testing.T) {
		bad := f
		bad.Encoding = bytecode.Encoding{Magic: 3413}
		_, err := KeywordNames(bad)
		var de *bytecode.DecodeError
		if !errors.As(err, &de) {
			t.Errorf("error = %v, want *DecodeError", err)
		}
	})

	t.Run("unknown opcode in block", func(t *testing.T) {
		b := bytecode.NewBuilder()
		b.EmitRaw(6) // unassigned
		b.EmitConst("x")
		b.EmitConst(1)
		off, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)
		_, err := KeywordNames(Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off})
		var ue *bytecode.UnknownOpcodeError
		if !errors.As(err, &ue) {
			t.Errorf("error = %v, want *UnknownOpcodeError", err)
		}
	})
}

func TestScan(t *testing.T) {
	b := bytecode.NewBuilder()
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	b.EmitConst("a")
	b.EmitConst(1)
	first, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)
	b.Emit(bytecode.OpPopTop)
	b.EmitArg(bytecode.OpLoadGlobal, 0)
	b.EmitArg(bytecode.OpLoadFast, 0)
	b.EmitConst(1)
	second, _ := b.EmitCall(bytecode.OpCallFunction, 0, 1)
	b.Emit(bytecode.OpReturnValue)

	results, err := NewExtractor().Scan(Frame{Code: b.Bytes(), Consts: b.Consts()})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Offset != first || results[0].Err != nil || !reflect.DeepEqual(results[0].Names, []string{"a"}) {
		t.Errorf("results[0] = %+v, want offset %d names [a]", results[0], first)
	}
	var ue *UnsupportedCallPatternError
	if results[1].Offset != second || !errors.As(results[1].Err, &ue) {
		t.Errorf("results[1] = %+v, want offset %d with UnsupportedCallPatternError", results[1], second)
	}
}

func TestExtractorCache(t *testing.T) {
	cache := NewCache(4)
	e := NewExtractor(WithCache(cache))
	f := callFrame(t, nil, bytecode.OpCallFunction, 0, "x", "y")
	f.Procedure = "module.fn"

	for i := 0; i < 3; i++ {
		names, err := e.KeywordNames(f)
		if err != nil {
			t.Fatalf("KeywordNames failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"x", "y"}) {
			t.Errorf("KeywordNames = %v, want [x y]", names)
		}
		names[0] = "mutated"
	}
	stats := cache.Stats()
	if stats.Misses != 1 || stats.Hits != 2 || stats.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 miss, 2 hits, 1 entry", stats)
	}

	// Same identity, different code: the entry is replaced.
	g := callFrame(t, nil, bytecode.OpCallFunction, 0, "q")
	g.Procedure = f.Procedure
	names, err := e.KeywordNames(g)
	if err != nil {
		t.Fatalf("KeywordNames failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"q"}) {
		t.Errorf("KeywordNames after code change = %v, want [q]", names)
	}
	if stats := cache.Stats(); stats.Misses != 2 || stats.Entries != 1 {
		t.Errorf("Stats() = %+v, want 2 misses, 1 entry", stats)
	}
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	code := []byte{byte(bytecode.OpNop)}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := cache.Stream(id, code, bytecode.Python27); err != nil {
			t.Fatalf("Stream(%s) failed: %v", id, err)
		}
	}
	if n := cache.Stats().Entries; n != 2 {
		t.Errorf("Entries = %d, want 2", n)
	}
	if _, err := cache.Stream("a", code, bytecode.Python27); err != nil {
		t.Fatal(err)
	}
	if hits := cache.Stats().Hits; hits != 0 {
		t.Errorf("Hits = %d, want 0 (a was evicted)", hits)
	}

	cache.Invalidate("a")
	if n := cache.Stats().Entries; n != 1 {
		t.Errorf("Entries after Invalidate = %d, want 1", n)
	}
}

func TestExtractorConcurrent(t *testing.T) {
	cache := NewCache(8)
	e := NewExtractor(WithCache(cache))
	f := callFrame(t, nil, bytecode.OpCallFunctionVarKw, 2, "alpha", "beta", "gamma")

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names, err := e.KeywordNames(f)
			if err == nil && !reflect.DeepEqual(names, []string{"alpha", "beta", "gamma"}) {
				err = errors.New("wrong names")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
}

func TestCallSites(t *testing.T) {
	f := callFrame(t, nil, bytecode.OpCallFunction, 0, "x")
	s, _ := bytecode.Decode(f.Code)
	sites := CallSites(s)
	if len(sites) != 1 || sites[0] != f.Offset {
		t.Errorf("CallSites = %v, want [%d]", sites, f.Offset)
	}
}

func TestExtractorCacheSharedCodeDifferentPools(t *testing.T) {
	// f(a=1) and f(b=1) assemble to the same bytes; only the pools differ.
	build := func(key string) Frame {
		b := bytecode.NewBuilder()
		b.EmitArg(bytecode.OpLoadGlobal, 0)
		b.EmitConst(key)
		b.EmitConst(1)
		off, err := b.EmitCall(bytecode.OpCallFunction, 0, 1)
		if err != nil {
			t.Fatalf("EmitCall failed: %v", err)
		}
		return Frame{Code: b.Bytes(), Consts: b.Consts(), Offset: off}
	}
	fa, fb := build("a"), build("b")
	if !reflect.DeepEqual(fa.Code, fb.Code) {
		t.Fatal("frames should share code")
	}

	tests := []struct {
		name      string
		procedure string
	}{
		{"anonymous", ""},
		{"same identity", "mod.fn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(WithCache(NewCache(8)))
			fa.Procedure, fb.Procedure = tt.procedure, tt.procedure

			for _, c := range []struct {
				f    Frame
				want string
			}{{fa, "a"}, {fb, "b"}, {fa, "a"}} {
				names, err := e.KeywordNames(c.f)
				if err != nil {
					t.Fatalf("KeywordNames failed: %v", err)
				}
				if len(names) != 1 || names[0] != c.want {
					t.Errorf("KeywordNames = %v, want [%s]", names, c.want)
				}
			}
		})
	}
}

func TestCacheSeparatesInstructionSets(t *testing.T) {
	cache := NewCache(4)
	other := &bytecode.InstructionSet{Name: "cpython-2.7-variant", Magic: 62211, HaveArgument: 90, ArgWidth: 2}
	code := []byte{byte(bytecode.OpNop)}

	for _, set := range []*bytecode.InstructionSet{bytecode.Python27, other} {
		if _, err := cache.Stream("mod.fn", code, set); err != nil {
			t.Fatalf("Stream(%s) failed: %v", set.Name, err)
		}
	}
	stats := cache.Stats()
	if stats.Hits != 0 || stats.Misses != 2 || stats.Entries != 2 {
		t.Errorf("Stats() = %+v, want 2 misses and 2 entries", stats)
	}

	cache.Invalidate("mod.fn")
	if n := cache.Stats().Entries; n != 0 {
		t.Errorf("Entries after Invalidate = %d, want 0", n)
	}
}

func TestFrameDigest(t *testing.T) {
	code := []byte{byte(bytecode.OpNop)}
	a, err := FrameDigest(code, []any{"a", 1})
	if err != nil {
		t.Fatalf("FrameDigest failed: %v", err)
	}
	again, _ := FrameDigest(code, []any{"a", 1})
	b, _ := FrameDigest(code, []any{"b", 1})
	if a != again {
		t.Error("FrameDigest is not deterministic")
	}
	if a == b {
		t.Error("FrameDigest ignores the constant pool")
	}
	if a == DigestOf(code) {
		t.Error("FrameDigest should differ from the code digest")
	}
	if _, err := FrameDigest(code, []any{make(chan int)}); err == nil {
		t.Error("FrameDigest should fail on an unencodable constant")
	}
}
