package dispatch

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/multimethod/hierarchy"
)

type class = hierarchy.Descriptor

func ids(ts ...hierarchy.TypeID) []hierarchy.TypeID { return ts }

func mustCompile(t *testing.T, rt *Runtime) *Report {
	t.Helper()
	rep, err := rt.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return rep
}

func mustClasses(t *testing.T, rt *Runtime, cs ...class) {
	t.Helper()
	if err := rt.RegisterClasses(cs...); err != nil {
		t.Fatalf("RegisterClasses: %v", err)
	}
}

func mustDeclare(t *testing.T, rt *Runtime, name string, arity int, virtual ...int) {
	t.Helper()
	if _, err := rt.Declare(name, arity, virtual...); err != nil {
		t.Fatalf("Declare %s: %v", name, err)
	}
}

func mustOverride(t *testing.T, rt *Runtime, name string, classes []hierarchy.TypeID, impl Impl) {
	t.Helper()
	if _, err := rt.AddOverride(name, classes, impl); err != nil {
		t.Fatalf("AddOverride %s%v: %v", name, classes, err)
	}
}

func selectedLabel(t *testing.T, rt *Runtime, name string, types ...hierarchy.TypeID) string {
	t.Helper()
	res, err := rt.Resolve(name, types...)
	if err != nil {
		t.Fatalf("Resolve %s%v: %v", name, types, err)
	}
	return res.Override().String()
}

// ---------------------------------------------------------------------------
// Resolution semantics
// ---------------------------------------------------------------------------

func TestExactMatchWins(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Shape"},
		class{ID: 2, Name: "Circle", Bases: ids(1)},
	)
	mustDeclare(t, rt, "draw", 1, 0)
	mustOverride(t, rt, "draw", ids(1), constImpl("shape"))
	mustOverride(t, rt, "draw", ids(2), constImpl("circle"))
	mustCompile(t, rt)

	if got := selectedLabel(t, rt, "draw", 2); got != "draw(Circle)" {
		t.Errorf("draw(Circle) selected %s", got)
	}
	if got := selectedLabel(t, rt, "draw", 1); got != "draw(Shape)" {
		t.Errorf("draw(Shape) selected %s", got)
	}
}

func TestMonotonicSpecialization(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "A"},
		class{ID: 2, Name: "B", Bases: ids(1)},
		class{ID: 3, Name: "C", Bases: ids(2)},
	)
	mustDeclare(t, rt, "f", 1, 0)
	mustOverride(t, rt, "f", ids(1), constImpl("a"))
	mustOverride(t, rt, "f", ids(2), constImpl("b"))
	mustCompile(t, rt)

	if got := selectedLabel(t, rt, "f", 3); got != "f(B)" {
		t.Errorf("f(C) selected %s, want f(B)", got)
	}
	res, _ := rt.Resolve("f", 3)
	chain := res.Chain()
	if len(chain) != 2 || chain[0].String() != "f(B)" || chain[1].String() != "f(A)" {
		t.Errorf("chain = %v", chain)
	}
}

func payRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Employee"},
		class{ID: 2, Name: "Manager", Bases: ids(1)},
	)
	mustDeclare(t, rt, "pay", 1, 0)
	mustOverride(t, rt, "pay", ids(1), constImpl(3000))
	mustOverride(t, rt, "pay", ids(2), func(c *Call) (any, error) {
		base, err := c.Next()
		if err != nil {
			return nil, err
		}
		return base.(int) + 2000, nil
	})
	mustCompile(t, rt)
	return rt
}

func TestNextDelegation(t *testing.T) {
	rt := payRuntime(t)

	tests := []struct {
		class hierarchy.TypeID
		want  int
	}{
		{2, 5000},
		{1, 3000},
	}
	for _, tt := range tests {
		got, err := rt.Invoke("pay", ids(tt.class), "someone")
		if err != nil {
			t.Fatalf("pay(#%d): %v", tt.class, err)
		}
		if got != tt.want {
			t.Errorf("pay(#%d) = %v, want %d", tt.class, got, tt.want)
		}
	}
}

func TestNextPastChainEnd(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt, class{ID: 1, Name: "Employee"})
	mustDeclare(t, rt, "pay", 1, 0)

	var hasNext bool
	mustOverride(t, rt, "pay", ids(1), func(c *Call) (any, error) {
		hasNext = c.HasNext()
		return c.Next()
	})
	mustCompile(t, rt)

	_, err := rt.Invoke("pay", ids(1), nil)
	if !errors.Is(err, ErrNotImplementedCall) {
		t.Fatalf("err = %v, want ErrNotImplementedCall", err)
	}
	if hasNext {
		t.Error("HasNext() = true on the last override")
	}
	var ce *CallError
	if !errors.As(err, &ce) || ce.Function != "pay" || ce.Names[0] != "Employee" {
		t.Errorf("CallError = %+v", ce)
	}
}

func TestNextPastChainEndUsesPolicy(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt, class{ID: 1, Name: "Employee"})
	mustDeclare(t, rt, "pay", 1, 0)
	mustOverride(t, rt, "pay", ids(1), func(c *Call) (any, error) {
		return c.Next()
	})
	mustCompile(t, rt)

	var seen []*CallError
	rt.SetErrorPolicy(Notify(func(ce *CallError) { seen = append(seen, ce) }))

	if _, err := rt.Invoke("pay", ids(1), nil); !errors.Is(err, ErrNotImplementedCall) {
		t.Errorf("Invoke err = %v, want ErrNotImplementedCall", err)
	}
	if len(seen) != 1 || !errors.Is(seen[0], ErrNotImplementedCall) {
		t.Fatalf("notified %v, want one not-implemented error", seen)
	}

	m, err := rt.Method("pay")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Invoke(ids(1), nil); !errors.Is(err, ErrNotImplementedCall) {
		t.Errorf("Method.Invoke err = %v, want ErrNotImplementedCall", err)
	}
	if len(seen) != 2 {
		t.Errorf("Method path notified %d times, want 2 in total", len(seen))
	}

	// Resolutions made on a snapshot carry no policy.
	res, err := rt.Snapshot().Resolve("pay", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Invoke(nil); !errors.Is(err, ErrNotImplementedCall) {
		t.Errorf("snapshot Invoke err = %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("snapshot path notified the policy")
	}

	rt.SetErrorPolicy(PanicPolicy{})
	defer func() {
		if recover() == nil {
			t.Error("PanicPolicy did not panic past the chain end")
		}
	}()
	rt.Invoke("pay", ids(1), nil)
}

func TestResolutionOwnsTypes(t *testing.T) {
	rt := payRuntime(t)
	buf := ids(2)
	res, err := rt.Resolve("pay", buf...)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 1
	if res.Types[0] != 2 {
		t.Errorf("Types = %v after the caller reused its slice, want [2]", res.Types)
	}
}

func TestNextWithReplacesArguments(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Base"},
		class{ID: 2, Name: "Derived", Bases: ids(1)},
	)
	mustDeclare(t, rt, "scale", 2, 0)
	mustOverride(t, rt, "scale", ids(1), func(c *Call) (any, error) {
		return c.Args[1].(int) * 10, nil
	})
	mustOverride(t, rt, "scale", ids(2), func(c *Call) (any, error) {
		if c.Override().String() != "scale(Derived)" {
			t.Errorf("Override() = %s", c.Override())
		}
		return c.NextWith(c.Args[0], c.Args[1].(int)+1)
	})
	mustCompile(t, rt)

	got, err := rt.Invoke("scale", ids(2), "x", 4)
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("scale = %v, want 50", got)
	}
}

func TestTwoAxisDispatch(t *testing.T) {
	classes := []class{
		{ID: 1, Name: "Base"},
		{ID: 2, Name: "Derived", Bases: ids(1)},
	}

	t.Run("with default", func(t *testing.T) {
		rt := NewRuntime()
		mustClasses(t, rt, classes...)
		mustDeclare(t, rt, "meet", 2, 0, 1)
		mustOverride(t, rt, "meet", ids(1, 1), constImpl("default"))
		mustOverride(t, rt, "meet", ids(2, 2), constImpl("specific"))
		rep := mustCompile(t, rt)

		tests := []struct {
			a, b hierarchy.TypeID
			want any
		}{
			{2, 2, "specific"},
			{2, 1, "default"},
			{1, 2, "default"},
			{1, 1, "default"},
		}
		for _, tt := range tests {
			got, err := rt.Invoke("meet", ids(tt.a, tt.b), nil, nil)
			if err != nil {
				t.Fatalf("meet(#%d, #%d): %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("meet(#%d, #%d) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		}
		if rep.Cells != 4 || rep.AmbiguousCells != 0 || rep.NotImplementedCells != 0 {
			t.Errorf("report = %s", rep)
		}
	})

	t.Run("without default", func(t *testing.T) {
		rt := NewRuntime()
		mustClasses(t, rt, classes...)
		mustDeclare(t, rt, "meet", 2, 0, 1)
		mustOverride(t, rt, "meet", ids(2, 2), constImpl("specific"))
		rep := mustCompile(t, rt)

		_, err := rt.Resolve("meet", 2, 1)
		if !errors.Is(err, ErrNotImplementedCall) {
			t.Errorf("meet(Derived, Base) err = %v, want ErrNotImplementedCall", err)
		}
		if rep.NotImplementedCells != 3 {
			t.Errorf("NotImplementedCells = %d, want 3", rep.NotImplementedCells)
		}
	})
}

func TestAmbiguousCrossedOverrides(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "A"},
		class{ID: 2, Name: "B", Bases: ids(1)},
	)
	mustDeclare(t, rt, "f", 2, 0, 1)
	mustOverride(t, rt, "f", ids(1, 2), constImpl("ab"))
	mustOverride(t, rt, "f", ids(2, 1), constImpl("ba"))
	rep := mustCompile(t, rt)

	_, err := rt.Resolve("f", 2, 2)
	if !errors.Is(err, ErrAmbiguousCall) {
		t.Fatalf("err = %v, want ErrAmbiguousCall", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("err is %T, want *CallError", err)
	}
	if len(ce.Candidates) != 2 {
		t.Errorf("candidates = %v, want both overrides", ce.Candidates)
	}
	if !strings.Contains(err.Error(), "f(A, B)") || !strings.Contains(err.Error(), "f(B, A)") {
		t.Errorf("error text %q does not name the candidates", err)
	}

	// The unambiguous combinations still resolve.
	if got := selectedLabel(t, rt, "f", 1, 2); got != "f(A, B)" {
		t.Errorf("f(A, B) selected %s", got)
	}
	if rep.AmbiguousCells != 1 || rep.NotImplementedCells != 1 {
		t.Errorf("report = %s", rep)
	}
}

func TestAmbiguousSiblingDiamonds(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "X1"},
		class{ID: 2, Name: "X2"},
		class{ID: 3, Name: "XX", Bases: ids(1, 2)},
		class{ID: 4, Name: "Y1"},
		class{ID: 5, Name: "Y2"},
		class{ID: 6, Name: "YY", Bases: ids(4, 5)},
	)
	mustDeclare(t, rt, "f", 2, 0, 1)
	mustOverride(t, rt, "f", ids(1, 5), constImpl(1))
	mustOverride(t, rt, "f", ids(2, 4), constImpl(2))
	mustCompile(t, rt)

	_, err := rt.Resolve("f", 3, 6)
	if !errors.Is(err, ErrAmbiguousCall) {
		t.Errorf("f(XX, YY) err = %v, want ErrAmbiguousCall", err)
	}
	if got := selectedLabel(t, rt, "f", 3, 5); got != "f(X1, Y2)" {
		t.Errorf("f(XX, Y2) selected %s", got)
	}

	// The chain of an ambiguous cell is still a full ordering.
	cell, _ := rt.Snapshot().tableAt(0).Lookup(ids(3, 6))
	if len(cell.Chain) != 2 || cell.Chain[0].String() != "f(X1, Y2)" {
		t.Errorf("chain = %v, want declaration order", cell.Chain)
	}
}

func TestAbstractClassesAreNotDispatched(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Shape", Abstract: true},
		class{ID: 2, Name: "Circle", Bases: ids(1)},
		class{ID: 3, Name: "Square", Bases: ids(1)},
		class{ID: 4, Name: "Triangle", Bases: ids(1)},
	)
	mustDeclare(t, rt, "area", 1, 0)
	mustOverride(t, rt, "area", ids(1), constImpl(0.0))
	rep := mustCompile(t, rt)

	fr, _ := rep.Function("area")
	if fr.Cells != 3 {
		t.Errorf("Cells = %d, want 3 concrete combinations", fr.Cells)
	}
	if fr.TableCells != 1 || fr.DistinctCells != 1 {
		t.Errorf("TableCells = %d, DistinctCells = %d, want 1 and 1", fr.TableCells, fr.DistinctCells)
	}
	_, err := rt.Resolve("area", 1)
	if !errors.Is(err, ErrUnknownRuntimeType) {
		t.Errorf("area(Shape) err = %v, want ErrUnknownRuntimeType", err)
	}
}

func TestNonVirtualParameters(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Reader"},
		class{ID: 2, Name: "Writer"},
	)
	mustDeclare(t, rt, "copy", 3, 2, 0)
	mustOverride(t, rt, "copy", ids(2, 1), func(c *Call) (any, error) {
		return fmt.Sprintf("%v->%v via %v", c.Args[2], c.Args[0], c.Args[1]), nil
	})
	mustCompile(t, rt)

	// Axes follow ascending position: [0] is Writer, [2] is Reader.
	got, err := rt.Invoke("copy", ids(2, 1), "w", 512, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got != "r->w via 512" {
		t.Errorf("copy = %v", got)
	}
}

func TestBoundedAxis(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "Animal"},
		class{ID: 2, Name: "Dog", Bases: ids(1)},
		class{ID: 3, Name: "Rock"},
	)
	if _, err := rt.DeclareBounded("speak", 1, []int{0}, ids(1)); err != nil {
		t.Fatal(err)
	}
	mustOverride(t, rt, "speak", ids(1), constImpl("..."))
	rep := mustCompile(t, rt)

	fr, _ := rep.Function("speak")
	if fr.Axes[0].Domain != 2 {
		t.Errorf("domain = %d, want Animal and Dog", fr.Axes[0].Domain)
	}
	if fr.NotImplementedCells != 0 {
		t.Errorf("NotImplementedCells = %d, want 0", fr.NotImplementedCells)
	}
	_, err := rt.Resolve("speak", 3)
	if !errors.Is(err, ErrUnknownRuntimeType) {
		t.Errorf("speak(Rock) err = %v, want ErrUnknownRuntimeType", err)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestResolveBeforeCompile(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt, class{ID: 1, Name: "A"})
	mustDeclare(t, rt, "f", 1, 0)

	if _, err := rt.Resolve("f", 1); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("Resolve err = %v, want ErrNotCompiled", err)
	}
	if _, err := rt.Call("f", 1); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("Call err = %v, want ErrNotCompiled", err)
	}
	if rt.Snapshot() != nil {
		t.Error("Snapshot() != nil before Compile")
	}
}

func TestUnknownRuntimeType(t *testing.T) {
	rt := payRuntime(t)
	_, err := rt.Resolve("pay", 99)
	if !errors.Is(err, ErrUnknownRuntimeType) {
		t.Fatalf("err = %v, want ErrUnknownRuntimeType", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) || ce.Axis != 0 || ce.Names[0] != "#99" {
		t.Errorf("CallError = %+v", ce)
	}
}

func TestResolveWrongTypeCount(t *testing.T) {
	rt := payRuntime(t)
	if _, err := rt.Resolve("pay", 1, 2); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("err = %v, want ErrArityMismatch", err)
	}
	if _, err := rt.Resolve("bonus", 1); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("err = %v, want ErrUnknownFunction", err)
	}
}

func TestCyclicCompileKeepsPreviousSnapshot(t *testing.T) {
	rt := payRuntime(t)
	before := rt.Snapshot()

	mustClasses(t, rt,
		class{ID: 10, Name: "P", Bases: ids(11)},
		class{ID: 11, Name: "Q", Bases: ids(10)},
	)
	_, err := rt.Compile()
	if !errors.Is(err, hierarchy.ErrCyclicHierarchy) {
		t.Fatalf("err = %v, want ErrCyclicHierarchy", err)
	}
	if rt.Snapshot() != before {
		t.Error("failed compile replaced the snapshot")
	}
	if got, _ := rt.Invoke("pay", ids(2), nil); got != 5000 {
		t.Errorf("pay(Manager) = %v after failed compile", got)
	}
}

func TestUnknownBaseFailsCompile(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt, class{ID: 1, Name: "Orphan", Bases: ids(2)})
	_, err := rt.Compile()
	if !errors.Is(err, hierarchy.ErrUnknownBase) {
		t.Errorf("err = %v, want ErrUnknownBase", err)
	}
}

func TestHashFailureKeepsPreviousSnapshot(t *testing.T) {
	rt := payRuntime(t)
	before := rt.Snapshot()

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 64; i++ {
		id := hierarchy.TypeID(rng.Uint64() | 1<<40)
		mustClasses(t, rt, class{ID: id, Name: fmt.Sprintf("R%d", i)})
	}
	rt.SetOptions(Options{HashTrials: 1, HashMaxExtraBits: 0, Seed: 7})

	_, err := rt.Compile()
	if !errors.Is(err, ErrHashConstructionFailed) {
		t.Fatalf("err = %v, want ErrHashConstructionFailed", err)
	}
	if rt.Snapshot() != before {
		t.Error("failed compile replaced the snapshot")
	}

	rt.SetOptions(DefaultOptions())
	mustCompile(t, rt)
	if rt.Snapshot() == before {
		t.Error("successful compile did not publish a snapshot")
	}
}

// ---------------------------------------------------------------------------
// Recompilation
// ---------------------------------------------------------------------------

type outcome struct {
	kind     Outcome
	selected string
}

func outcomes(rt *Runtime, name string) map[string]outcome {
	t, _ := rt.Snapshot().Table(name)
	result := make(map[string]outcome)
	for types, cell := range t.Combinations() {
		o := outcome{kind: cell.Outcome}
		if cell.Selected != nil {
			o.selected = cell.Selected.String()
		}
		result[fmt.Sprint(types)] = o
	}
	return result
}

func TestRecompileIsIdempotent(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "A"},
		class{ID: 2, Name: "B", Bases: ids(1)},
		class{ID: 3, Name: "C", Bases: ids(1)},
		class{ID: 4, Name: "D", Bases: ids(2, 3)},
	)
	mustDeclare(t, rt, "f", 2, 0, 1)
	mustOverride(t, rt, "f", ids(1, 1), constImpl(0))
	mustOverride(t, rt, "f", ids(2, 1), constImpl(1))
	mustOverride(t, rt, "f", ids(1, 3), constImpl(2))
	mustOverride(t, rt, "f", ids(4, 4), constImpl(3))

	first := mustCompile(t, rt)
	gen := rt.Snapshot().Generation
	want := outcomes(rt, "f")

	second := mustCompile(t, rt)
	got := outcomes(rt, "f")
	if rt.Snapshot().Generation == gen {
		t.Error("recompile reused the generation id")
	}
	if len(got) != len(want) {
		t.Fatalf("%d combinations after recompile, want %d", len(got), len(want))
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s: %+v after recompile, want %+v", k, got[k], w)
		}
	}
	if first.String() != second.String() {
		t.Errorf("report changed:\n%s\n%s", first, second)
	}
}

func TestIncrementalExtension(t *testing.T) {
	rt := payRuntime(t)
	want := outcomes(rt, "pay")

	mustClasses(t, rt, class{ID: 3, Name: "Director", Bases: ids(2)})
	mustCompile(t, rt)

	got := outcomes(rt, "pay")
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s: %+v after extension, want %+v", k, got[k], w)
		}
	}
	if v, _ := rt.Invoke("pay", ids(3), nil); v != 5000 {
		t.Errorf("pay(Director) = %v, want 5000", v)
	}

	mustOverride(t, rt, "pay", ids(3), func(c *Call) (any, error) {
		v, err := c.Next()
		if err != nil {
			return nil, err
		}
		return v.(int) * 2, nil
	})
	// Not visible until the next compile.
	if v, _ := rt.Invoke("pay", ids(3), nil); v != 5000 {
		t.Errorf("pay(Director) = %v before recompile, want 5000", v)
	}
	mustCompile(t, rt)
	if v, _ := rt.Invoke("pay", ids(3), nil); v != 10000 {
		t.Errorf("pay(Director) = %v, want 10000", v)
	}
}

func TestConcurrentResolveDuringRecompile(t *testing.T) {
	rt := payRuntime(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, err := rt.Invoke("pay", ids(2), nil)
				if err != nil || v != 5000 {
					errs <- fmt.Errorf("pay(Manager) = %v, %v", v, err)
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		id := hierarchy.TypeID(100 + i)
		if err := rt.RegisterClass(class{ID: id, Name: fmt.Sprintf("Temp%d", i), Bases: ids(1)}); err != nil {
			t.Fatal(err)
		}
		if _, err := rt.Compile(); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Call, policies and sinks
// ---------------------------------------------------------------------------

type employee struct{ name string }
type manager struct{ employee }

func identify(v any) (hierarchy.TypeID, bool) {
	switch v.(type) {
	case employee:
		return 1, true
	case manager:
		return 2, true
	}
	return 0, false
}

func TestCallUsesTypeIdentifier(t *testing.T) {
	rt := payRuntime(t)

	if _, err := rt.Call("pay", manager{}); !errors.Is(err, ErrUnknownRuntimeType) {
		t.Errorf("Call without identifier err = %v, want ErrUnknownRuntimeType", err)
	}

	rt.SetTypeIdentifier(TypeIdentifierFunc(identify))
	got, err := rt.Call("pay", manager{})
	if err != nil {
		t.Fatal(err)
	}
	if got != 5000 {
		t.Errorf("pay(manager) = %v, want 5000", got)
	}

	_, err = rt.Call("pay", "a string")
	var ce *CallError
	if !errors.As(err, &ce) || ce.Axis != 0 || ce.Names[0] != "string" {
		t.Errorf("err = %v, want unknown runtime type naming string", err)
	}
	if ce != nil && (len(ce.Types) != len(ce.Names) || ce.Types[0] != 0) {
		t.Errorf("Types %v and Names %v should line up, with id 0 for the unknown axis", ce.Types, ce.Names)
	}
	if _, err := rt.Call("pay"); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("err = %v, want ErrArityMismatch", err)
	}
}

func TestMethodHandle(t *testing.T) {
	rt := payRuntime(t)
	rt.SetTypeIdentifier(TypeIdentifierFunc(identify))

	m, err := rt.Method("pay")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Call(employee{}); got != 3000 {
		t.Errorf("Call = %v, want 3000", got)
	}
	if got, _ := m.Invoke(ids(2), nil); got != 5000 {
		t.Errorf("Invoke = %v, want 5000", got)
	}

	mustDeclare(t, rt, "bonus", 1, 0)
	late, err := rt.Method("bonus")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := late.Resolve(1); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("err = %v, want ErrNotCompiled for a function declared after compile", err)
	}

	if _, err := rt.Method("missing"); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("err = %v, want ErrUnknownFunction", err)
	}
}

func TestNotifyPolicy(t *testing.T) {
	rt := payRuntime(t)
	var seen []*CallError
	rt.SetErrorPolicy(Notify(func(ce *CallError) { seen = append(seen, ce) }))

	_, err := rt.Resolve("pay", 42)
	if !errors.Is(err, ErrUnknownRuntimeType) {
		t.Errorf("err = %v", err)
	}
	if len(seen) != 1 || seen[0].Types[0] != 42 {
		t.Errorf("notified %v", seen)
	}
}

func TestSwallowingPolicy(t *testing.T) {
	rt := payRuntime(t)
	rt.SetErrorPolicy(PolicyFunc(func(error) error { return nil }))

	v, err := rt.Invoke("pay", ids(42), nil)
	if err != nil || v != nil {
		t.Errorf("Invoke = %v, %v; want nil, nil", v, err)
	}

	rt.SetErrorPolicy(nil)
	if _, err := rt.Invoke("pay", ids(42), nil); err == nil {
		t.Error("nil policy should restore propagation")
	}
}

func TestPanicPolicy(t *testing.T) {
	rt := payRuntime(t)
	rt.SetErrorPolicy(PanicPolicy{})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrUnknownRuntimeType) {
			t.Errorf("recovered %v, want unknown runtime type error", r)
		}
	}()
	_, _ = rt.Resolve("pay", 42)
	t.Error("Resolve returned under PanicPolicy")
}

func TestSinkNotifiedOnPublish(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt, class{ID: 1, Name: "A"})

	var got []*Snapshot
	rt.SetSink(MultiSink{
		SinkFunc(func(s *Snapshot) { got = append(got, s) }),
		SinkFunc(func(s *Snapshot) { got = append(got, s) }),
	})
	mustCompile(t, rt)
	if len(got) != 2 || got[0] != rt.Snapshot() {
		t.Errorf("sinks received %d snapshots", len(got))
	}

	mustClasses(t, rt, class{ID: 2, Name: "B", Bases: ids(3)})
	if _, err := rt.Compile(); err == nil {
		t.Fatal("expected compile failure")
	}
	if len(got) != 2 {
		t.Error("sink notified of a failed compile")
	}
}

func TestRegisterClassesJoinsErrors(t *testing.T) {
	rt := NewRuntime()
	err := rt.RegisterClasses(
		class{ID: 1, Name: "A"},
		class{ID: 1, Name: "A2"},
		class{ID: 2, Name: "B"},
	)
	if !errors.Is(err, hierarchy.ErrDuplicateClass) {
		t.Errorf("err = %v, want ErrDuplicateClass", err)
	}
	if rt.Classes().Len() != 2 {
		t.Errorf("Len() = %d, want 2", rt.Classes().Len())
	}
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

func TestExplain(t *testing.T) {
	rt := payRuntime(t)
	text, err := rt.Snapshot().Explain("pay", 2)
	if err != nil {
		t.Fatal(err)
	}
	want := "pay(Manager): selected pay(Manager)\n  1. pay(Manager)\n  2. pay(Employee)"
	if text != want {
		t.Errorf("Explain =\n%s\nwant\n%s", text, want)
	}
}

func TestCombinationsOrder(t *testing.T) {
	rt := NewRuntime()
	mustClasses(t, rt,
		class{ID: 1, Name: "A"},
		class{ID: 2, Name: "B"},
	)
	mustDeclare(t, rt, "f", 2, 0, 1)
	mustOverride(t, rt, "f", ids(1, 2), constImpl(nil))
	mustCompile(t, rt)

	tbl, _ := rt.Snapshot().Table("f")
	var got []string
	for types, cell := range tbl.Combinations() {
		got = append(got, fmt.Sprintf("%v:%s", types, cell.Outcome))
	}
	want := []string{
		"[1 1]:not-implemented",
		"[1 2]:selected",
		"[2 1]:not-implemented",
		"[2 2]:not-implemented",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("combinations = %v, want %v", got, want)
	}
}
