package frame_test

import (
	"errors"
	"testing"

	"jverify/internal/oracle"
	"jverify/pkg/descriptor"
	"jverify/pkg/frame"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

func isKind(err error, kind verror.Kind) bool {
	return errors.Is(err, verror.New(kind, ""))
}

func mustBuild(t *testing.T, locals, stack []vtype.Type, maxStack int) *frame.Frame {
	t.Helper()
	f, err := frame.Build(locals, stack, maxStack, oracle.New())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return f
}

func TestPushPop(t *testing.T) {
	f := frame.New(2, 3, nil)

	if err := f.Push(vtype.Int); err != nil {
		t.Fatalf("push int: %v", err)
	}
	if err := f.Push(vtype.Long); err != nil {
		t.Fatalf("push long: %v", err)
	}
	if f.StackSize() != 3 || f.StackDepth() != 2 {
		t.Errorf("expected 3 slots in 2 items, got %d in %d", f.StackSize(), f.StackDepth())
	}
	if err := f.Push(vtype.Int); !isKind(err, verror.StackOverflow) {
		t.Errorf("expected stack overflow, got %v", err)
	}

	if _, err := f.Pop(vtype.Int); !isKind(err, verror.UnexpectedStackType) {
		t.Errorf("expected unexpected stack type, got %v", err)
	}
	if v, err := f.Pop(vtype.Long); err != nil || v != vtype.Long {
		t.Errorf("pop long: %v, %v", v, err)
	}
	if _, err := f.Pop(vtype.Int); err != nil {
		t.Errorf("pop int: %v", err)
	}
}

func TestPopEmptyStack(t *testing.T) {
	f := frame.New(0, 0, nil)
	for _, expected := range []vtype.Type{vtype.Int, vtype.Reference, vtype.OneWord, vtype.TwoWord} {
		if _, err := f.Pop(expected); !isKind(err, verror.StackOverflow) {
			t.Errorf("pop %s from empty stack: expected stack overflow, got %v", expected, err)
		}
	}
}

func TestLoad(t *testing.T) {
	f := mustBuild(t, []vtype.Type{vtype.Object("java/lang/String"), vtype.Int, vtype.Long, vtype.Top}, nil, 4)

	if _, err := f.Load(vtype.Int, 1); err != nil {
		t.Errorf("load int: %v", err)
	}
	if _, err := f.Load(vtype.Reference, 0); err != nil {
		t.Errorf("load register 0: %v", err)
	}
	if _, err := f.Load(vtype.Float, 1); !isKind(err, verror.UnexpectedRegisterType) {
		t.Errorf("expected unexpected register type, got %v", err)
	}
	if _, err := f.Load(vtype.Int, 4); !isKind(err, verror.RegisterIndex) {
		t.Errorf("expected register index error, got %v", err)
	}
	if _, err := f.Load(vtype.Long, 3); !isKind(err, verror.RegisterIndex) {
		t.Errorf("two word load from last register: expected index error, got %v", err)
	}
	if _, err := f.Load(vtype.Long, 2); err != nil {
		t.Errorf("load long: %v", err)
	}
}

func TestStoreTwoWord(t *testing.T) {
	f := frame.New(4, 4, nil)

	_ = f.Push(vtype.Long)
	if err := f.Store(vtype.Long, 1); err != nil {
		t.Fatalf("store long: %v", err)
	}
	if f.Local(1) != vtype.Long || f.Local(2) != vtype.Top {
		t.Fatalf("unexpected locals %s", f)
	}
	if f.ActiveLocals() != 3 {
		t.Errorf("expected 3 active locals, got %d", f.ActiveLocals())
	}

	// a one word value over the low register leaves the companion as top
	_ = f.Push(vtype.Int)
	if err := f.Store(vtype.Int, 1); err != nil {
		t.Fatalf("store int: %v", err)
	}
	if f.Local(1) != vtype.Int || f.Local(2) != vtype.Top {
		t.Errorf("unexpected locals %s", f)
	}
}

func TestStoreInvalidatesLowHalf(t *testing.T) {
	f := frame.New(4, 4, nil)

	_ = f.Push(vtype.Double)
	_ = f.Store(vtype.Double, 0)
	_ = f.Push(vtype.Float)
	if err := f.Store(vtype.Float, 1); err != nil {
		t.Fatalf("store float: %v", err)
	}
	if f.Local(0) != vtype.Top {
		t.Errorf("low half should be invalidated, got %s", f.Local(0))
	}
	if f.Local(1) != vtype.Float {
		t.Errorf("expected float in register 1, got %s", f.Local(1))
	}
}

func TestAssignableFrom(t *testing.T) {
	declared := mustBuild(t, []vtype.Type{vtype.Object("java/lang/Object"), vtype.Top}, []vtype.Type{vtype.Int}, 2)
	computed := mustBuild(t, []vtype.Type{vtype.Object("java/lang/String"), vtype.Float}, []vtype.Type{vtype.Int}, 2)

	if err := declared.IsAssignableFrom(computed); err != nil {
		t.Errorf("expected assignable, got %v", err)
	}
	if err := computed.IsAssignableFrom(declared); !isKind(err, verror.UnexpectedStackType) && !isKind(err, verror.UnexpectedRegisterType) {
		t.Errorf("expected register type error, got %v", err)
	}

	deeper := mustBuild(t, []vtype.Type{vtype.Top, vtype.Top}, []vtype.Type{vtype.Int, vtype.Int}, 2)
	if err := declared.IsAssignableFrom(deeper); !isKind(err, verror.InconsistentStackSize) {
		t.Errorf("expected inconsistent stack size, got %v", err)
	}

	wrongStack := mustBuild(t, []vtype.Type{vtype.Object("java/lang/String"), vtype.Top}, []vtype.Type{vtype.Float}, 2)
	if err := declared.IsAssignableFrom(wrongStack); !isKind(err, verror.UnexpectedStackType) {
		t.Errorf("expected unexpected stack type, got %v", err)
	}
}

func TestMergeWithSelfIsSame(t *testing.T) {
	frames := []*frame.Frame{
		frame.New(3, 2, oracle.New()),
		mustBuild(t, []vtype.Type{vtype.Long, vtype.Top, vtype.Object("java/lang/String")}, []vtype.Type{vtype.Null, vtype.Int}, 2),
		mustBuild(t, []vtype.Type{vtype.UninitializedThis, vtype.Uninitialized(2, "Foo"), vtype.Double, vtype.Top}, []vtype.Type{vtype.Double}, 2),
	}
	for _, f := range frames {
		m, err := f.Merge(f)
		if err != nil {
			t.Fatalf("merge %s: %v", f, err)
		}
		same, err := m.Same(f)
		if err != nil || !same {
			t.Errorf("merge of %s with itself is %s", f, m)
		}
	}
}

func TestMerge(t *testing.T) {
	a := mustBuild(t, []vtype.Type{vtype.Int, vtype.Object("java/lang/ArithmeticException")}, []vtype.Type{vtype.Int}, 2)
	b := mustBuild(t, []vtype.Type{vtype.Float, vtype.Object("java/io/IOException")}, []vtype.Type{vtype.Object("Foo")}, 2)

	m, err := a.Merge(b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if m.Local(0) != vtype.Top || m.Local(1) != vtype.Object("java/lang/Exception") {
		t.Errorf("unexpected locals %s", m)
	}
	if m.Stack()[0] != vtype.Top {
		t.Errorf("int and object must merge to top, got %s", m.Stack()[0])
	}

	c := mustBuild(t, []vtype.Type{vtype.Int, vtype.Top}, nil, 2)
	if _, err := a.Merge(c); !isKind(err, verror.InconsistentStackSize) {
		t.Errorf("expected inconsistent stack size, got %v", err)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	f := mustBuild(t, []vtype.Type{vtype.Int, vtype.Top}, []vtype.Type{vtype.Float}, 2)
	c := f.Copy()
	_ = c.Push(vtype.Int)
	_ = c.Store(vtype.Int, 1)
	if f.StackDepth() != 1 || f.Local(1) != vtype.Top {
		t.Errorf("copy shares state with original: %s", f)
	}
}

func TestReplaceAllAndThrow(t *testing.T) {
	u := vtype.Uninitialized(3, "Foo")
	f := mustBuild(t, []vtype.Type{u, vtype.Int}, []vtype.Type{u, u}, 2)
	f.ReplaceAll(u, vtype.Object("Foo"))
	for _, s := range f.Stack() {
		if s != vtype.Object("Foo") {
			t.Errorf("stack still holds %s", s)
		}
	}
	if f.Local(0) != vtype.Object("Foo") {
		t.Errorf("register still holds %s", f.Local(0))
	}

	h, err := f.ThrowException(vtype.Object("java/lang/Throwable"))
	if err != nil {
		t.Fatalf("throw: %v", err)
	}
	if h.StackDepth() != 1 || h.Stack()[0] != vtype.Object("java/lang/Throwable") || h.Local(1) != vtype.Int {
		t.Errorf("unexpected handler frame %s", h)
	}
}

func TestChopAppendRoundTrip(t *testing.T) {
	f := mustBuild(t, []vtype.Type{vtype.Int, vtype.Long, vtype.Top, vtype.Float, vtype.Top, vtype.Top}, nil, 1)
	if f.ActiveLocals() != 4 {
		t.Fatalf("expected 4 active locals, got %d", f.ActiveLocals())
	}

	chopped, err := f.ApplyChop(2)
	if err != nil {
		t.Fatalf("chop: %v", err)
	}
	if chopped.ActiveLocals() != 1 {
		t.Errorf("expected 1 active local after chop, got %d", chopped.ActiveLocals())
	}

	restored, err := chopped.ApplyAppend([]vtype.Type{vtype.Long, vtype.Float})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	same, err := restored.Same(f)
	if err != nil || !same {
		t.Errorf("round trip changed the frame: %s vs %s", restored, f)
	}

	if _, err := f.ApplyChop(4); !isKind(err, verror.StackmapChopUnderflow) {
		t.Errorf("expected chop underflow, got %v", err)
	}
	if _, err := f.ApplyAppend([]vtype.Type{vtype.Long, vtype.Int}); !isKind(err, verror.StackmapAppendOverflow) {
		t.Errorf("expected append overflow, got %v", err)
	}
}

func TestApplyFullAndSameLocals(t *testing.T) {
	f := frame.New(2, 1, nil)

	if _, err := f.ApplyFull([]vtype.Type{vtype.Int, vtype.Long}, nil); !isKind(err, verror.StackmapFullLocalsOverflow) {
		t.Errorf("expected full locals overflow, got %v", err)
	}
	if _, err := f.ApplyFull(nil, []vtype.Type{vtype.Double}); !isKind(err, verror.StackmapFullStackOverflow) {
		t.Errorf("expected full stack overflow, got %v", err)
	}
	if _, err := f.ApplySameLocalsOneStackItem(vtype.Long); !isKind(err, verror.StackmapSameLocalsOverflow) {
		t.Errorf("expected same locals overflow, got %v", err)
	}

	full, err := f.ApplyFull([]vtype.Type{vtype.Long}, []vtype.Type{vtype.Int})
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if full.Local(0) != vtype.Long || full.Local(1) != vtype.Top || full.StackSize() != 1 {
		t.Errorf("unexpected frame %s", full)
	}
	if same := full.ApplySame(); same.StackDepth() != 0 || same.Local(0) != vtype.Long {
		t.Errorf("unexpected same frame %s", same)
	}
}

func TestNewInitial(t *testing.T) {
	desc, err := descriptor.ParseMethod("(JLjava/lang/String;)V")
	if err != nil {
		t.Fatal(err)
	}

	f, err := frame.NewInitial("Foo", false, false, 5, 0, desc, nil)
	if err != nil {
		t.Fatalf("initial: %v", err)
	}
	want := []vtype.Type{vtype.Object("Foo"), vtype.Long, vtype.Top, vtype.Object("java/lang/String"), vtype.Top}
	for i, w := range want {
		if f.Local(i) != w {
			t.Errorf("register %d: got %s, want %s", i, f.Local(i), w)
		}
	}

	ctor, err := frame.NewInitial("Foo", true, false, 4, 0, desc, nil)
	if err != nil || ctor.Local(0) != vtype.UninitializedThis {
		t.Errorf("constructor receiver: %v, %v", ctor, err)
	}

	static, err := frame.NewInitial("Foo", false, true, 3, 0, desc, nil)
	if err != nil || static.Local(0) != vtype.Long {
		t.Errorf("static method: %v, %v", static, err)
	}

	if _, err := frame.NewInitial("Foo", false, false, 3, 0, desc, nil); !isKind(err, verror.RegisterIndex) {
		t.Errorf("expected max locals error, got %v", err)
	}
	if _, err := frame.NewInitial("Foo", true, true, 5, 0, desc, nil); err == nil {
		t.Error("static constructor must be rejected")
	}
}
