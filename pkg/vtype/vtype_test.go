package vtype_test

import (
	"strings"
	"testing"

	"jverify/internal/oracle"
	"jverify/pkg/descriptor"
	"jverify/pkg/vtype"
)

func newOracle(t *testing.T) *oracle.Table {
	t.Helper()
	tab, err := oracle.Load(strings.NewReader(`
classes:
  - name: Foo
  - name: Bar
    super: Foo
  - name: Baz
    super: Foo
  - name: Runner
    interface: true
`))
	if err != nil {
		t.Fatalf("load oracle: %v", err)
	}
	return tab
}

func allTypes() []vtype.Type {
	return []vtype.Type{
		vtype.Top, vtype.Int, vtype.Float, vtype.Long, vtype.Double, vtype.Null,
		vtype.UninitializedThis, vtype.Uninitialized(3, "Foo"), vtype.Uninitialized(5, "Foo"),
		vtype.Object("Foo"), vtype.Object("Bar"), vtype.Object("Baz"), vtype.Object("Runner"),
		vtype.Object("java/lang/String"), vtype.Object("[I"), vtype.Object("[LBar;"), vtype.Object("[LBaz;"),
	}
}

func TestSize(t *testing.T) {
	for _, typ := range allTypes() {
		want := 1
		if typ == vtype.Long || typ == vtype.Double {
			want = 2
		}
		if typ.Size() != want {
			t.Errorf("%s: size %d, want %d", typ, typ.Size(), want)
		}
	}
}

func TestMergeCommutativeAndIdempotent(t *testing.T) {
	o := newOracle(t)
	types := allTypes()

	for _, a := range types {
		m, err := vtype.Merge(o, a, a)
		if err != nil || m != a {
			t.Errorf("merge(%s, %s) = %s, %v; want idempotent", a, a, m, err)
		}
		for _, b := range types {
			ab, err := vtype.Merge(o, a, b)
			if err != nil {
				t.Fatalf("merge(%s, %s): %v", a, b, err)
			}
			ba, err := vtype.Merge(o, b, a)
			if err != nil {
				t.Fatalf("merge(%s, %s): %v", b, a, err)
			}
			if ab != ba {
				t.Errorf("merge(%s, %s) = %s but merge(%s, %s) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestMerge(t *testing.T) {
	o := newOracle(t)
	tests := []struct {
		a, b, want vtype.Type
	}{
		{vtype.Int, vtype.Float, vtype.Top},
		{vtype.Int, vtype.Long, vtype.Top},
		{vtype.Long, vtype.Double, vtype.Top},
		{vtype.Int, vtype.Object("Foo"), vtype.Top},
		{vtype.Top, vtype.Object("Foo"), vtype.Top},
		{vtype.Null, vtype.Object("Bar"), vtype.Object("Bar")},
		{vtype.Object("Bar"), vtype.Object("Baz"), vtype.Object("Foo")},
		{vtype.Object("Bar"), vtype.Object("Runner"), vtype.Object("java/lang/Object")},
		{vtype.Object("[LBar;"), vtype.Object("[LBaz;"), vtype.Object("[LFoo;")},
		{vtype.Object("[I"), vtype.Object("[LBar;"), vtype.Object("java/lang/Object")},
		{vtype.Uninitialized(3, "Foo"), vtype.Uninitialized(5, "Foo"), vtype.Top},
		{vtype.UninitializedThis, vtype.Object("Foo"), vtype.Top},
	}
	for _, tt := range tests {
		got, err := vtype.Merge(o, tt.a, tt.b)
		if err != nil {
			t.Fatalf("merge(%s, %s): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("merge(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsAssignable(t *testing.T) {
	o := newOracle(t)
	tests := []struct {
		expected, actual vtype.Type
		want             bool
	}{
		{vtype.Int, vtype.Int, true},
		{vtype.Int, vtype.Float, false},
		{vtype.Long, vtype.Double, false},
		{vtype.Top, vtype.Long, true},
		{vtype.Int, vtype.Top, false},
		{vtype.Object("Foo"), vtype.Null, true},
		{vtype.Object("Foo"), vtype.Object("Bar"), true},
		{vtype.Object("Bar"), vtype.Object("Foo"), false},
		{vtype.Object("Runner"), vtype.Object("Bar"), true},
		{vtype.Object("java/lang/Object"), vtype.Object("[I"), true},
		{vtype.Object("java/lang/Cloneable"), vtype.Object("[I"), true},
		{vtype.Object("[LFoo;"), vtype.Object("[LBar;"), true},
		{vtype.Object("[I"), vtype.Object("[F"), false},
		{vtype.Object("Foo"), vtype.UninitializedThis, false},
		{vtype.Reference, vtype.UninitializedThis, true},
		{vtype.Reference, vtype.Uninitialized(4, "Foo"), true},
		{vtype.Reference, vtype.Null, true},
		{vtype.Reference, vtype.Int, false},
		{vtype.OneWord, vtype.Float, true},
		{vtype.OneWord, vtype.Long, false},
		{vtype.TwoWord, vtype.Double, true},
		{vtype.TwoWord, vtype.Int, false},
		{vtype.Uninitialized(4, "Foo"), vtype.Uninitialized(4, "Foo"), true},
		{vtype.Uninitialized(4, "Foo"), vtype.Uninitialized(6, "Foo"), false},
		{vtype.Null, vtype.Object("Foo"), false},
	}
	for _, tt := range tests {
		got, err := vtype.IsAssignable(o, tt.expected, tt.actual)
		if err != nil {
			t.Fatalf("IsAssignable(%s, %s): %v", tt.expected, tt.actual, err)
		}
		if got != tt.want {
			t.Errorf("IsAssignable(%s, %s) = %v, want %v", tt.expected, tt.actual, got, tt.want)
		}
	}
}

func TestUnknownClassPropagates(t *testing.T) {
	o := newOracle(t)
	if _, err := vtype.IsAssignable(o, vtype.Object("Missing"), vtype.Object("Foo")); err == nil {
		t.Error("expected unknown class error")
	}
	if _, err := vtype.Merge(o, vtype.Object("Missing"), vtype.Object("Foo")); err == nil {
		t.Error("expected unknown class error")
	}
}

func TestFromDescriptor(t *testing.T) {
	m, err := descriptor.ParseMethod("(ZBCSIJFDLjava/lang/String;[[I)V")
	if err != nil {
		t.Fatal(err)
	}
	want := []vtype.Type{
		vtype.Int, vtype.Int, vtype.Int, vtype.Int, vtype.Int, vtype.Long, vtype.Float, vtype.Double,
		vtype.Object("java/lang/String"), vtype.Object("[[I"),
	}
	for i, p := range m.Params {
		if got := vtype.FromDescriptor(p); got != want[i] {
			t.Errorf("param %d: got %s, want %s", i, got, want[i])
		}
	}
}
