package stackmap_test

import (
	"errors"
	"slices"
	"testing"

	"jverify/pkg/bytecode"
	"jverify/pkg/frame"
	"jverify/pkg/stackmap"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

func isKind(err error, kind verror.Kind) bool {
	return errors.Is(err, verror.New(kind, ""))
}

func build(t *testing.T, locals, stack []vtype.Type) *frame.Frame {
	t.Helper()
	padded := slices.Clone(locals)
	for len(padded) < 4 {
		padded = append(padded, vtype.Top)
	}
	f, err := frame.Build(padded, stack, 2, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return f
}

func TestDecode(t *testing.T) {
	initial := build(t, []vtype.Type{vtype.Int}, nil)
	entries := []stackmap.Entry{
		{Kind: stackmap.Append, Target: 2, Locals: []vtype.Type{vtype.Float, vtype.Long}},
		{Kind: stackmap.SameLocalsOneStackItem, Target: 4, Stack: []vtype.Type{vtype.Int}},
		{Kind: stackmap.Chop, Target: 6, Chop: 2},
		{Kind: stackmap.Full, Target: 9, Locals: []vtype.Type{vtype.Int, vtype.Top, vtype.Int}, Stack: []vtype.Type{vtype.Null}},
		{Kind: stackmap.Same, Target: 11},
	}

	frames, err := stackmap.Decode(initial, entries)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	tests := []struct {
		target int
		locals []vtype.Type
		stack  []vtype.Type
	}{
		{2, []vtype.Type{vtype.Int, vtype.Float, vtype.Long, vtype.Top}, nil},
		{4, []vtype.Type{vtype.Int, vtype.Float, vtype.Long, vtype.Top}, []vtype.Type{vtype.Int}},
		{6, []vtype.Type{vtype.Int, vtype.Top, vtype.Top, vtype.Top}, nil},
		{9, []vtype.Type{vtype.Int, vtype.Top, vtype.Int, vtype.Top}, []vtype.Type{vtype.Null}},
		{11, []vtype.Type{vtype.Int, vtype.Top, vtype.Int, vtype.Top}, nil},
	}
	for _, tt := range tests {
		f := frames[tt.target]
		if f == nil {
			t.Fatalf("no frame for %d", tt.target)
		}
		if !slices.Equal(f.Locals(), tt.locals) {
			t.Errorf("@%d locals %v, want %v", tt.target, f.Locals(), tt.locals)
		}
		if len(f.Stack()) != len(tt.stack) || (len(tt.stack) > 0 && !slices.Equal(f.Stack(), tt.stack)) {
			t.Errorf("@%d stack %v, want %v", tt.target, f.Stack(), tt.stack)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	initial := build(t, []vtype.Type{vtype.Int}, nil)
	tests := []struct {
		name    string
		entries []stackmap.Entry
		kind    verror.Kind
	}{
		{"duplicate", []stackmap.Entry{{Kind: stackmap.Same, Target: 3}, {Kind: stackmap.Same, Target: 3}}, verror.DuplicateStackmap},
		{"chop underflow", []stackmap.Entry{{Kind: stackmap.Chop, Target: 3, Chop: 2}}, verror.StackmapChopUnderflow},
		{"append overflow", []stackmap.Entry{{Kind: stackmap.Append, Target: 3, Locals: []vtype.Type{vtype.Long, vtype.Long}}}, verror.StackmapAppendOverflow},
		{"full stack overflow", []stackmap.Entry{{Kind: stackmap.Full, Target: 3, Stack: []vtype.Type{vtype.Long, vtype.Int}}}, verror.StackmapFullStackOverflow},
	}
	for _, tt := range tests {
		_, err := stackmap.Decode(initial, tt.entries)
		if !isKind(err, tt.kind) {
			t.Errorf("%s: expected %s, got %v", tt.name, tt.kind, err)
			continue
		}
		if verror.IndexOf(err) != 3 {
			t.Errorf("%s: error index %d, want 3", tt.name, verror.IndexOf(err))
		}
	}
}

func TestDiff(t *testing.T) {
	foo := vtype.Object("Foo")
	base := build(t, []vtype.Type{vtype.Int, vtype.Float}, nil)
	tests := []struct {
		name  string
		cur   *frame.Frame
		delta int
		kind  stackmap.Kind
	}{
		{"same", build(t, []vtype.Type{vtype.Int, vtype.Float}, nil), 10, stackmap.Same},
		{"same extended", build(t, []vtype.Type{vtype.Int, vtype.Float}, nil), 64, stackmap.SameExtended},
		{"one item", build(t, []vtype.Type{vtype.Int, vtype.Float}, []vtype.Type{foo}), 63, stackmap.SameLocalsOneStackItem},
		{"one item extended", build(t, []vtype.Type{vtype.Int, vtype.Float}, []vtype.Type{foo}), 200, stackmap.SameLocalsOneStackItemExtended},
		{"chop", build(t, []vtype.Type{vtype.Int}, nil), 1, stackmap.Chop},
		{"append", build(t, []vtype.Type{vtype.Int, vtype.Float, foo}, nil), 1, stackmap.Append},
		{"changed local", build(t, []vtype.Type{vtype.Int, vtype.Int}, nil), 1, stackmap.Full},
		{"two items", build(t, []vtype.Type{vtype.Int, vtype.Float}, []vtype.Type{foo, foo}), 1, stackmap.Full},
		{"chop with stack", build(t, []vtype.Type{vtype.Int}, []vtype.Type{foo}), 1, stackmap.Full},
	}
	for _, tt := range tests {
		e := stackmap.Diff(base, tt.cur, tt.delta)
		if e.Kind != tt.kind || e.OffsetDelta != tt.delta {
			t.Errorf("%s: got %s, want %s delta %d", tt.name, e, tt.kind, tt.delta)
			continue
		}

		// the entry must rebuild cur
		got, err := stackmap.Decode(base, []stackmap.Entry{e})
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if ok, err := got[0].Same(tt.cur); err != nil || !ok {
			t.Errorf("%s: decoded %s, want %s", tt.name, got[0], tt.cur)
		}
	}
}

func TestEncode(t *testing.T) {
	initial := build(t, []vtype.Type{vtype.Int}, nil)
	frames := map[int]*frame.Frame{
		1: build(t, []vtype.Type{vtype.Int}, nil),
		3: build(t, []vtype.Type{vtype.Int, vtype.Float}, nil),
		5: build(t, []vtype.Type{vtype.Int, vtype.Float}, []vtype.Type{vtype.Object("Foo")}),
		7: build(t, []vtype.Type{vtype.Int}, nil),
	}
	offsets := []int{0, 2, 3, 5, 6, 100, 101, 103}

	entries, err := stackmap.Encode(initial, []int{5, 1, 7, 3, 1}, frames, offsets)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := []struct {
		target, delta int
		kind          stackmap.Kind
	}{
		{1, 2, stackmap.Same},
		{3, 2, stackmap.Append},
		{5, 94, stackmap.SameLocalsOneStackItemExtended},
		{7, 2, stackmap.Chop},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Target != w.target || e.OffsetDelta != w.delta || e.Kind != w.kind {
			t.Errorf("entry %d: got %s, want @%d %s delta=%d", i, e, w.target, w.kind, w.delta)
		}
	}

	// decoding the generated table gives back the frames
	decoded, err := stackmap.Decode(initial, entries)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for target, f := range frames {
		if ok, _ := decoded[target].Same(f); !ok {
			t.Errorf("@%d: decoded %s, want %s", target, decoded[target], f)
		}
	}

	if _, err := stackmap.Encode(initial, []int{2}, frames, offsets); !isKind(err, verror.MissingStackmap) {
		t.Errorf("expected missing stack map, got %v", err)
	}
}

func TestMarshal(t *testing.T) {
	code := make([]bytecode.Instruction, 8)
	for i, off := range []int{0, 2, 3, 5, 6, 100, 101, 103} {
		code[i].Offset = off
	}
	code[4] = bytecode.Instruction{Op: bytecode.OpNew, Class: "Foo", Offset: 6}

	entries := []stackmap.Entry{
		{Kind: stackmap.Same, Target: 1, OffsetDelta: 2},
		{Kind: stackmap.Append, Target: 3, OffsetDelta: 2, Locals: []vtype.Type{vtype.Float, vtype.Long}},
		{Kind: stackmap.Full, Target: 5, OffsetDelta: 94,
			Locals: []vtype.Type{vtype.UninitializedThis, vtype.Object("[I")},
			Stack:  []vtype.Type{vtype.Uninitialized(4, "Foo"), vtype.Null, vtype.Double}},
		{Kind: stackmap.Chop, Target: 6, OffsetDelta: 0, Chop: 1},
		{Kind: stackmap.SameLocalsOneStackItem, Target: 7, OffsetDelta: 1, Stack: []vtype.Type{vtype.Object("Foo")}},
	}

	pool := stackmap.NewPool()
	data, err := stackmap.Marshal(entries, pool, code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if data[0] != 0 || data[1] != byte(len(entries)) || data[2] != 2 {
		t.Errorf("unexpected header % x", data[:3])
	}
	if data[3] != 253 {
		t.Errorf("append of two locals encoded as %d, want 253", data[3])
	}

	decoded, err := stackmap.Unmarshal(data, pool, code)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(decoded), len(entries))
	}
	for i := range entries {
		if decoded[i].String() != entries[i].String() {
			t.Errorf("entry %d: got %s, want %s", i, decoded[i], entries[i])
		}
	}

	if _, err := stackmap.Unmarshal(data[:len(data)-1], pool, code); !errors.Is(err, stackmap.ErrTruncated) {
		t.Errorf("expected truncation error, got %v", err)
	}
	bad := []stackmap.Entry{{Kind: stackmap.Same, OffsetDelta: 64}}
	if _, err := stackmap.Marshal(bad, pool, code); err == nil {
		t.Error("expected an error for a compact frame with a large delta")
	}
}
