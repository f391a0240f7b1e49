package stackmap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"jverify/pkg/bytecode"
	"jverify/pkg/vtype"
)

// ConstantPool resolves the class entries referenced by Object
// verification types.
type ConstantPool interface {
	ClassIndex(name string) (uint16, error)
	ClassName(index uint16) (string, error)
}

// verification_type_info tags
const (
	tagTop               = 0
	tagInteger           = 1
	tagFloat             = 2
	tagDouble            = 3
	tagLong              = 4
	tagNull              = 5
	tagUninitializedThis = 6
	tagObject            = 7
	tagUninitialized     = 8
)

// frame_type ranges
const (
	sameMax                   = 63
	sameLocalsOneItemMin      = 64
	sameLocalsOneItemMax      = 127
	sameLocalsOneItemExtended = 247
	chopMin                   = 248
	sameExtended              = 251
	appendMax                 = 254
	fullFrame                 = 255
)

var ErrTruncated = errors.New("stack map table truncated")

// Marshal encodes entries as the body of a StackMapTable attribute.
// code supplies the byte offsets of the new instructions referenced by
// uninitialized types.
func Marshal(entries []Entry, pool ConstantPool, code []bytecode.Instruction) ([]byte, error) {
	w := &writer{pool: pool, code: code}
	w.u2(len(entries))
	for _, e := range entries {
		if err := w.entry(e); err != nil {
			return nil, fmt.Errorf("frame @%d: %w", e.Target, err)
		}
	}
	return w.buf, nil
}

type writer struct {
	buf  []byte
	pool ConstantPool
	code []bytecode.Instruction
}

func (w *writer) u1(v int) { w.buf = append(w.buf, byte(v)) }
func (w *writer) u2(v int) { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }

func (w *writer) entry(e Entry) error {
	if e.OffsetDelta < 0 || e.OffsetDelta > 0xFFFF {
		return fmt.Errorf("offset delta %d out of range", e.OffsetDelta)
	}

	switch e.Kind {
	case Same:
		if e.OffsetDelta > sameMax {
			return fmt.Errorf("offset delta %d too large for a same frame", e.OffsetDelta)
		}
		w.u1(e.OffsetDelta)
	case SameLocalsOneStackItem:
		if e.OffsetDelta > sameMax {
			return fmt.Errorf("offset delta %d too large for a same_locals_1_stack_item frame", e.OffsetDelta)
		}
		if len(e.Stack) != 1 {
			return fmt.Errorf("%s frame with %d stack items", e.Kind, len(e.Stack))
		}
		w.u1(sameLocalsOneItemMin + e.OffsetDelta)
		return w.types(e.Stack)
	case SameLocalsOneStackItemExtended:
		if len(e.Stack) != 1 {
			return fmt.Errorf("%s frame with %d stack items", e.Kind, len(e.Stack))
		}
		w.u1(sameLocalsOneItemExtended)
		w.u2(e.OffsetDelta)
		return w.types(e.Stack)
	case Chop:
		if e.Chop < 1 || e.Chop > maxChopAppend {
			return fmt.Errorf("cannot chop %d locals", e.Chop)
		}
		w.u1(sameExtended - e.Chop)
		w.u2(e.OffsetDelta)
	case SameExtended:
		w.u1(sameExtended)
		w.u2(e.OffsetDelta)
	case Append:
		if len(e.Locals) < 1 || len(e.Locals) > maxChopAppend {
			return fmt.Errorf("cannot append %d locals", len(e.Locals))
		}
		w.u1(sameExtended + len(e.Locals))
		w.u2(e.OffsetDelta)
		return w.types(e.Locals)
	case Full:
		w.u1(fullFrame)
		w.u2(e.OffsetDelta)
		w.u2(len(e.Locals))
		if err := w.types(e.Locals); err != nil {
			return err
		}
		w.u2(len(e.Stack))
		return w.types(e.Stack)
	default:
		return fmt.Errorf("unknown frame kind %s", e.Kind)
	}
	return nil
}

func (w *writer) types(ts []vtype.Type) error {
	for _, t := range ts {
		if err := w.typ(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) typ(t vtype.Type) error {
	switch t.Kind() {
	case vtype.KindTop:
		w.u1(tagTop)
	case vtype.KindInt:
		w.u1(tagInteger)
	case vtype.KindFloat:
		w.u1(tagFloat)
	case vtype.KindDouble:
		w.u1(tagDouble)
	case vtype.KindLong:
		w.u1(tagLong)
	case vtype.KindNull:
		w.u1(tagNull)
	case vtype.KindUninitializedThis:
		w.u1(tagUninitializedThis)
	case vtype.KindObject:
		idx, err := w.pool.ClassIndex(t.Class())
		if err != nil {
			return err
		}
		w.u1(tagObject)
		w.u2(int(idx))
	case vtype.KindUninitialized:
		if t.Index() < 0 || t.Index() >= len(w.code) {
			return fmt.Errorf("%s refers to instruction %d of %d", t, t.Index(), len(w.code))
		}
		w.u1(tagUninitialized)
		w.u2(w.code[t.Index()].Offset)
	default:
		return fmt.Errorf("%s cannot appear in a stack map", t)
	}
	return nil
}

// Unmarshal decodes the body of a StackMapTable attribute, binding every
// frame to the instruction at its byte offset.
func Unmarshal(data []byte, pool ConstantPool, code []bytecode.Instruction) ([]Entry, error) {
	r := &reader{data: data, pool: pool, code: code, byOffset: make(map[int]int, len(code))}
	for i, ins := range code {
		r.byOffset[ins.Offset] = i
	}

	n, err := r.u2()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, n)
	offset := -1
	for range n {
		e, err := r.entry()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(entries), err)
		}
		offset += e.OffsetDelta + 1
		idx, ok := r.byOffset[offset]
		if !ok {
			return nil, fmt.Errorf("frame %d: no instruction at offset %d", len(entries), offset)
		}
		e.Target = idx
		entries = append(entries, e)
	}
	if r.offset != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after stack map table", len(data)-r.offset)
	}
	return entries, nil
}

// reader holds a cursor over the attribute bytes and moves it on every read
type reader struct {
	data     []byte
	offset   int
	pool     ConstantPool
	code     []bytecode.Instruction
	byOffset map[int]int
}

func (r *reader) u1() (int, error) {
	if r.offset+1 > len(r.data) {
		return 0, ErrTruncated
	}
	v := r.data[r.offset]
	r.offset++
	return int(v), nil
}

func (r *reader) u2() (int, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return int(v), nil
}

func (r *reader) entry() (Entry, error) {
	ft, err := r.u1()
	if err != nil {
		return Entry{}, err
	}

	switch {
	case ft <= sameMax:
		return Entry{Kind: Same, OffsetDelta: ft}, nil
	case ft <= sameLocalsOneItemMax:
		t, err := r.typ()
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: SameLocalsOneStackItem, OffsetDelta: ft - sameLocalsOneItemMin, Stack: []vtype.Type{t}}, nil
	case ft < sameLocalsOneItemExtended:
		return Entry{}, fmt.Errorf("reserved frame type %d", ft)
	}

	delta, err := r.u2()
	if err != nil {
		return Entry{}, err
	}

	switch {
	case ft == sameLocalsOneItemExtended:
		t, err := r.typ()
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: SameLocalsOneStackItemExtended, OffsetDelta: delta, Stack: []vtype.Type{t}}, nil
	case ft >= chopMin && ft < sameExtended:
		return Entry{Kind: Chop, OffsetDelta: delta, Chop: sameExtended - ft}, nil
	case ft == sameExtended:
		return Entry{Kind: SameExtended, OffsetDelta: delta}, nil
	case ft <= appendMax:
		locals, err := r.types(ft - sameExtended)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: Append, OffsetDelta: delta, Locals: locals}, nil
	default:
		nl, err := r.u2()
		if err != nil {
			return Entry{}, err
		}
		locals, err := r.types(nl)
		if err != nil {
			return Entry{}, err
		}
		ns, err := r.u2()
		if err != nil {
			return Entry{}, err
		}
		stack, err := r.types(ns)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: Full, OffsetDelta: delta, Locals: locals, Stack: stack}, nil
	}
}

func (r *reader) types(n int) ([]vtype.Type, error) {
	ts := make([]vtype.Type, 0, n)
	for range n {
		t, err := r.typ()
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, nil
}

func (r *reader) typ() (vtype.Type, error) {
	tag, err := r.u1()
	if err != nil {
		return vtype.Top, err
	}

	switch tag {
	case tagTop:
		return vtype.Top, nil
	case tagInteger:
		return vtype.Int, nil
	case tagFloat:
		return vtype.Float, nil
	case tagDouble:
		return vtype.Double, nil
	case tagLong:
		return vtype.Long, nil
	case tagNull:
		return vtype.Null, nil
	case tagUninitializedThis:
		return vtype.UninitializedThis, nil
	case tagObject:
		idx, err := r.u2()
		if err != nil {
			return vtype.Top, err
		}
		name, err := r.pool.ClassName(uint16(idx))
		if err != nil {
			return vtype.Top, err
		}
		return vtype.Object(name), nil
	case tagUninitialized:
		off, err := r.u2()
		if err != nil {
			return vtype.Top, err
		}
		idx, ok := r.byOffset[off]
		if !ok || r.code[idx].Op != bytecode.OpNew {
			return vtype.Top, fmt.Errorf("uninitialized type at offset %d does not name a new instruction", off)
		}
		return vtype.Uninitialized(idx, r.code[idx].Class), nil
	default:
		return vtype.Top, fmt.Errorf("unknown verification type tag %d", tag)
	}
}
