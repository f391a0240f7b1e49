package frame

import (
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

// The Apply methods rebuild the frame a differential stack map entry
// describes, relative to the receiver.

// ApplySame keeps the registers and empties the stack.
func (f *Frame) ApplySame() *Frame {
	nf, _ := Build(f.locals, nil, f.maxStack, f.oracle)
	return nf
}

// ApplySameLocalsOneStackItem keeps the registers with a single stack item.
func (f *Frame) ApplySameLocalsOneStackItem(item vtype.Type) (*Frame, error) {
	if item.Size() > f.maxStack {
		return nil, verror.New(verror.StackmapSameLocalsOverflow, "max stack %d, item needs %d", f.maxStack, item.Size())
	}
	return Build(f.locals, []vtype.Type{item}, f.maxStack, f.oracle)
}

// ApplyChop drops the last k live locals. A two word value counts once.
func (f *Frame) ApplyChop(k int) (*Frame, error) {
	compact := f.CompactLocals()
	if k < 0 || k > len(compact) {
		return nil, verror.New(verror.StackmapChopUnderflow, "chopping %d of %d locals", k, len(compact))
	}
	locals, _ := f.expand(compact[:len(compact)-k])
	return Build(locals, nil, f.maxStack, f.oracle)
}

// ApplyAppend adds locals after the live ones and empties the stack.
func (f *Frame) ApplyAppend(appended []vtype.Type) (*Frame, error) {
	compact := append(f.CompactLocals(), appended...)
	locals, slots := f.expand(compact)
	if slots > len(f.locals) {
		return nil, verror.New(verror.StackmapAppendOverflow, "appending %d locals to %d active exceeds %d registers", len(appended), f.activeLocals, len(f.locals))
	}
	return Build(locals, nil, f.maxStack, f.oracle)
}

// ApplyFull replaces registers and stack entirely.
func (f *Frame) ApplyFull(fullLocals, fullStack []vtype.Type) (*Frame, error) {
	locals, slots := f.expand(fullLocals)
	if slots > len(f.locals) {
		return nil, verror.New(verror.StackmapFullLocalsOverflow, "%d registers, frame needs %d", len(f.locals), slots)
	}

	stackSlots := 0
	for _, t := range fullStack {
		stackSlots += t.Size()
	}
	if stackSlots > f.maxStack {
		return nil, verror.New(verror.StackmapFullStackOverflow, "max stack %d, frame needs %d", f.maxStack, stackSlots)
	}
	return Build(locals, fullStack, f.maxStack, f.oracle)
}

// expand turns compact locals into registers padded with Top to the frame's
// register count. slots is the number of registers the entries need.
func (f *Frame) expand(compact []vtype.Type) (locals []vtype.Type, slots int) {
	for _, t := range compact {
		locals = append(locals, t)
		if t.Size() == 2 {
			locals = append(locals, vtype.Top)
		}
	}
	slots = len(locals)
	if slots > len(f.locals) {
		return locals, slots
	}
	for len(locals) < len(f.locals) {
		locals = append(locals, vtype.Top)
	}
	return locals, slots
}
