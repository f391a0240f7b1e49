// Package frame implements the verifier's snapshot of a method's local
// registers and operand stack at one instruction.
//
// Push, Pop, Load, Store and ReplaceAll change the receiver. Every other
// transition returns a fresh Frame, and a Frame handed to the verification
// engine is never changed again: the interpreter works on a Copy.
package frame

import (
	"fmt"
	"strings"

	"jverify/pkg/descriptor"
	"jverify/pkg/stack"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

type Frame struct {
	locals       []vtype.Type             // fixed length: the method's max locals
	stack        *stack.Stack[vtype.Type] // operand stack, bottom first
	maxStack     int                      // capacity of the operand stack in slots
	stackSize    int                      // slots currently used on the stack
	activeLocals int                      // registers up to the last live one
	oracle       vtype.ClassOracle        // class relationships for object types
}

// New creates a frame whose registers all hold Top and whose stack is empty.
func New(maxLocals, maxStack int, o vtype.ClassOracle) *Frame {
	locals := make([]vtype.Type, maxLocals)
	for i := range locals {
		locals[i] = vtype.Top
	}
	return &Frame{
		locals:   locals,
		stack:    stack.NewStack[vtype.Type](),
		maxStack: maxStack,
		oracle:   o,
	}
}

// Build creates a frame from explicit register and stack contents.
func Build(locals, stackItems []vtype.Type, maxStack int, o vtype.ClassOracle) (*Frame, error) {
	f := &Frame{
		locals:   append([]vtype.Type(nil), locals...),
		stack:    stack.NewStack(stackItems...),
		maxStack: maxStack,
		oracle:   o,
	}
	for _, t := range stackItems {
		f.stackSize += t.Size()
	}
	if f.stackSize > maxStack {
		return nil, verror.New(verror.StackOverflow, "stack size %d exceeds max stack %d", f.stackSize, maxStack)
	}
	f.activeLocals = activeLocalsOf(f.locals)
	return f, nil
}

// NewInitial creates the frame on entry to a method: the receiver (unless
// static), then one type per declared parameter, Top in the remaining
// registers.
func NewInitial(className string, isConstructor, isStatic bool, maxLocals, maxStack int, desc descriptor.Method, o vtype.ClassOracle) (*Frame, error) {
	if isConstructor && isStatic {
		return nil, verror.New(verror.Other, "there are no static constructors")
	}

	locals := make([]vtype.Type, 0, maxLocals)
	if !isStatic {
		if isConstructor && className != vtype.RootClass {
			locals = append(locals, vtype.UninitializedThis)
		} else {
			locals = append(locals, vtype.Object(className))
		}
	}
	for _, p := range desc.Params {
		t := vtype.FromDescriptor(p)
		locals = append(locals, t)
		if t.Size() == 2 {
			locals = append(locals, vtype.Top)
		}
	}
	if maxLocals < len(locals) {
		return nil, verror.New(verror.RegisterIndex, "max locals %d < %d required by the method signature", maxLocals, len(locals))
	}
	for len(locals) < maxLocals {
		locals = append(locals, vtype.Top)
	}

	return Build(locals, nil, maxStack, o)
}

// Push places t on top of the operand stack.
func (f *Frame) Push(t vtype.Type) error {
	if f.stackSize+t.Size() > f.maxStack {
		return verror.New(verror.StackOverflow, "pushing %s onto a stack of %d/%d slots", t, f.stackSize, f.maxStack)
	}
	f.stackSize += t.Size()
	f.stack.Push(t)
	return nil
}

// Pop removes the top of the stack if it is assignable to expected.
func (f *Frame) Pop(expected vtype.Type) (vtype.Type, error) {
	value, ok := f.stack.Peek()
	if !ok {
		return vtype.Top, verror.New(verror.StackOverflow, "pop from an empty stack, expected %s", expected)
	}

	assignable, err := vtype.IsAssignable(f.oracle, expected, value)
	if err != nil {
		return vtype.Top, err
	}
	if !assignable {
		return vtype.Top, verror.New(verror.UnexpectedStackType, "stack slot %d: expected %s, found %s", f.stack.Size()-1, expected, value)
	}

	f.stack.Pop()
	f.stackSize -= value.Size()
	return value, nil
}

// Peek returns the top of the stack.
func (f *Frame) Peek() (vtype.Type, bool) {
	return f.stack.Peek()
}

func (f *Frame) checkRegister(size, register int) error {
	if register < 0 || register >= len(f.locals) {
		return verror.New(verror.RegisterIndex, "register %d outside [0, %d)", register, len(f.locals))
	}
	if size == 2 && register >= len(f.locals)-1 {
		return verror.New(verror.RegisterIndex, "register %d cannot hold a two word value", register)
	}
	return nil
}

// Register returns the content of register if it is assignable to expected.
func (f *Frame) Register(expected vtype.Type, register int) (vtype.Type, error) {
	if err := f.checkRegister(expected.Size(), register); err != nil {
		return vtype.Top, err
	}

	value := f.locals[register]
	assignable, err := vtype.IsAssignable(f.oracle, expected, value)
	if err != nil {
		return vtype.Top, err
	}
	if !assignable {
		return vtype.Top, verror.New(verror.UnexpectedRegisterType, "register %d: expected %s, found %s", register, expected, value)
	}
	return value, nil
}

// Load pushes a copy of register after checking it against expected.
func (f *Frame) Load(expected vtype.Type, register int) (vtype.Type, error) {
	value, err := f.Register(expected, register)
	if err != nil {
		return vtype.Top, err
	}
	if err := f.Push(value); err != nil {
		return vtype.Top, err
	}
	return value, nil
}

// Store pops a value assignable to expected into register. A two word
// value also claims register+1; a value written right behind the low half
// of a two word value invalidates that half.
func (f *Frame) Store(expected vtype.Type, register int) error {
	if err := f.checkRegister(expected.Size(), register); err != nil {
		return err
	}

	value, err := f.Pop(expected)
	if err != nil {
		return err
	}

	f.locals[register] = value
	candidate := register + 1
	if value.Size() == 2 {
		f.locals[register+1] = vtype.Top
		candidate++
	}
	if register > 0 && f.locals[register-1].Size() == 2 {
		f.locals[register-1] = vtype.Top
	}

	f.activeLocals = max(candidate, f.activeLocals)
	return nil
}

// ReplaceAll substitutes every occurrence of oldValue in the registers and
// on the stack.
func (f *Frame) ReplaceAll(oldValue, newValue vtype.Type) {
	for i := 0; i < f.stack.Size(); i++ {
		if f.stack.At(i) == oldValue {
			f.stack.Set(i, newValue)
		}
	}
	for i, t := range f.locals {
		if t == oldValue {
			f.locals[i] = newValue
		}
	}
}

// ThrowException returns the frame seen by an exception handler: the same
// registers and a stack holding only the thrown exception.
func (f *Frame) ThrowException(exception vtype.Type) (*Frame, error) {
	return Build(f.locals, []vtype.Type{exception}, f.maxStack, f.oracle)
}

func (f *Frame) checkShape(other *Frame) error {
	if len(other.locals) != len(f.locals) {
		return fmt.Errorf("inconsistent locals sizes %d != %d", len(other.locals), len(f.locals))
	}
	if other.stack.Size() != f.stack.Size() {
		return verror.New(verror.InconsistentStackSize, "%d != %d", other.stack.Size(), f.stack.Size())
	}
	return nil
}

// IsAssignableFrom checks that every slot of other may be used where this
// frame's slot is declared. It is used to validate declared stack map
// frames against computed ones.
func (f *Frame) IsAssignableFrom(other *Frame) error {
	if err := f.checkShape(other); err != nil {
		return err
	}

	for i := 0; i < f.stack.Size(); i++ {
		expected, actual := f.stack.At(i), other.stack.At(i)
		ok, err := vtype.IsAssignable(f.oracle, expected, actual)
		if err != nil {
			return err
		}
		if !ok {
			return verror.New(verror.UnexpectedStackType, "stack slot %d: expected %s, found %s", i, expected, actual)
		}
	}

	for i, expected := range f.locals {
		actual := other.locals[i]
		ok, err := vtype.IsAssignable(f.oracle, expected, actual)
		if err != nil {
			return err
		}
		if !ok {
			return verror.New(verror.UnexpectedRegisterType, "register %d: expected %s, found %s", i, expected, actual)
		}
	}
	return nil
}

// Merge joins two frames slot by slot.
func (f *Frame) Merge(other *Frame) (*Frame, error) {
	if err := f.checkShape(other); err != nil {
		return nil, err
	}

	newStack := make([]vtype.Type, f.stack.Size())
	for i := range newStack {
		t, err := vtype.Merge(f.oracle, f.stack.At(i), other.stack.At(i))
		if err != nil {
			return nil, err
		}
		newStack[i] = t
	}

	newLocals := make([]vtype.Type, len(f.locals))
	for i := range newLocals {
		t, err := vtype.Merge(f.oracle, f.locals[i], other.locals[i])
		if err != nil {
			return nil, err
		}
		newLocals[i] = t
	}

	return Build(newLocals, newStack, f.maxStack, f.oracle)
}

// Same reports whether other carries the same information: identical stack
// and mutually assignable registers.
func (f *Frame) Same(other *Frame) (bool, error) {
	if len(other.locals) != len(f.locals) {
		return false, fmt.Errorf("inconsistent locals sizes %d != %d", len(other.locals), len(f.locals))
	}
	if other.stack.Size() != f.stack.Size() {
		return false, nil
	}

	for i := 0; i < f.stack.Size(); i++ {
		if f.stack.At(i) != other.stack.At(i) {
			return false, nil
		}
	}

	for i, a := range f.locals {
		b := other.locals[i]
		if a == b {
			continue
		}
		ab, err := vtype.IsAssignable(f.oracle, a, b)
		if err != nil {
			return false, err
		}
		ba, err := vtype.IsAssignable(f.oracle, b, a)
		if err != nil {
			return false, err
		}
		if !ab || !ba {
			return false, nil
		}
	}
	return true, nil
}

// Copy returns an independent deep copy.
func (f *Frame) Copy() *Frame {
	return &Frame{
		locals:       append([]vtype.Type(nil), f.locals...),
		stack:        f.stack.Clone(),
		maxStack:     f.maxStack,
		stackSize:    f.stackSize,
		activeLocals: activeLocalsOf(f.locals),
		oracle:       f.oracle,
	}
}

func (f *Frame) Locals() []vtype.Type      { return append([]vtype.Type(nil), f.locals...) }
func (f *Frame) Stack() []vtype.Type       { return f.stack.Array() }
func (f *Frame) Local(i int) vtype.Type    { return f.locals[i] }
func (f *Frame) StackDepth() int           { return f.stack.Size() }
func (f *Frame) StackSize() int            { return f.stackSize }
func (f *Frame) MaxStack() int             { return f.maxStack }
func (f *Frame) MaxLocals() int            { return len(f.locals) }
func (f *Frame) ActiveLocals() int         { return f.activeLocals }
func (f *Frame) Oracle() vtype.ClassOracle { return f.oracle }

// CompactLocals lists the live registers the way stack map frames do: a
// two word value is a single entry and its upper half is omitted.
func (f *Frame) CompactLocals() []vtype.Type {
	var out []vtype.Type
	active := activeLocalsOf(f.locals)
	for i := 0; i < active; i++ {
		t := f.locals[i]
		out = append(out, t)
		if t.Size() == 2 {
			i++
		}
	}
	return out
}

func (f *Frame) String() string {
	return fmt.Sprintf("locals=[%s] stack=[%s]", join(f.locals), join(f.stack.Array()))
}

func join(ts []vtype.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// activeLocalsOf trims trailing Top registers, keeping the upper half of a
// live two word value.
func activeLocalsOf(locals []vtype.Type) int {
	result := len(locals)
	for result > 0 && locals[result-1] == vtype.Top {
		result--
	}
	if result > 0 && locals[result-1].Size() == 2 && result < len(locals) {
		result++
	}
	return result
}
