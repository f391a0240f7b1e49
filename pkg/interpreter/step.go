package interpreter

import (
	"strings"

	"jverify/pkg/bytecode"
	"jverify/pkg/descriptor"
	"jverify/pkg/frame"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

const (
	initName   = "<init>"
	clinitName = "<clinit>"
)

// coreStep is the default step function. It applies the effect of ins to f
// in place; Execute hands it a private copy.
func coreStep(i *Interpreter, index int, ins bytecode.Instruction, f *frame.Frame) error {
	if e, ok := effects[ins.Op]; ok {
		return apply(f, e)
	}

	if op, reg, ok := ins.ImplicitLocal(); ok {
		ins.Op, ins.Local = op, reg
	}
	if t, ok := loadTypes[ins.Op]; ok {
		_, err := f.Load(t, ins.Local)
		return err
	}
	if t, ok := storeTypes[ins.Op]; ok {
		return f.Store(t, ins.Local)
	}
	if a, ok := arrayLoads[ins.Op]; ok {
		return arrayLoad(f, a)
	}
	if a, ok := arrayStores[ins.Op]; ok {
		return arrayStore(f, a)
	}
	if groups, ok := stackOps[ins.Op]; ok {
		return stackOp(ins.Op, groups, f)
	}

	switch ins.Op {
	case bytecode.OpLdc, bytecode.OpLdcW, bytecode.OpLdc2W:
		t, err := constantType(ins)
		if err != nil {
			return err
		}
		return f.Push(t)

	case bytecode.OpIinc:
		_, err := f.Register(vtype.Int, ins.Local)
		return err

	case bytecode.OpIreturn, bytecode.OpLreturn, bytecode.OpFreturn, bytecode.OpDreturn,
		bytecode.OpAreturn, bytecode.OpReturn:
		return i.doReturn(ins, f)

	case bytecode.OpGetstatic, bytecode.OpPutstatic, bytecode.OpGetfield, bytecode.OpPutfield:
		return i.field(ins, f)

	case bytecode.OpInvokevirtual, bytecode.OpInvokespecial, bytecode.OpInvokestatic,
		bytecode.OpInvokeinterface, bytecode.OpInvokedynamic:
		return i.invoke(ins, f)

	case bytecode.OpNew:
		if ins.Class == "" || strings.HasPrefix(ins.Class, "[") {
			return verror.New(verror.Other, "new cannot create %q", ins.Class)
		}
		return f.Push(vtype.Uninitialized(index, ins.Class))

	case bytecode.OpNewarray:
		d, ok := ins.ArrayType.Descriptor()
		if !ok {
			return verror.New(verror.Other, "invalid newarray type %d", ins.ArrayType)
		}
		if _, err := f.Pop(vtype.Int); err != nil {
			return err
		}
		return f.Push(vtype.Object(d))

	case bytecode.OpAnewarray:
		c, err := descriptor.ParseClassName(ins.Class)
		if err != nil {
			return verror.New(verror.Other, "anewarray: %v", err)
		}
		if _, err := f.Pop(vtype.Int); err != nil {
			return err
		}
		return f.Push(vtype.Object(c.ArrayOf().String()))

	case bytecode.OpMultianewarray:
		c, err := descriptor.ParseClassName(ins.Class)
		if err != nil {
			return verror.New(verror.Other, "multianewarray: %v", err)
		}
		if ins.Dimensions < 1 || ins.Dimensions > c.Dims {
			return verror.New(verror.Other, "multianewarray of %s with %d dimensions", ins.Class, ins.Dimensions)
		}
		for range ins.Dimensions {
			if _, err := f.Pop(vtype.Int); err != nil {
				return err
			}
		}
		return f.Push(vtype.Object(ins.Class))

	case bytecode.OpArraylength:
		arr, err := f.Pop(vtype.Reference)
		if err != nil {
			return err
		}
		if arr != vtype.Null && !arr.IsArray() {
			return verror.New(verror.UnexpectedStackType, "arraylength: expected an array, found %s", arr)
		}
		return f.Push(vtype.Int)

	case bytecode.OpAthrow:
		_, err := f.Pop(vtype.Object(vtype.ThrowableClass))
		return err

	case bytecode.OpCheckcast, bytecode.OpInstanceof:
		target, err := vtype.FromClassName(ins.Class)
		if err != nil {
			return verror.New(verror.Other, "%s: %v", ins.Op, err)
		}
		if _, err := f.Pop(vtype.Object(vtype.RootClass)); err != nil {
			return err
		}
		if ins.Op == bytecode.OpInstanceof {
			return f.Push(vtype.Int)
		}
		return f.Push(target)

	case bytecode.OpJsr, bytecode.OpJsrW, bytecode.OpRet:
		return verror.New(verror.UnsupportedInstruction, "%s is not supported", ins.Op)

	case bytecode.OpWide:
		return verror.New(verror.UnsupportedInstruction, "wide must be folded into the instruction it widens")

	default:
		return verror.New(verror.UnsupportedInstruction, "unknown opcode %s", ins.Op)
	}
}

func apply(f *frame.Frame, e effect) error {
	for _, t := range e.pops {
		if _, err := f.Pop(t); err != nil {
			return err
		}
	}
	if e.push != nil {
		return f.Push(*e.push)
	}
	return nil
}

func constantType(ins bytecode.Instruction) (vtype.Type, error) {
	var t vtype.Type
	switch ins.Constant {
	case bytecode.ConstInt:
		t = vtype.Int
	case bytecode.ConstFloat:
		t = vtype.Float
	case bytecode.ConstLong:
		t = vtype.Long
	case bytecode.ConstDouble:
		t = vtype.Double
	case bytecode.ConstString:
		t = vtype.Object(vtype.StringClass)
	case bytecode.ConstClass:
		t = vtype.Object(vtype.ClassClass)
	case bytecode.ConstMethodType:
		t = vtype.Object("java/lang/invoke/MethodType")
	case bytecode.ConstMethodHandle:
		t = vtype.Object("java/lang/invoke/MethodHandle")
	case bytecode.ConstDynamic:
		d, err := descriptor.ParseField(ins.Descriptor)
		if err != nil {
			return vtype.Top, verror.New(verror.Other, "%s: %v", ins.Op, err)
		}
		t = vtype.FromDescriptor(d)
	default:
		return vtype.Top, verror.New(verror.Other, "%s: unknown constant kind %d", ins.Op, ins.Constant)
	}

	if (ins.Op == bytecode.OpLdc2W) != (t.Size() == 2) {
		return vtype.Top, verror.New(verror.Other, "%s cannot load a %s constant", ins.Op, t)
	}
	return t, nil
}

// popArrayRef pops an array reference whose component matches a. null is
// accepted for any array.
func popArrayRef(f *frame.Frame, a arrayOp) (vtype.Type, error) {
	arr, err := f.Pop(vtype.Reference)
	if err != nil {
		return vtype.Top, err
	}
	if arr == vtype.Null {
		return arr, nil
	}

	d, ok := arr.ArrayDescriptor()
	if !ok {
		return vtype.Top, verror.New(verror.UnexpectedStackType, "expected an array, found %s", arr)
	}
	c := d.Component()
	if a.components == "" {
		if !c.IsReference() {
			return vtype.Top, verror.New(verror.UnexpectedStackType, "expected an array of references, found %s", arr)
		}
		return arr, nil
	}
	if c.IsArray() || c.IsObject() || !strings.Contains(a.components, c.String()) {
		return vtype.Top, verror.New(verror.UnexpectedStackType, "expected an array of %s, found %s", a.components, arr)
	}
	return arr, nil
}

func arrayLoad(f *frame.Frame, a arrayOp) error {
	if _, err := f.Pop(vtype.Int); err != nil {
		return err
	}
	arr, err := popArrayRef(f, a)
	if err != nil {
		return err
	}
	if a.components != "" {
		return f.Push(a.value)
	}

	if arr == vtype.Null {
		return f.Push(vtype.Null)
	}
	d, _ := arr.ArrayDescriptor()
	return f.Push(vtype.FromDescriptor(d.Component()))
}

func arrayStore(f *frame.Frame, a arrayOp) error {
	if _, err := f.Pop(a.value); err != nil {
		return err
	}
	if _, err := f.Pop(vtype.Int); err != nil {
		return err
	}
	_, err := popArrayRef(f, a)
	return err
}

// popGroup pops values covering exactly slots stack slots, returned bottom
// first. A two word value may not be split.
func popGroup(f *frame.Frame, slots int) ([]vtype.Type, error) {
	var group []vtype.Type
	for n := 0; n < slots; {
		if top, ok := f.Peek(); ok && n+top.Size() > slots {
			return nil, verror.New(verror.UnexpectedStackType, "expected %d word(s), found %s", slots-n, top)
		}
		v, err := f.Pop(vtype.Top)
		if err != nil {
			return nil, err
		}
		group = append([]vtype.Type{v}, group...)
		n += v.Size()
	}
	return group, nil
}

func pushAll(f *frame.Frame, ts []vtype.Type) error {
	for _, t := range ts {
		if err := f.Push(t); err != nil {
			return err
		}
	}
	return nil
}

func stackOp(op bytecode.Opcode, sizes []int, f *frame.Frame) error {
	groups := make([][]vtype.Type, len(sizes))
	for g, n := range sizes {
		group, err := popGroup(f, n)
		if err != nil {
			return err
		}
		groups[g] = group
	}

	switch op {
	case bytecode.OpPop, bytecode.OpPop2:
		return nil
	case bytecode.OpSwap:
		if err := pushAll(f, groups[0]); err != nil {
			return err
		}
		return pushAll(f, groups[1])
	}

	// dup family: top group, the groups it skips, then the top group again
	if err := pushAll(f, groups[0]); err != nil {
		return err
	}
	for g := len(groups) - 1; g > 0; g-- {
		if err := pushAll(f, groups[g]); err != nil {
			return err
		}
	}
	return pushAll(f, groups[0])
}

var returnTypes = map[bytecode.Opcode]vtype.Type{
	bytecode.OpIreturn: vtype.Int,
	bytecode.OpLreturn: vtype.Long,
	bytecode.OpFreturn: vtype.Float,
	bytecode.OpDreturn: vtype.Double,
}

// ReturnMatches reports whether the return opcode op fits the declared
// return type ret.
func ReturnMatches(op bytecode.Opcode, ret descriptor.Type) bool {
	switch op {
	case bytecode.OpReturn:
		return ret.IsVoid()
	case bytecode.OpAreturn:
		return ret.IsReference()
	default:
		t, ok := returnTypes[op]
		return ok && !ret.IsVoid() && !ret.IsReference() && vtype.FromDescriptor(ret) == t
	}
}

func (i *Interpreter) doReturn(ins bytecode.Instruction, f *frame.Frame) error {
	ret := i.ctx.Desc.Return
	if !ReturnMatches(ins.Op, ret) {
		return verror.New(verror.ReturnTypeMismatch, "%s in a method returning %s", ins.Op, ret)
	}

	switch ins.Op {
	case bytecode.OpReturn:
		if i.ctx.IsConstructor {
			for _, t := range f.Locals() {
				if t == vtype.UninitializedThis {
					return verror.New(verror.Uninitialized, "constructor returns before this is initialized")
				}
			}
		}
		return nil
	case bytecode.OpAreturn:
		_, err := f.Pop(vtype.FromDescriptor(ret))
		return err
	default:
		_, err := f.Pop(returnTypes[ins.Op])
		return err
	}
}

func (i *Interpreter) field(ins bytecode.Instruction, f *frame.Frame) error {
	d, err := descriptor.ParseField(ins.Descriptor)
	if err != nil {
		return verror.New(verror.Other, "%s %s.%s: %v", ins.Op, ins.Owner, ins.Name, err)
	}
	value := vtype.FromDescriptor(d)
	owner, err := vtype.FromClassName(ins.Owner)
	if err != nil {
		return verror.New(verror.Other, "%s: %v", ins.Op, err)
	}

	switch ins.Op {
	case bytecode.OpGetstatic:
		return f.Push(value)
	case bytecode.OpPutstatic:
		_, err := f.Pop(value)
		return err
	case bytecode.OpGetfield:
		if _, err := f.Pop(owner); err != nil {
			return err
		}
		return f.Push(value)
	default:
		if _, err := f.Pop(value); err != nil {
			return err
		}
		// a constructor may assign its own fields before calling super
		if top, ok := f.Peek(); ok && top == vtype.UninitializedThis &&
			i.ctx.IsConstructor && ins.Owner == i.ctx.ClassName {
			_, err := f.Pop(vtype.Reference)
			return err
		}
		_, err := f.Pop(owner)
		return err
	}
}

func (i *Interpreter) invoke(ins bytecode.Instruction, f *frame.Frame) error {
	desc, err := descriptor.ParseMethod(ins.Descriptor)
	if err != nil {
		return verror.New(verror.Other, "%s %s.%s: %v", ins.Op, ins.Owner, ins.Name, err)
	}

	for p := len(desc.Params) - 1; p >= 0; p-- {
		if _, err := f.Pop(vtype.FromDescriptor(desc.Params[p])); err != nil {
			return err
		}
	}

	switch {
	case ins.Op == bytecode.OpInvokestatic, ins.Op == bytecode.OpInvokedynamic:
	case ins.Op == bytecode.OpInvokespecial && ins.Name == initName:
		if !desc.Return.IsVoid() {
			return verror.New(verror.Other, "%s must return void", initName)
		}
		if err := i.initialize(ins, f); err != nil {
			return err
		}
	default:
		if ins.Name == initName || ins.Name == clinitName {
			return verror.New(verror.Other, "%s cannot call %s", ins.Op, ins.Name)
		}
		owner, err := vtype.FromClassName(ins.Owner)
		if err != nil {
			return verror.New(verror.Other, "%s: %v", ins.Op, err)
		}
		if _, err := f.Pop(owner); err != nil {
			return err
		}
	}

	if desc.Return.IsVoid() {
		return nil
	}
	return f.Push(vtype.FromDescriptor(desc.Return))
}

// initialize pops the receiver of a constructor call and replaces every
// copy of it with the initialized object type.
func (i *Interpreter) initialize(ins bytecode.Instruction, f *frame.Frame) error {
	recv, err := f.Pop(vtype.Reference)
	if err != nil {
		return err
	}

	switch recv.Kind() {
	case vtype.KindUninitializedThis:
		if !i.ctx.IsConstructor {
			return verror.New(verror.Uninitialized, "uninitializedThis outside a constructor")
		}
		f.ReplaceAll(recv, vtype.Object(i.ctx.ClassName))
	case vtype.KindUninitialized:
		if recv.Class() != ins.Owner {
			return verror.New(verror.UnexpectedStackType, "%s.%s called on %s", ins.Owner, initName, recv)
		}
		f.ReplaceAll(recv, vtype.Object(recv.Class()))
	default:
		return verror.New(verror.Uninitialized, "%s called on initialized %s", initName, recv)
	}
	return nil
}
