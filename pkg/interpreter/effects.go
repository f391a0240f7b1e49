package interpreter

import (
	"jverify/pkg/bytecode"
	"jverify/pkg/vtype"
)

// effect is the stack signature of an instruction without operands: the
// types it pops (top first) and the type it pushes, if any.
type effect struct {
	pops []vtype.Type
	push *vtype.Type
}

func sig(push *vtype.Type, pops ...vtype.Type) effect {
	return effect{pops: pops, push: push}
}

var (
	pushInt    = &vtype.Int
	pushFloat  = &vtype.Float
	pushLong   = &vtype.Long
	pushDouble = &vtype.Double
	pushNull   = &vtype.Null
)

var (
	ii = []vtype.Type{vtype.Int, vtype.Int}
	ll = []vtype.Type{vtype.Long, vtype.Long}
	ff = []vtype.Type{vtype.Float, vtype.Float}
	dd = []vtype.Type{vtype.Double, vtype.Double}
)

// effects covers constants, arithmetic, conversions, comparisons and
// conditional branches.
var effects = map[bytecode.Opcode]effect{
	bytecode.OpNop:        sig(nil),
	bytecode.OpAconstNull: sig(pushNull),
	bytecode.OpIconstM1:   sig(pushInt),
	bytecode.OpIconst0:    sig(pushInt),
	bytecode.OpIconst1:    sig(pushInt),
	bytecode.OpIconst2:    sig(pushInt),
	bytecode.OpIconst3:    sig(pushInt),
	bytecode.OpIconst4:    sig(pushInt),
	bytecode.OpIconst5:    sig(pushInt),
	bytecode.OpLconst0:    sig(pushLong),
	bytecode.OpLconst1:    sig(pushLong),
	bytecode.OpFconst0:    sig(pushFloat),
	bytecode.OpFconst1:    sig(pushFloat),
	bytecode.OpFconst2:    sig(pushFloat),
	bytecode.OpDconst0:    sig(pushDouble),
	bytecode.OpDconst1:    sig(pushDouble),
	bytecode.OpBipush:     sig(pushInt),
	bytecode.OpSipush:     sig(pushInt),

	bytecode.OpIadd:  sig(pushInt, ii...),
	bytecode.OpIsub:  sig(pushInt, ii...),
	bytecode.OpImul:  sig(pushInt, ii...),
	bytecode.OpIdiv:  sig(pushInt, ii...),
	bytecode.OpIrem:  sig(pushInt, ii...),
	bytecode.OpIand:  sig(pushInt, ii...),
	bytecode.OpIor:   sig(pushInt, ii...),
	bytecode.OpIxor:  sig(pushInt, ii...),
	bytecode.OpIshl:  sig(pushInt, ii...),
	bytecode.OpIshr:  sig(pushInt, ii...),
	bytecode.OpIushr: sig(pushInt, ii...),
	bytecode.OpIneg:  sig(pushInt, vtype.Int),

	bytecode.OpLadd:  sig(pushLong, ll...),
	bytecode.OpLsub:  sig(pushLong, ll...),
	bytecode.OpLmul:  sig(pushLong, ll...),
	bytecode.OpLdiv:  sig(pushLong, ll...),
	bytecode.OpLrem:  sig(pushLong, ll...),
	bytecode.OpLand:  sig(pushLong, ll...),
	bytecode.OpLor:   sig(pushLong, ll...),
	bytecode.OpLxor:  sig(pushLong, ll...),
	bytecode.OpLshl:  sig(pushLong, vtype.Int, vtype.Long),
	bytecode.OpLshr:  sig(pushLong, vtype.Int, vtype.Long),
	bytecode.OpLushr: sig(pushLong, vtype.Int, vtype.Long),
	bytecode.OpLneg:  sig(pushLong, vtype.Long),

	bytecode.OpFadd: sig(pushFloat, ff...),
	bytecode.OpFsub: sig(pushFloat, ff...),
	bytecode.OpFmul: sig(pushFloat, ff...),
	bytecode.OpFdiv: sig(pushFloat, ff...),
	bytecode.OpFrem: sig(pushFloat, ff...),
	bytecode.OpFneg: sig(pushFloat, vtype.Float),

	bytecode.OpDadd: sig(pushDouble, dd...),
	bytecode.OpDsub: sig(pushDouble, dd...),
	bytecode.OpDmul: sig(pushDouble, dd...),
	bytecode.OpDdiv: sig(pushDouble, dd...),
	bytecode.OpDrem: sig(pushDouble, dd...),
	bytecode.OpDneg: sig(pushDouble, vtype.Double),

	bytecode.OpI2l: sig(pushLong, vtype.Int),
	bytecode.OpI2f: sig(pushFloat, vtype.Int),
	bytecode.OpI2d: sig(pushDouble, vtype.Int),
	bytecode.OpL2i: sig(pushInt, vtype.Long),
	bytecode.OpL2f: sig(pushFloat, vtype.Long),
	bytecode.OpL2d: sig(pushDouble, vtype.Long),
	bytecode.OpF2i: sig(pushInt, vtype.Float),
	bytecode.OpF2l: sig(pushLong, vtype.Float),
	bytecode.OpF2d: sig(pushDouble, vtype.Float),
	bytecode.OpD2i: sig(pushInt, vtype.Double),
	bytecode.OpD2l: sig(pushLong, vtype.Double),
	bytecode.OpD2f: sig(pushFloat, vtype.Double),
	bytecode.OpI2b: sig(pushInt, vtype.Int),
	bytecode.OpI2c: sig(pushInt, vtype.Int),
	bytecode.OpI2s: sig(pushInt, vtype.Int),

	bytecode.OpLcmp:  sig(pushInt, ll...),
	bytecode.OpFcmpl: sig(pushInt, ff...),
	bytecode.OpFcmpg: sig(pushInt, ff...),
	bytecode.OpDcmpl: sig(pushInt, dd...),
	bytecode.OpDcmpg: sig(pushInt, dd...),

	bytecode.OpIfeq:      sig(nil, vtype.Int),
	bytecode.OpIfne:      sig(nil, vtype.Int),
	bytecode.OpIflt:      sig(nil, vtype.Int),
	bytecode.OpIfge:      sig(nil, vtype.Int),
	bytecode.OpIfgt:      sig(nil, vtype.Int),
	bytecode.OpIfle:      sig(nil, vtype.Int),
	bytecode.OpIfIcmpeq:  sig(nil, ii...),
	bytecode.OpIfIcmpne:  sig(nil, ii...),
	bytecode.OpIfIcmplt:  sig(nil, ii...),
	bytecode.OpIfIcmpge:  sig(nil, ii...),
	bytecode.OpIfIcmpgt:  sig(nil, ii...),
	bytecode.OpIfIcmple:  sig(nil, ii...),
	bytecode.OpIfAcmpeq:  sig(nil, vtype.Reference, vtype.Reference),
	bytecode.OpIfAcmpne:  sig(nil, vtype.Reference, vtype.Reference),
	bytecode.OpIfnull:    sig(nil, vtype.Reference),
	bytecode.OpIfnonnull: sig(nil, vtype.Reference),
	bytecode.OpGoto:      sig(nil),
	bytecode.OpGotoW:     sig(nil),

	bytecode.OpTableswitch:  sig(nil, vtype.Int),
	bytecode.OpLookupswitch: sig(nil, vtype.Int),
	bytecode.OpMonitorenter: sig(nil, vtype.Reference),
	bytecode.OpMonitorexit:  sig(nil, vtype.Reference),
}

// loadTypes and storeTypes give the register type of the long-form load
// and store opcodes.
var loadTypes = map[bytecode.Opcode]vtype.Type{
	bytecode.OpIload: vtype.Int,
	bytecode.OpLload: vtype.Long,
	bytecode.OpFload: vtype.Float,
	bytecode.OpDload: vtype.Double,
	bytecode.OpAload: vtype.Reference,
}

var storeTypes = map[bytecode.Opcode]vtype.Type{
	bytecode.OpIstore: vtype.Int,
	bytecode.OpLstore: vtype.Long,
	bytecode.OpFstore: vtype.Float,
	bytecode.OpDstore: vtype.Double,
	bytecode.OpAstore: vtype.Reference,
}

// arrayOp describes an array load or store: the component descriptor
// letters it accepts and the value type moved.
type arrayOp struct {
	components string // "" for reference components
	value      vtype.Type
}

var arrayLoads = map[bytecode.Opcode]arrayOp{
	bytecode.OpIaload: {"I", vtype.Int},
	bytecode.OpLaload: {"J", vtype.Long},
	bytecode.OpFaload: {"F", vtype.Float},
	bytecode.OpDaload: {"D", vtype.Double},
	bytecode.OpAaload: {"", vtype.Reference},
	bytecode.OpBaload: {"BZ", vtype.Int},
	bytecode.OpCaload: {"C", vtype.Int},
	bytecode.OpSaload: {"S", vtype.Int},
}

var arrayStores = map[bytecode.Opcode]arrayOp{
	bytecode.OpIastore: {"I", vtype.Int},
	bytecode.OpLastore: {"J", vtype.Long},
	bytecode.OpFastore: {"F", vtype.Float},
	bytecode.OpDastore: {"D", vtype.Double},
	bytecode.OpAastore: {"", vtype.Object(vtype.RootClass)},
	bytecode.OpBastore: {"BZ", vtype.Int},
	bytecode.OpCastore: {"C", vtype.Int},
	bytecode.OpSastore: {"S", vtype.Int},
}

// stackOps gives the slot counts popped by the stack manipulation family,
// top group first. The groups are pushed back as first, rest..., first.
var stackOps = map[bytecode.Opcode][]int{
	bytecode.OpPop:    {1},
	bytecode.OpPop2:   {2},
	bytecode.OpDup:    {1},
	bytecode.OpDupX1:  {1, 1},
	bytecode.OpDupX2:  {1, 2},
	bytecode.OpDup2:   {2},
	bytecode.OpDup2X1: {2, 1},
	bytecode.OpDup2X2: {2, 2},
	bytecode.OpSwap:   {1, 1},
}
