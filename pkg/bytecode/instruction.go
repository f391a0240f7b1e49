// Package bytecode describes method instructions with their operands
// already resolved: branch targets are instruction indices, constant-pool
// references are class names and descriptors.
package bytecode

import (
	"fmt"
	"strings"
)

// ConstKind is the kind of constant loaded by ldc, ldc_w and ldc2_w.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstLong
	ConstDouble
	ConstString
	ConstClass
	ConstMethodType
	ConstMethodHandle
	ConstDynamic // dynamically computed constant, typed by Descriptor
)

var constKindNames = map[string]ConstKind{
	"int":          ConstInt,
	"float":        ConstFloat,
	"long":         ConstLong,
	"double":       ConstDouble,
	"string":       ConstString,
	"class":        ConstClass,
	"methodtype":   ConstMethodType,
	"methodhandle": ConstMethodHandle,
	"dynamic":      ConstDynamic,
}

// ParseConstKind maps a constant kind name ("int", "string", ...) to its value
func ParseConstKind(s string) (ConstKind, bool) {
	k, ok := constKindNames[strings.ToLower(s)]
	return k, ok
}

// ArrayType is the atype operand of newarray
type ArrayType uint8

const (
	TBoolean ArrayType = 4
	TChar    ArrayType = 5
	TFloat   ArrayType = 6
	TDouble  ArrayType = 7
	TByte    ArrayType = 8
	TShort   ArrayType = 9
	TInt     ArrayType = 10
	TLong    ArrayType = 11
)

var arrayDescriptors = map[ArrayType]string{
	TBoolean: "[Z",
	TChar:    "[C",
	TFloat:   "[F",
	TDouble:  "[D",
	TByte:    "[B",
	TShort:   "[S",
	TInt:     "[I",
	TLong:    "[J",
}

// Descriptor returns the array descriptor created by newarray with this atype
func (t ArrayType) Descriptor() (string, bool) {
	d, ok := arrayDescriptors[t]
	return d, ok
}

// ParseArrayType maps "int", "boolean", ... to the newarray atype
func ParseArrayType(s string) (ArrayType, bool) {
	for t, d := range arrayDescriptors {
		if primitiveNames[d[1]] == strings.ToLower(s) {
			return t, true
		}
	}
	return 0, false
}

var primitiveNames = map[byte]string{
	'Z': "boolean", 'C': "char", 'F': "float", 'D': "double",
	'B': "byte", 'S': "short", 'I': "int", 'J': "long",
}

type Instruction struct {
	Op     Opcode
	Offset int // byte offset in the code array

	Local     int // register of load/store/iinc/ret
	Increment int // iinc constant

	Target  int   // branch target (instruction index)
	Default int   // switch default target (instruction index)
	Targets []int // switch case targets (instruction indices)
	Keys    []int32
	Low     int32 // tableswitch low bound

	Class      string // class operand: internal name or array descriptor
	Owner      string // field and method references
	Name       string
	Descriptor string

	Constant   ConstKind // ldc family
	ArrayType  ArrayType // newarray
	Dimensions int       // multianewarray

	Wide bool // force the wide encoding
}

// String returns a string representation of the instruction
func (i Instruction) String() string {
	var args []string
	switch {
	case i.IsBranch():
		args = append(args, fmt.Sprintf("@%d", i.Target))
	case i.IsSwitch():
		for _, t := range i.Targets {
			args = append(args, fmt.Sprintf("@%d", t))
		}
		args = append(args, fmt.Sprintf("default @%d", i.Default))
	case i.HasLocalOperand():
		args = append(args, fmt.Sprintf("%d", i.Local))
		if i.Op == OpIinc {
			args = append(args, fmt.Sprintf("%d", i.Increment))
		}
	case i.Owner != "":
		args = append(args, i.Owner+"."+i.Name+":"+i.Descriptor)
	case i.Class != "":
		args = append(args, i.Class)
	}
	if len(args) == 0 {
		return i.Op.String()
	}
	return i.Op.String() + " " + strings.Join(args, ", ")
}

// IsBranch reports conditional and unconditional jumps, including jsr
func (i Instruction) IsBranch() bool {
	switch {
	case i.Op >= OpIfeq && i.Op <= OpJsr:
		return true
	case i.Op == OpIfnull, i.Op == OpIfnonnull, i.Op == OpGotoW, i.Op == OpJsrW:
		return true
	default:
		return false
	}
}

func (i Instruction) IsSwitch() bool {
	return i.Op == OpTableswitch || i.Op == OpLookupswitch
}

func (i Instruction) IsReturn() bool {
	return i.Op >= OpIreturn && i.Op <= OpReturn
}

// IsUnconditional reports jumps that never fall through
func (i Instruction) IsUnconditional() bool {
	return i.Op == OpGoto || i.Op == OpGotoW
}

// IsLegacySubroutine reports the jsr/ret family the verifier refuses
func (i Instruction) IsLegacySubroutine() bool {
	return i.Op == OpJsr || i.Op == OpJsrW || i.Op == OpRet
}

// EndsFlow reports instructions without a fall-through successor
func (i Instruction) EndsFlow() bool {
	return i.IsReturn() || i.Op == OpAthrow || i.IsUnconditional() || i.IsSwitch()
}

// HasLocalOperand reports instructions that address a register
func (i Instruction) HasLocalOperand() bool {
	switch {
	case i.Op >= OpIload && i.Op <= OpAload:
		return true
	case i.Op >= OpIstore && i.Op <= OpAstore:
		return true
	case i.Op == OpIinc, i.Op == OpRet:
		return true
	default:
		return false
	}
}

// ImplicitLocal returns the register encoded in the short load/store forms
// (iload_0 ... astore_3) and the equivalent long-form opcode.
func (i Instruction) ImplicitLocal() (Opcode, int, bool) {
	switch {
	case i.Op >= OpIload0 && i.Op <= OpAload3:
		n := int(i.Op - OpIload0)
		return OpIload + Opcode(n/4), n % 4, true
	case i.Op >= OpIstore0 && i.Op <= OpAstore3:
		n := int(i.Op - OpIstore0)
		return OpIstore + Opcode(n/4), n % 4, true
	default:
		return i.Op, 0, false
	}
}

func (i Instruction) isWide() bool {
	if !i.HasLocalOperand() {
		return false
	}
	if i.Wide || i.Local > 0xFF {
		return true
	}
	return i.Op == OpIinc && (i.Increment < -128 || i.Increment > 127)
}

// Length returns the encoded size in bytes of the instruction placed at
// byte offset.
func (i Instruction) Length(offset int) int {
	switch i.Op {
	case OpBipush, OpLdc, OpNewarray:
		return 2
	case OpSipush, OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		return 3
	case OpMultianewarray:
		return 4
	case OpInvokeinterface, OpInvokedynamic, OpGotoW, OpJsrW:
		return 5
	case OpTableswitch:
		return 1 + switchPadding(offset) + 12 + 4*len(i.Targets)
	case OpLookupswitch:
		return 1 + switchPadding(offset) + 8 + 8*len(i.Targets)
	case OpIinc:
		if i.isWide() {
			return 6
		}
		return 3
	}

	if i.IsBranch() {
		return 3
	}
	if i.HasLocalOperand() {
		if i.isWide() {
			return 4
		}
		return 2
	}
	return 1
}

func switchPadding(offset int) int {
	return (4 - (offset+1)%4) % 4
}

// AssignOffsets lays the instructions out from byte offset 0 and returns
// the code length.
func AssignOffsets(code []Instruction) int {
	offset := 0
	for idx := range code {
		code[idx].Offset = offset
		offset += code[idx].Length(offset)
	}
	return offset
}
