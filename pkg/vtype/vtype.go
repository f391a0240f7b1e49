// Package vtype implements the verification type lattice: the abstract
// types held by operand-stack slots and local registers while a method is
// verified, their assignability relation and their join.
package vtype

import (
	"fmt"
	"strings"

	"jverify/pkg/descriptor"
)

type Kind uint8

const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindNull
	KindObject
	KindUninitializedThis
	KindUninitialized

	// Expectation-only kinds. They describe what an instruction accepts and
	// never occur inside a frame.
	KindReference
	KindOneWord
	KindTwoWord
)

const (
	RootClass      = "java/lang/Object"
	ThrowableClass = "java/lang/Throwable"
	StringClass    = "java/lang/String"
	ClassClass     = "java/lang/Class"
)

// Type is a verification type. It is a comparable value; == is structural
// equality.
type Type struct {
	kind  Kind
	class string // Object and Uninitialized: internal name or array descriptor
	index int    // Uninitialized: index of the originating new instruction
}

var (
	Top               = Type{kind: KindTop}
	Int               = Type{kind: KindInt}
	Float             = Type{kind: KindFloat}
	Long              = Type{kind: KindLong}
	Double            = Type{kind: KindDouble}
	Null              = Type{kind: KindNull}
	UninitializedThis = Type{kind: KindUninitializedThis}

	Reference = Type{kind: KindReference}
	OneWord   = Type{kind: KindOneWord}
	TwoWord   = Type{kind: KindTwoWord}
)

// Object returns the type of an initialized reference to class.
func Object(class string) Type {
	return Type{kind: KindObject, class: class}
}

// Uninitialized returns the type produced by the new instruction at index.
func Uninitialized(index int, class string) Type {
	return Type{kind: KindUninitialized, class: class, index: index}
}

func (t Type) Kind() Kind     { return t.kind }
func (t Type) Class() string  { return t.class }
func (t Type) Index() int     { return t.index }
func (t Type) IsTop() bool    { return t.kind == KindTop }
func (t Type) IsObject() bool { return t.kind == KindObject }

// Size is the number of register or stack slots the type occupies.
func (t Type) Size() int {
	switch t.kind {
	case KindLong, KindDouble, KindTwoWord:
		return 2
	default:
		return 1
	}
}

// IsArray reports whether t is an initialized array reference.
func (t Type) IsArray() bool {
	return t.kind == KindObject && strings.HasPrefix(t.class, "[")
}

// ArrayDescriptor returns the parsed descriptor of an array type.
func (t Type) ArrayDescriptor() (descriptor.Type, bool) {
	if !t.IsArray() {
		return descriptor.Type{}, false
	}
	d, err := descriptor.ParseField(t.class)
	if err != nil {
		return descriptor.Type{}, false
	}
	return d, true
}

func (t Type) String() string {
	switch t.kind {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	case KindObject:
		return t.class
	case KindUninitializedThis:
		return "uninitializedThis"
	case KindUninitialized:
		return fmt.Sprintf("uninitialized(%d, %s)", t.index, t.class)
	case KindReference:
		return "reference"
	case KindOneWord:
		return "one word"
	case KindTwoWord:
		return "two words"
	default:
		return fmt.Sprintf("Kind(%d)", t.kind)
	}
}

// FromDescriptor maps a descriptor type to its verification type. boolean,
// byte, char and short are all int to the verifier.
func FromDescriptor(d descriptor.Type) Type {
	switch {
	case d.IsArray():
		return Object(d.String())
	case d.Kind == descriptor.KindObject:
		return Object(d.Class)
	case d.IsIntLike():
		return Int
	case d.Kind == descriptor.KindFloat:
		return Float
	case d.Kind == descriptor.KindLong:
		return Long
	case d.Kind == descriptor.KindDouble:
		return Double
	default:
		return Top
	}
}

// FromClassName maps a class reference (internal name or array descriptor)
// to an object type.
func FromClassName(name string) (Type, error) {
	d, err := descriptor.ParseClassName(name)
	if err != nil {
		return Top, err
	}
	return Object(d.ClassName()), nil
}
