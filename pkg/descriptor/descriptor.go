// Package descriptor parses field and method descriptors of the class-file
// format ("I", "[Ljava/lang/String;", "(IJ)V").
package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindByte Kind = iota
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindVoid
	KindObject
)

var baseKinds = map[TokenType]Kind{
	BYTE:    KindByte,
	CHAR:    KindChar,
	DOUBLE:  KindDouble,
	FLOAT:   KindFloat,
	INT:     KindInt,
	LONG:    KindLong,
	SHORT:   KindShort,
	BOOLEAN: KindBoolean,
	VOID:    KindVoid,
}

var baseLetters = map[Kind]string{
	KindByte:    "B",
	KindChar:    "C",
	KindDouble:  "D",
	KindFloat:   "F",
	KindInt:     "I",
	KindLong:    "J",
	KindShort:   "S",
	KindBoolean: "Z",
	KindVoid:    "V",
}

// Type is a parsed field descriptor. Dims > 0 marks an array whose element
// is described by Kind (and Class for object elements).
type Type struct {
	Kind  Kind
	Dims  int
	Class string
}

var ErrEmpty = errors.New("empty descriptor")

// Object returns the descriptor type of a class given by internal name.
func Object(class string) Type {
	return Type{Kind: KindObject, Class: class}
}

func (t Type) IsArray() bool  { return t.Dims > 0 }
func (t Type) IsVoid() bool   { return t.Dims == 0 && t.Kind == KindVoid }
func (t Type) IsObject() bool { return t.Dims == 0 && t.Kind == KindObject }

// IsReference reports whether values of the type are object references.
func (t Type) IsReference() bool { return t.IsArray() || t.Kind == KindObject }

// IsIntLike reports the types the verifier treats as int.
func (t Type) IsIntLike() bool {
	if t.Dims > 0 {
		return false
	}
	switch t.Kind {
	case KindBoolean, KindByte, KindChar, KindShort, KindInt:
		return true
	default:
		return false
	}
}

// Component returns the element type of an array one dimension down.
func (t Type) Component() Type {
	if t.Dims == 0 {
		return t
	}
	c := t
	c.Dims--
	return c
}

// ArrayOf returns an array type with one more dimension.
func (t Type) ArrayOf() Type {
	a := t
	a.Dims++
	return a
}

// String renders the type back as a descriptor.
func (t Type) String() string {
	var sb strings.Builder
	for range t.Dims {
		sb.WriteByte('[')
	}
	if t.Kind == KindObject {
		sb.WriteString("L" + t.Class + ";")
	} else {
		sb.WriteString(baseLetters[t.Kind])
	}
	return sb.String()
}

// ClassName is the name used by class references: the internal name for a
// plain class, the full descriptor for arrays.
func (t Type) ClassName() string {
	if t.IsObject() {
		return t.Class
	}
	return t.String()
}

// Method is a parsed method descriptor.
type Method struct {
	Params []Type
	Return Type
}

// String renders the method back as a descriptor.
func (m Method) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	sb.WriteString(m.Return.String())
	return sb.String()
}

// ParamSlots counts the local-variable slots taken by the parameters.
func (m Method) ParamSlots() int {
	n := 0
	for _, p := range m.Params {
		n++
		if p.Dims == 0 && (p.Kind == KindLong || p.Kind == KindDouble) {
			n++
		}
	}
	return n
}

type parser struct {
	l   *Lexer
	src string
}

// ParseField parses a single field descriptor.
func ParseField(s string) (Type, error) {
	if s == "" {
		return Type{}, ErrEmpty
	}
	p := parser{l: NewLexer(s), src: s}
	t, err := p.fieldType(false)
	if err != nil {
		return Type{}, err
	}
	if tok := p.l.NextToken(); tok.Type != EOF {
		return Type{}, p.errorf(tok, "trailing input")
	}
	return t, nil
}

// ParseClassName converts a class reference name (internal name or array
// descriptor) into a Type.
func ParseClassName(name string) (Type, error) {
	if name == "" {
		return Type{}, ErrEmpty
	}
	if strings.HasPrefix(name, "[") {
		return ParseField(name)
	}
	if strings.ContainsAny(name, ";[()") {
		return Type{}, fmt.Errorf("invalid class name %q", name)
	}
	return Object(name), nil
}

// ParseMethod parses a method descriptor.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return Method{}, ErrEmpty
	}
	p := parser{l: NewLexer(s), src: s}
	if tok := p.l.NextToken(); tok.Type != LPAREN {
		return Method{}, p.errorf(tok, "expected '('")
	}

	m := Method{Params: []Type{}}
	for p.l.Peek().Type != RPAREN {
		t, err := p.fieldType(false)
		if err != nil {
			return Method{}, err
		}
		m.Params = append(m.Params, t)
	}
	p.l.NextToken() // ')'

	ret, err := p.fieldType(true)
	if err != nil {
		return Method{}, err
	}
	m.Return = ret

	if tok := p.l.NextToken(); tok.Type != EOF {
		return Method{}, p.errorf(tok, "trailing input")
	}
	return m, nil
}

func (p *parser) fieldType(allowVoid bool) (Type, error) {
	dims := 0
	for {
		tok := p.l.NextToken()
		switch {
		case tok.Type == ARRAY:
			dims++
			if dims > 255 {
				return Type{}, p.errorf(tok, "too many array dimensions")
			}
		case tok.Type == OBJECT:
			return Type{Kind: KindObject, Dims: dims, Class: tok.Literal}, nil
		case tok.Type.IsBase():
			return Type{Kind: baseKinds[tok.Type], Dims: dims}, nil
		case tok.Type == VOID && allowVoid && dims == 0:
			return Type{Kind: KindVoid}, nil
		default:
			return Type{}, p.errorf(tok, "unexpected token")
		}
	}
}

func (p *parser) errorf(tok Token, msg string) error {
	return fmt.Errorf("descriptor %q: %s %q at column %d", p.src, msg, tok.Lexeme, tok.Pos.Column)
}
