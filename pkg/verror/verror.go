// Package verror defines the error taxonomy of the bytecode verifier.
//
// Every error raised while executing an instruction or comparing frames is
// an *Error. Errors created below the engine carry Index -1; the engine
// attaches the instruction index it was processing when the error surfaced.
package verror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// capacity
	StackOverflow Kind = iota
	RegisterIndex
	StackmapSameLocalsOverflow
	StackmapChopUnderflow
	StackmapAppendOverflow
	StackmapFullLocalsOverflow
	StackmapFullStackOverflow

	// types
	UnexpectedStackType
	UnexpectedRegisterType
	InconsistentStackSize

	// control structure
	MissingStackmap
	MissingStackmapDeclaration
	DuplicateStackmap
	UnsupportedInstruction
	MalformedLinearMethod
	UnexpectedCodeEnd
	ReturnTypeMismatch
	DeadCode
	Uninitialized

	// resolution
	UnknownClass

	// everything else the verifier rejects
	Other
)

var kindNames = map[Kind]string{
	StackOverflow:              "stack overflow",
	RegisterIndex:              "illegal register index",
	StackmapSameLocalsOverflow: "stack map same-locals stack overflow",
	StackmapChopUnderflow:      "stack map chop underflow",
	StackmapAppendOverflow:     "stack map append overflow",
	StackmapFullLocalsOverflow: "stack map full-frame locals overflow",
	StackmapFullStackOverflow:  "stack map full-frame stack overflow",
	UnexpectedStackType:        "unexpected stack type",
	UnexpectedRegisterType:     "unexpected register type",
	InconsistentStackSize:      "inconsistent stack size",
	MissingStackmap:            "missing stack map",
	MissingStackmapDeclaration: "missing stack map declaration",
	DuplicateStackmap:          "duplicate stack map frame",
	UnsupportedInstruction:     "bad instruction",
	MalformedLinearMethod:      "malformed linear method",
	UnexpectedCodeEnd:          "unexpected code end",
	ReturnTypeMismatch:         "return type mismatch",
	DeadCode:                   "dead code",
	Uninitialized:              "uninitialized object",
	UnknownClass:               "unknown class",
	Other:                      "verification error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a verification failure, optionally bound to an instruction.
type Error struct {
	Kind  Kind
	Index int // instruction index, -1 when unknown
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches errors of the same kind, so errors.Is(err, verror.New(k, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New creates an error that is not yet bound to an instruction.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Index: -1, Msg: fmt.Sprintf(format, args...)}
}

// At creates an error bound to an instruction index.
func At(index int, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Index: index, Msg: fmt.Sprintf(format, args...)}
}

// WithIndex binds err to index unless it already carries one.
// Errors that are not *Error are returned unchanged.
func WithIndex(err error, index int) error {
	var ve *Error
	if !errors.As(err, &ve) || ve.Index >= 0 {
		return err
	}
	bound := *ve
	bound.Index = index
	return &bound
}

// IndexOf returns the instruction index carried by err, or -1.
func IndexOf(err error) int {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Index
	}
	return -1
}

// KindOf returns the kind of err and whether err is a verification error.
func KindOf(err error) (Kind, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return Other, false
}

// IsVerifyError reports whether err belongs to the verifier's taxonomy,
// as opposed to an internal failure.
func IsVerifyError(err error) bool {
	_, ok := KindOf(err)
	return ok
}
