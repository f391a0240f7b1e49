// Package interpreter evaluates the effect of single instructions on
// verification frames.
package interpreter

import (
	"errors"

	"jverify/pkg/bytecode"
	"jverify/pkg/descriptor"
	"jverify/pkg/frame"
	"jverify/pkg/verror"
)

// Context describes the method whose instructions are evaluated.
type Context struct {
	ClassName     string
	MethodName    string
	IsConstructor bool
	Desc          descriptor.Method
}

// Interpreter maps an instruction and its incoming frame to the outgoing
// frame. One Interpreter serves one method; it is not safe for concurrent use.
type Interpreter struct {
	ctx Context

	// Exec hook, replaceable for tests
	execStep func(*Interpreter, int, bytecode.Instruction, *frame.Frame) error

	maxStack int // deepest operand stack observed, in slots
	maxSteps int // maximum steps (0 = unlimited)
	steps    int // steps executed
}

type Option func(*Interpreter)

// WithMaxSteps sets a maximum number of executed instructions before
// returning ErrMaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(i *Interpreter) { i.maxSteps = n }
}

// New creates a new Interpreter for the method described by ctx
func New(ctx Context, opts ...Option) *Interpreter {
	it := &Interpreter{
		ctx:      ctx,
		execStep: coreStep,
	}
	for _, o := range opts {
		o(it)
	}
	return it
}

// SetExecStep installs the function evaluating one instruction
func (i *Interpreter) SetExecStep(fn func(*Interpreter, int, bytecode.Instruction, *frame.Frame) error) {
	i.execStep = fn
}

// Context returns the method context
func (i *Interpreter) Context() Context {
	return i.ctx
}

// MaxStack returns the deepest operand stack observed so far
func (i *Interpreter) MaxStack() int {
	return i.maxStack
}

// Steps returns the number of instructions executed
func (i *Interpreter) Steps() int {
	return i.steps
}

// Reset clears the counters
func (i *Interpreter) Reset() {
	i.maxStack = 0
	i.steps = 0
}

// Execute evaluates the instruction at index against a copy of in and
// returns the resulting frame. in is never modified. Verification errors
// are bound to index.
func (i *Interpreter) Execute(index int, ins bytecode.Instruction, in *frame.Frame) (*frame.Frame, error) {
	if i.execStep == nil {
		return nil, ErrNotImplemented
	}
	if i.maxSteps > 0 && i.steps >= i.maxSteps {
		return nil, ErrMaxStepsExceeded
	}
	i.steps++

	out := in.Copy()
	i.observe(out)
	if err := i.execStep(i, index, ins, out); err != nil {
		return nil, verror.WithIndex(err, index)
	}
	i.observe(out)
	return out, nil
}

func (i *Interpreter) observe(f *frame.Frame) {
	i.maxStack = max(i.maxStack, f.StackSize())
}

var (
	ErrNotImplemented   = errors.New("interpreter step function not linked")
	ErrMaxStepsExceeded = errors.New("maximum steps exceeded")
)
