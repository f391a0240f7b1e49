// Package verifier checks that the bytecode of a method is type safe.
//
// Verification runs in two stages. Stage 1 validates the structure of the
// code: known opcodes, matching return instructions, branch targets inside
// the code, no fall-through past the end, no unreachable instructions.
// Stage 2 computes the frame on entry to every instruction, either by
// checking the method against its declared stack map table (type checking)
// or by a fixed-point dataflow analysis (type inferencing). Inferred frames
// can be encoded back into a new stack map table.
package verifier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"jverify/pkg/bytecode"
	"jverify/pkg/descriptor"
	"jverify/pkg/frame"
	"jverify/pkg/interpreter"
	"jverify/pkg/stackmap"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

// typeCheckVersion is the first class-file major version verified against
// declared stack map tables.
const typeCheckVersion = 50

// unlimitedStack stands in for a negative MaxStack.
const unlimitedStack = 0xFFFF

// Handler is an exception-table entry. Start and End are inclusive
// instruction indices; an empty CatchType catches everything.
type Handler struct {
	Start     int
	End       int
	Handler   int
	CatchType string
}

// Method is everything the verifier needs to know about one method.
type Method struct {
	ClassName    string
	Name         string
	Descriptor   string
	Static       bool
	MaxLocals    int
	MaxStack     int
	MajorVersion int

	Code     []bytecode.Instruction
	Handlers []Handler

	// StackMap is the declared table. nil means the method has none.
	StackMap []stackmap.Entry

	// GenerateStackMap requests a regenerated table for this method.
	GenerateStackMap bool
}

func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

func (m *Method) String() string {
	return m.ClassName + "." + m.Name + m.Descriptor
}

type Config struct {
	// ForceStackMaps regenerates the stack map table of every method.
	ForceStackMaps bool
	// MaxIterations bounds the number of executed instructions, 0 for no
	// limit.
	MaxIterations int
}

type Mode int

const (
	ModeNone Mode = iota
	ModeTypeCheck
	ModeInference
)

func (m Mode) String() string {
	switch m {
	case ModeTypeCheck:
		return "type checking"
	case ModeInference:
		return "type inferencing"
	default:
		return "none"
	}
}

// Result is the outcome of verifying one method.
type Result struct {
	// Frames holds the frame on entry to every instruction. Entries stay
	// nil when verification stopped before reaching them.
	Frames []*frame.Frame
	// StackMap is the regenerated table when Regenerated, the declared one
	// otherwise.
	StackMap    []stackmap.Entry
	Regenerated bool
	// Offsets are the byte offsets the table deltas were computed from.
	Offsets []int
	// MaxStack is the deepest operand stack observed, in slots.
	MaxStack int
	Mode     Mode
	// Err is the first reported problem, nil when the method verified.
	Err error
}

func (r *Result) OK() bool { return r.Err == nil }

type engine struct {
	m      *Method
	o      vtype.ClassOracle
	cfg    Config
	rep    Reporter
	log    *log.Logger
	desc   descriptor.Method
	interp *interpreter.Interpreter

	graph   *graph
	code    []bytecode.Instruction
	offsets []int
	initial *frame.Frame
	frames  []*frame.Frame

	current int
	err     error
}

// Verify runs both stages on m and reports every problem to rep. A nil
// oracle resolves class merges to java/lang/Object; a nil reporter
// discards diagnostics, leaving only Result.Err.
func Verify(m *Method, o vtype.ClassOracle, cfg Config, rep Reporter) (res *Result) {
	if rep == nil {
		rep = &Diagnostics{}
	}
	e := &engine{
		m:       m,
		o:       o,
		cfg:     cfg,
		rep:     rep,
		log:     log.With("method", m.String()),
		current: -1,
	}
	res = &Result{}

	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("verifier panic: %v", r))
		}
		res.Err = e.err
	}()

	e.run(res)
	return res
}

func (e *engine) run(res *Result) {
	desc, err := descriptor.ParseMethod(e.m.Descriptor)
	if err != nil {
		e.fail(verror.New(verror.Other, "bad method descriptor %q: %v", e.m.Descriptor, err))
		return
	}
	e.desc = desc
	e.prepareCode()
	res.Offsets = e.offsets

	if !e.stage1() {
		e.log.Debug("structure check failed")
		return
	}

	maxStack := e.m.MaxStack
	if maxStack < 0 {
		maxStack = unlimitedStack
	}
	e.initial, err = frame.NewInitial(e.m.ClassName, e.m.IsConstructor(), e.m.Static, e.m.MaxLocals, maxStack, e.desc, e.o)
	if err != nil {
		e.fail(err)
		return
	}

	var opts []interpreter.Option
	if e.cfg.MaxIterations > 0 {
		opts = append(opts, interpreter.WithMaxSteps(e.cfg.MaxIterations))
	}
	e.interp = interpreter.New(interpreter.Context{
		ClassName:     e.m.ClassName,
		MethodName:    e.m.Name,
		IsConstructor: e.m.IsConstructor(),
		Desc:          e.desc,
	}, opts...)

	regenerate := e.cfg.ForceStackMaps || e.m.GenerateStackMap
	res.StackMap = e.m.StackMap

	switch {
	case e.m.MajorVersion >= typeCheckVersion && !regenerate:
		res.Mode = ModeTypeCheck
		declared, err := e.declaredFrames()
		if err != nil && e.m.MajorVersion == typeCheckVersion {
			e.log.Debug("falling back to type inferencing", "reason", err)
			res.Mode = ModeInference
			e.infer()
			break
		}
		if err != nil {
			e.fail(err)
			break
		}
		e.typeCheck(declared)
	default:
		res.Mode = ModeInference
		e.infer()
	}

	res.Frames = e.frames
	res.MaxStack = e.interp.MaxStack()
	e.log.Debug("verified", "mode", res.Mode, "steps", e.interp.Steps(), "max-stack", res.MaxStack, "ok", e.err == nil)

	if regenerate && e.err == nil {
		res.StackMap = e.regenerate()
		res.Regenerated = e.err == nil
	}
}

// prepareCode binds offsets to the instructions, computing them when the
// input carries none.
func (e *engine) prepareCode() {
	e.code = e.m.Code
	assigned := false
	for _, ins := range e.code {
		if ins.Offset != 0 {
			assigned = true
			break
		}
	}
	if !assigned && len(e.code) > 1 {
		e.code = slices.Clone(e.code)
		bytecode.AssignOffsets(e.code)
	}

	e.offsets = make([]int, len(e.code))
	for i, ins := range e.code {
		e.offsets[i] = ins.Offset
	}
}

// regenerate encodes the inferred frames at every branch and handler target.
func (e *engine) regenerate() []stackmap.Entry {
	if !e.graph.hasTargets() {
		return []stackmap.Entry{}
	}

	frames := make(map[int]*frame.Frame)
	targets := e.graph.targets()
	for _, t := range targets {
		if e.frames[t] != nil {
			frames[t] = e.frames[t]
		}
	}
	entries, err := stackmap.Encode(e.initial, targets, frames, e.offsets)
	if err != nil {
		e.fail(err)
		return nil
	}
	e.log.Debug("regenerated stack map", "entries", len(entries))
	return entries
}

// fail reports err against the instruction it names, or the one being
// processed. Anything that is not a verification failure is an internal
// error.
func (e *engine) fail(err error) {
	index := verror.IndexOf(err)
	if index < 0 {
		index = max(e.current, 0)
	}
	err = verror.WithIndex(err, index)
	if e.err == nil {
		e.err = err
	}

	if verror.IsVerifyError(err) || errors.Is(err, interpreter.ErrMaxStepsExceeded) {
		e.rep.Error(index, err)
		return
	}
	e.log.Error("internal error", "index", index, "error", err)
	e.rep.InternalError(index, err)
}

// deadCode reports an unreachable island starting at index.
func (e *engine) deadCode(index int) {
	if e.err == nil {
		e.err = verror.At(index, verror.DeadCode, "instruction %d is unreachable", index)
	}
	e.log.Debug("dead code", "index", index)
	e.rep.DeadCode(index)
}

func (e *engine) execute(i int, in *frame.Frame) (*frame.Frame, error) {
	e.current = i
	return e.interp.Execute(i, e.code[i], in)
}

// handlerFrame is the frame seen by handler h when out is the state after
// an instruction it covers.
func handlerFrame(out *frame.Frame, h Handler) (*frame.Frame, error) {
	catch := vtype.Object(vtype.ThrowableClass)
	if h.CatchType != "" {
		catch = vtype.Object(h.CatchType)
	}
	return out.ThrowException(catch)
}
