package verifier

import (
	"slices"

	"jverify/pkg/bytecode"
	"jverify/pkg/interpreter"
	"jverify/pkg/verror"
)

// legacyVersion is the last class-file major version that may contain
// jsr and ret; those methods are skipped instead of rejected.
const legacyVersion = 50

// graph is the control-flow graph: instruction indices with fall-through,
// branch and switch edges plus handler edges.
type graph struct {
	followers        [][]int
	handlers         [][]Handler
	branchTargets    map[int]bool
	exceptionTargets map[int]bool
}

func (g *graph) hasTargets() bool {
	return len(g.branchTargets) > 0 || len(g.exceptionTargets) > 0
}

// targets returns branch and exception targets, ascending.
func (g *graph) targets() []int {
	var out []int
	for t := range g.branchTargets {
		out = append(out, t)
	}
	for t := range g.exceptionTargets {
		if !g.branchTargets[t] {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// successors lists every instruction control may reach from i, handlers
// included.
func (g *graph) successors(i int) []int {
	out := slices.Clone(g.followers[i])
	for _, h := range g.handlers[i] {
		out = append(out, h.Handler)
	}
	return out
}

// stage1 checks the code structure and builds the graph. It returns false
// when verification cannot go on.
func (e *engine) stage1() bool {
	if len(e.m.Code) == 0 {
		e.fail(verror.New(verror.UnexpectedCodeEnd, "method has no code"))
		return false
	}
	if !e.checkBadCode() {
		return false
	}

	ok := e.calculateFollowers()
	if ok {
		ok = e.checkAllReachable()
	}
	return ok
}

func (e *engine) stage1Error(index int, kind verror.Kind, format string, args ...any) {
	e.fail(verror.At(index, kind, format, args...))
}

// checkBadCode rejects legacy subroutines and returns that do not match
// the method's return type.
func (e *engine) checkBadCode() bool {
	ok := true
	for i, ins := range e.m.Code {
		switch {
		case !ins.Op.Valid():
			e.stage1Error(i, verror.UnsupportedInstruction, "unknown opcode %s", ins.Op)
			ok = false
		case ins.IsLegacySubroutine():
			if e.m.MajorVersion > legacyVersion {
				e.stage1Error(i, verror.UnsupportedInstruction, "%s is not allowed in version %d", ins.Op, e.m.MajorVersion)
			}
			ok = false
		case ins.IsReturn() && !interpreter.ReturnMatches(ins.Op, e.desc.Return):
			e.stage1Error(i, verror.ReturnTypeMismatch, "%s doesn't match the return type %s", ins.Op, e.desc.Return)
			ok = false
		}
	}
	return ok
}

func (e *engine) calculateFollowers() bool {
	code := e.m.Code
	n := len(code)
	g := &graph{
		followers:        make([][]int, n),
		handlers:         make([][]Handler, n),
		branchTargets:    make(map[int]bool),
		exceptionTargets: make(map[int]bool),
	}
	ok := true

	target := func(i, t int) {
		if t < 0 || t >= n {
			e.stage1Error(i, verror.Other, "branch target %d outside the code", t)
			ok = false
			return
		}
		if !slices.Contains(g.followers[i], t) {
			g.followers[i] = append(g.followers[i], t)
		}
		g.branchTargets[t] = true
	}
	next := func(i int) {
		if i+1 >= n {
			e.stage1Error(i, verror.UnexpectedCodeEnd, "%s falls off the end of the code", code[i].Op)
			ok = false
			return
		}
		if !slices.Contains(g.followers[i], i+1) {
			g.followers[i] = append(g.followers[i], i+1)
		}
	}

	for i, ins := range code {
		switch {
		case ins.IsBranch():
			target(i, ins.Target)
			if !ins.IsUnconditional() {
				next(i)
			}
		case ins.IsSwitch():
			target(i, ins.Default)
			for _, t := range ins.Targets {
				target(i, t)
			}
		case ins.IsReturn(), ins.Op == bytecode.OpAthrow:
		default:
			next(i)
		}
	}

	for hi, h := range e.m.Handlers {
		if h.Start < 0 || h.End < h.Start || h.End >= n || h.Handler < 0 || h.Handler >= n {
			e.stage1Error(max(0, min(h.Start, n-1)), verror.Other, "exception handler #%d [%d, %d] -> %d outside the code", hi, h.Start, h.End, h.Handler)
			ok = false
			continue
		}
		g.exceptionTargets[h.Handler] = true
		for j := h.Start; j <= h.End; j++ {
			g.handlers[j] = append(g.handlers[j], h)
		}
	}

	e.graph = g
	return ok
}

func (e *engine) reachableFrom(start int, seen []bool) {
	work := []int{start}
	seen[start] = true
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range e.graph.successors(i) {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
}

// checkAllReachable reports unreachable code, once per island: the first
// unreachable instruction is reported and everything reachable from it is
// considered covered.
func (e *engine) checkAllReachable() bool {
	reached := make([]bool, len(e.m.Code))
	e.reachableFrom(0, reached)

	ok := true
	for i := range reached {
		if reached[i] {
			continue
		}
		e.deadCode(i)
		ok = false
		e.reachableFrom(i, reached)
	}
	return ok
}
