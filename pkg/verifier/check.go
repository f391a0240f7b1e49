package verifier

import (
	"jverify/pkg/frame"
	"jverify/pkg/stackmap"
	"jverify/pkg/verror"
)

// declaredFrames decodes the declared table and checks that every branch
// and handler target has a frame. Methods without targets need no table.
func (e *engine) declaredFrames() (map[int]*frame.Frame, error) {
	if !e.graph.hasTargets() {
		if len(e.m.StackMap) == 0 {
			return map[int]*frame.Frame{}, nil
		}
		return stackmap.Decode(e.initial, e.m.StackMap)
	}

	if e.m.StackMap == nil {
		return nil, verror.At(0, verror.MissingStackmapDeclaration, "method has branch targets but no stack map table")
	}
	declared, err := stackmap.Decode(e.initial, e.m.StackMap)
	if err != nil {
		return nil, err
	}
	for _, t := range e.graph.targets() {
		if declared[t] == nil {
			return nil, verror.At(t, verror.MissingStackmap, "no stack map frame for target %d", t)
		}
	}
	return declared, nil
}

// typeCheck replays the method once, instruction by instruction, checking
// the computed frames against the declared ones.
func (e *engine) typeCheck(declared map[int]*frame.Frame) {
	e.frames = make([]*frame.Frame, len(e.code))
	if !e.graph.hasTargets() {
		e.linearCheck()
		return
	}

	cur := e.initial
	if f := declared[0]; f != nil {
		if err := f.IsAssignableFrom(cur); err != nil {
			e.fail(verror.At(0, kindOf(err), "initial frame isn't assignable to the stack frame at 0: %v", err))
			return
		}
	}
	for i, ins := range e.code {
		e.current = i
		if f := declared[i]; f != nil {
			cur = f
		}
		if cur == nil {
			e.fail(verror.At(i, verror.MissingStackmap, "no frame reaches instruction %d", i))
			return
		}
		e.frames[i] = cur

		out, err := e.execute(i, cur)
		if err != nil {
			e.fail(err)
			return
		}

		var next *frame.Frame
		for _, f := range e.graph.followers[i] {
			target := declared[f]
			if target == nil {
				// only fall-through may reach an undeclared instruction
				next = out
				continue
			}
			if err := target.IsAssignableFrom(out); err != nil {
				e.fail(e.notAssignable(i, f, err))
				return
			}
		}
		for _, h := range e.graph.handlers[i] {
			thrown, err := handlerFrame(out, h)
			if err != nil {
				e.fail(err)
				return
			}
			if err := declared[h.Handler].IsAssignableFrom(thrown); err != nil {
				e.fail(e.notAssignable(i, h.Handler, err))
				return
			}
		}
		if ins.EndsFlow() {
			next = nil
		}
		cur = next
	}
}

func (e *engine) notAssignable(i, target int, cause error) error {
	return verror.At(i, kindOf(cause), "current stackframe isn't assignable to the stack frame at %d: %v", target, cause)
}

// linearCheck verifies a method without branches or handlers by running
// the instructions in order.
func (e *engine) linearCheck() {
	last := len(e.code) - 1
	cur := e.initial
	for i, ins := range e.code {
		e.current = i
		switch {
		case ins.IsBranch(), ins.IsSwitch():
			e.fail(verror.At(i, verror.MalformedLinearMethod, "%s in a method without branch targets", ins.Op))
			return
		case ins.IsReturn() && i != last:
			e.fail(verror.At(i, verror.MalformedLinearMethod, "%s before the end of a linear method", ins.Op))
			return
		}

		e.frames[i] = cur
		out, err := e.execute(i, cur)
		if err != nil {
			e.fail(err)
			return
		}
		cur = out
	}
}

func kindOf(err error) verror.Kind {
	k, _ := verror.KindOf(err)
	return k
}
