package verifier

import (
	"jverify/pkg/frame"
)

// infer computes the entry frame of every instruction as a fixed point.
// The worklist is LIFO; an instruction is queued at most once at a time.
func (e *engine) infer() {
	e.frames = make([]*frame.Frame, len(e.code))
	e.frames[0] = e.initial

	queued := make([]bool, len(e.code))
	work := []int{0}
	queued[0] = true

	push := func(i int) {
		if !queued[i] {
			queued[i] = true
			work = append(work, i)
		}
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		queued[i] = false

		out, err := e.execute(i, e.frames[i])
		if err != nil {
			e.fail(err)
			return
		}

		for _, f := range e.graph.followers[i] {
			changed, err := e.propagate(f, out)
			if err != nil {
				e.fail(err)
				return
			}
			if changed {
				push(f)
			}
		}
		for _, h := range e.graph.handlers[i] {
			thrown, err := handlerFrame(out, h)
			if err != nil {
				e.fail(err)
				return
			}
			changed, err := e.propagate(h.Handler, thrown)
			if err != nil {
				e.fail(err)
				return
			}
			if changed {
				push(h.Handler)
			}
		}
	}
	e.log.Debug("fixed point reached", "steps", e.interp.Steps())
}

// propagate merges in into the entry frame of target and reports whether
// that frame changed.
func (e *engine) propagate(target int, in *frame.Frame) (bool, error) {
	old := e.frames[target]
	if old == nil {
		e.frames[target] = in.Copy()
		return true, nil
	}

	same, err := old.Same(in)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}
	merged, err := old.Merge(in)
	if err != nil {
		return false, err
	}
	if ok, err := merged.Same(old); err == nil && ok {
		return false, nil
	}
	e.frames[target] = merged
	return true, nil
}
