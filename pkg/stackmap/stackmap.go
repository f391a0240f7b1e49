// Package stackmap converts between concrete frames at branch and handler
// targets and the differential StackMapTable encoding.
package stackmap

import (
	"fmt"
	"slices"
	"strings"

	"jverify/pkg/frame"
	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

type Kind int

const (
	Same Kind = iota
	SameExtended
	SameLocalsOneStackItem
	SameLocalsOneStackItemExtended
	Chop
	Append
	Full
)

// MaxCompactDelta is the largest offset delta the compact Same and
// SameLocalsOneStackItem encodings can carry.
const MaxCompactDelta = 63

// maxChopAppend is the largest number of locals a chop or append frame
// may remove or add.
const maxChopAppend = 3

var kindNames = map[Kind]string{
	Same:                           "same",
	SameExtended:                   "same_extended",
	SameLocalsOneStackItem:         "same_locals_1_stack_item",
	SameLocalsOneStackItemExtended: "same_locals_1_stack_item_extended",
	Chop:                           "chop",
	Append:                         "append",
	Full:                           "full",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a frame kind name back to its value
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	return 0, false
}

// Entry is one differential stack map frame.
type Entry struct {
	Kind        Kind
	Target      int // instruction index the frame describes
	OffsetDelta int
	Chop        int          // Chop: number of locals removed
	Locals      []vtype.Type // Append: added locals; Full: all locals, compact form
	Stack       []vtype.Type // SameLocalsOneStackItem*: the item; Full: the stack
}

func (e Entry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%d %s delta=%d", e.Target, e.Kind, e.OffsetDelta)
	switch e.Kind {
	case Chop:
		fmt.Fprintf(&sb, " chop=%d", e.Chop)
	case Append:
		fmt.Fprintf(&sb, " locals=%v", e.Locals)
	case SameLocalsOneStackItem, SameLocalsOneStackItemExtended:
		fmt.Fprintf(&sb, " stack=%v", e.Stack)
	case Full:
		fmt.Fprintf(&sb, " locals=%v stack=%v", e.Locals, e.Stack)
	}
	return sb.String()
}

// Decode replays entries against the running previous frame, starting
// from initial, and returns the frame declared for each target.
func Decode(initial *frame.Frame, entries []Entry) (map[int]*frame.Frame, error) {
	frames := make(map[int]*frame.Frame, len(entries))
	prev := initial
	for _, e := range entries {
		if _, dup := frames[e.Target]; dup {
			return nil, verror.At(e.Target, verror.DuplicateStackmap, "instruction %d declared twice", e.Target)
		}

		f, err := apply(prev, e)
		if err != nil {
			return nil, verror.WithIndex(err, e.Target)
		}
		frames[e.Target] = f
		prev = f
	}
	return frames, nil
}

func apply(prev *frame.Frame, e Entry) (*frame.Frame, error) {
	switch e.Kind {
	case Same, SameExtended:
		return prev.ApplySame(), nil
	case SameLocalsOneStackItem, SameLocalsOneStackItemExtended:
		if len(e.Stack) != 1 {
			return nil, verror.New(verror.Other, "%s frame with %d stack items", e.Kind, len(e.Stack))
		}
		return prev.ApplySameLocalsOneStackItem(e.Stack[0])
	case Chop:
		return prev.ApplyChop(e.Chop)
	case Append:
		return prev.ApplyAppend(e.Locals)
	case Full:
		return prev.ApplyFull(e.Locals, e.Stack)
	default:
		return nil, verror.New(verror.Other, "unknown stack map frame kind %s", e.Kind)
	}
}

// Diff returns the smallest entry describing cur relative to prev.
func Diff(prev, cur *frame.Frame, delta int) Entry {
	prevLocals, curLocals := prev.CompactLocals(), cur.CompactLocals()
	stack := cur.Stack()
	compact := delta <= MaxCompactDelta

	switch {
	case slices.Equal(prevLocals, curLocals) && len(stack) == 0:
		if compact {
			return Entry{Kind: Same, OffsetDelta: delta}
		}
		return Entry{Kind: SameExtended, OffsetDelta: delta}

	case slices.Equal(prevLocals, curLocals) && len(stack) == 1:
		if compact {
			return Entry{Kind: SameLocalsOneStackItem, OffsetDelta: delta, Stack: stack}
		}
		return Entry{Kind: SameLocalsOneStackItemExtended, OffsetDelta: delta, Stack: stack}
	}

	if len(stack) == 0 {
		n := len(curLocals) - len(prevLocals)
		switch {
		case n < 0 && -n <= maxChopAppend && slices.Equal(curLocals, prevLocals[:len(curLocals)]):
			return Entry{Kind: Chop, OffsetDelta: delta, Chop: -n}
		case n > 0 && n <= maxChopAppend && slices.Equal(prevLocals, curLocals[:len(prevLocals)]):
			return Entry{Kind: Append, OffsetDelta: delta, Locals: curLocals[len(prevLocals):]}
		}
	}

	return Entry{Kind: Full, OffsetDelta: delta, Locals: curLocals, Stack: stack}
}

// Encode builds the table for frames at targets, in ascending order.
// offsets gives the byte offset of every instruction.
func Encode(initial *frame.Frame, targets []int, frames map[int]*frame.Frame, offsets []int) ([]Entry, error) {
	sorted := slices.Clone(targets)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	entries := make([]Entry, 0, len(sorted))
	prev, prevOffset := initial, -1
	for _, t := range sorted {
		f, ok := frames[t]
		if !ok || f == nil {
			return nil, verror.At(t, verror.MissingStackmap, "no frame computed for instruction %d", t)
		}
		if t < 0 || t >= len(offsets) {
			return nil, fmt.Errorf("target %d outside %d instructions", t, len(offsets))
		}

		delta := offsets[t] - prevOffset - 1
		e := Diff(prev, f, delta)
		e.Target = t
		entries = append(entries, e)
		prev, prevOffset = f, offsets[t]
	}
	return entries, nil
}
