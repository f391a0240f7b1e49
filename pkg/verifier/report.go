package verifier

import (
	"fmt"
	"sort"
	"sync"
)

// Reporter receives the diagnostics of a verification pass. Index is the
// instruction the diagnostic is attached to, -1 for the method as a whole.
type Reporter interface {
	Error(index int, err error)
	InternalError(index int, err error)
	DeadCode(index int)
}

type Severity int

const (
	SeverityError Severity = iota
	SeverityInternal
	SeverityDeadCode
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityInternal:
		return "internal error"
	case SeverityDeadCode:
		return "dead code"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

type Diagnostic struct {
	Severity Severity
	Index    int
	Err      error // nil for dead code
}

func (d Diagnostic) String() string {
	if d.Err == nil {
		return fmt.Sprintf("%d: %s", d.Index, d.Severity)
	}
	return fmt.Sprintf("%d: %s: %v", d.Index, d.Severity, d.Err)
}

// Diagnostics is a Reporter that collects everything it is told.
type Diagnostics struct {
	mu   sync.Mutex
	list []Diagnostic
}

func (d *Diagnostics) add(diag Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = append(d.list, diag)
}

func (d *Diagnostics) Error(index int, err error) {
	d.add(Diagnostic{Severity: SeverityError, Index: index, Err: err})
}

func (d *Diagnostics) InternalError(index int, err error) {
	d.add(Diagnostic{Severity: SeverityInternal, Index: index, Err: err})
}

func (d *Diagnostics) DeadCode(index int) {
	d.add(Diagnostic{Severity: SeverityDeadCode, Index: index})
}

// List returns the diagnostics ordered by instruction index.
func (d *Diagnostics) List() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]Diagnostic(nil), d.list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Failed reports whether anything was collected.
func (d *Diagnostics) Failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.list) > 0
}
