// Package oracle provides a table-driven class oracle: the class hierarchy
// the verifier consults for assignability and merges of object types.
package oracle

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"jverify/pkg/verror"
	"jverify/pkg/vtype"
)

// Class is one entry of a class hierarchy file.
type Class struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super"`
	Interfaces []string `yaml:"interfaces"`
	Interface  bool     `yaml:"interface"`
}

// File is the layout of a class hierarchy YAML document.
type File struct {
	Classes []Class `yaml:"classes"`
}

type assignKey struct {
	to, from string
}

// Table is a ClassOracle backed by an in-memory class table. Lookups are
// memoized; a Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	classes map[string]vtype.ClassInfo
	assign  map[assignKey]bool
}

var bootstrap = []Class{
	{Name: vtype.RootClass},
	{Name: "java/io/Serializable", Interface: true},
	{Name: "java/lang/Cloneable", Interface: true},
	{Name: "java/lang/Comparable", Interface: true},
	{Name: "java/lang/CharSequence", Interface: true},
	{Name: "java/lang/Runnable", Interface: true},
	{Name: vtype.StringClass, Super: vtype.RootClass, Interfaces: []string{"java/io/Serializable", "java/lang/Comparable", "java/lang/CharSequence"}},
	{Name: vtype.ClassClass, Super: vtype.RootClass, Interfaces: []string{"java/io/Serializable"}},
	{Name: "java/lang/Number", Super: vtype.RootClass, Interfaces: []string{"java/io/Serializable"}},
	{Name: "java/lang/Integer", Super: "java/lang/Number", Interfaces: []string{"java/lang/Comparable"}},
	{Name: "java/lang/Long", Super: "java/lang/Number", Interfaces: []string{"java/lang/Comparable"}},
	{Name: "java/lang/StringBuilder", Super: vtype.RootClass, Interfaces: []string{"java/io/Serializable", "java/lang/CharSequence"}},
	{Name: "java/lang/System", Super: vtype.RootClass},
	{Name: "java/io/PrintStream", Super: vtype.RootClass},
	{Name: "java/lang/invoke/MethodType", Super: vtype.RootClass},
	{Name: "java/lang/invoke/MethodHandle", Super: vtype.RootClass},
	{Name: vtype.ThrowableClass, Super: vtype.RootClass, Interfaces: []string{"java/io/Serializable"}},
	{Name: "java/lang/Exception", Super: vtype.ThrowableClass},
	{Name: "java/lang/Error", Super: vtype.ThrowableClass},
	{Name: "java/lang/RuntimeException", Super: "java/lang/Exception"},
	{Name: "java/io/IOException", Super: "java/lang/Exception"},
	{Name: "java/lang/ArithmeticException", Super: "java/lang/RuntimeException"},
	{Name: "java/lang/NullPointerException", Super: "java/lang/RuntimeException"},
	{Name: "java/lang/IllegalStateException", Super: "java/lang/RuntimeException"},
	{Name: "java/lang/IllegalArgumentException", Super: "java/lang/RuntimeException"},
}

// New creates a table holding the bootstrap java/lang classes plus classes.
func New(classes ...Class) *Table {
	t := &Table{
		classes: make(map[string]vtype.ClassInfo),
		assign:  make(map[assignKey]bool),
	}
	for _, c := range bootstrap {
		t.Add(c)
	}
	for _, c := range classes {
		t.Add(c)
	}
	return t
}

// Load reads a class hierarchy document and adds it to a fresh table.
func Load(r io.Reader) (*Table, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode class table: %w", err)
	}
	for i, c := range f.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class #%d has no name", i)
		}
	}
	return New(f.Classes...), nil
}

// LoadFile is Load on a file path.
func LoadFile(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer fh.Close()

	t, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Add registers or replaces a class. Every class except the root defaults
// to the root class as superclass.
func (t *Table) Add(c Class) {
	super := c.Super
	if super == "" && c.Name != vtype.RootClass {
		super = vtype.RootClass
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.classes[c.Name] = vtype.ClassInfo{
		Name:       c.Name,
		Super:      super,
		Interfaces: append([]string(nil), c.Interfaces...),
		Interface:  c.Interface,
	}
	// hierarchy changed, memoized answers are stale
	t.assign = make(map[assignKey]bool)
}

// Lookup returns the class named name.
func (t *Table) Lookup(name string) (vtype.ClassInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookupLocked(name)
}

func (t *Table) lookupLocked(name string) (vtype.ClassInfo, error) {
	c, ok := t.classes[name]
	if !ok {
		return vtype.ClassInfo{}, verror.New(verror.UnknownClass, "%s", name)
	}
	return c, nil
}

// IsInterface reports whether name is an interface.
func (t *Table) IsInterface(name string) (bool, error) {
	c, err := t.Lookup(name)
	if err != nil {
		return false, err
	}
	return c.Interface, nil
}

// IsAssignable reports whether class from is a subtype of class to.
func (t *Table) IsAssignable(to, from string) (bool, error) {
	if to == from {
		return true, nil
	}

	key := assignKey{to, from}
	t.mu.RLock()
	res, ok := t.assign[key]
	t.mu.RUnlock()
	if ok {
		return res, nil
	}

	t.mu.RLock()
	res, err := t.walkLocked(to, from)
	t.mu.RUnlock()
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	t.assign[key] = res
	t.mu.Unlock()
	return res, nil
}

// walkLocked searches the supertypes of from for to.
func (t *Table) walkLocked(to, from string) (bool, error) {
	if _, err := t.lookupLocked(to); err != nil {
		return false, err
	}

	seen := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if name == to {
			return true, nil
		}

		c, err := t.lookupLocked(name)
		if err != nil {
			return false, err
		}
		if c.Super != "" {
			queue = append(queue, c.Super)
		}
		queue = append(queue, c.Interfaces...)
	}
	return false, nil
}

// Merge returns the nearest superclass of a that b is assignable to.
func (t *Table) Merge(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	if a == vtype.RootClass || b == vtype.RootClass {
		return vtype.RootClass, nil
	}

	seen := map[string]bool{}
	for {
		ok, err := t.IsAssignable(a, b)
		if err != nil {
			return "", err
		}
		if ok {
			return a, nil
		}

		c, err := t.Lookup(a)
		if err != nil {
			return "", err
		}
		if c.Super == "" || seen[c.Super] {
			return vtype.RootClass, nil
		}
		seen[a] = true
		a = c.Super
	}
}
