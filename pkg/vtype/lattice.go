package vtype

import (
	"jverify/pkg/descriptor"
)

// ClassInfo is what a class oracle knows about a loaded class.
type ClassInfo struct {
	Name       string
	Super      string
	Interfaces []string
	Interface  bool
}

// ClassOracle answers questions about classes outside the method being
// verified. Implementations report unknown classes with a
// verror.UnknownClass error and must be safe for concurrent reads.
type ClassOracle interface {
	Lookup(name string) (ClassInfo, error)
	IsInterface(name string) (bool, error)
	IsAssignable(to, from string) (bool, error)
	Merge(a, b string) (string, error)
}

// IsAssignable reports whether a value of type actual may be used where
// expected is required. The oracle may be nil when no class relationships
// beyond identity and the root class are needed.
func IsAssignable(o ClassOracle, expected, actual Type) (bool, error) {
	switch expected.kind {
	case KindTop:
		return true, nil
	case KindInt, KindFloat, KindLong, KindDouble, KindNull, KindUninitializedThis:
		return actual.kind == expected.kind, nil
	case KindUninitialized:
		return actual.kind == KindUninitialized && actual.index == expected.index, nil
	case KindReference:
		return isReference(actual), nil
	case KindOneWord:
		return actual.kind == KindInt || actual.kind == KindFloat || isReference(actual), nil
	case KindTwoWord:
		return actual.kind == KindLong || actual.kind == KindDouble, nil
	case KindObject:
		switch actual.kind {
		case KindNull:
			return true, nil
		case KindObject:
			return isAssignableClass(o, expected.class, actual.class)
		default:
			return false, nil
		}
	default:
		return false, nil
	}
}

// Merge joins two types meeting at a control-flow merge point.
// Mismatched primitives collapse to Top; two objects join at their nearest
// common superclass.
func Merge(o ClassOracle, a, b Type) (Type, error) {
	if a == b {
		return a, nil
	}
	if a.kind == KindTop || b.kind == KindTop {
		return Top, nil
	}

	switch {
	case a.kind == KindNull && b.kind == KindObject:
		return b, nil
	case a.kind == KindObject && b.kind == KindNull:
		return a, nil
	case a.kind == KindObject && b.kind == KindObject:
		name, err := mergeClass(o, a.class, b.class)
		if err != nil {
			return Top, err
		}
		return Object(name), nil
	default:
		return Top, nil
	}
}

func isReference(t Type) bool {
	switch t.kind {
	case KindNull, KindObject, KindUninitializedThis, KindUninitialized:
		return true
	default:
		return false
	}
}

func isArrayName(name string) bool {
	return len(name) > 0 && name[0] == '['
}

func isAssignableClass(o ClassOracle, to, from string) (bool, error) {
	if to == from || to == RootClass {
		return true, nil
	}

	if isArrayName(to) {
		if !isArrayName(from) {
			return false, nil
		}
		dt, err := descriptor.ParseField(to)
		if err != nil {
			return false, err
		}
		df, err := descriptor.ParseField(from)
		if err != nil {
			return false, err
		}
		ct, cf := dt.Component(), df.Component()
		if ct.IsReference() && cf.IsReference() {
			return isAssignableClass(o, ct.ClassName(), cf.ClassName())
		}
		return ct == cf, nil
	}

	if isArrayName(from) {
		return to == "java/lang/Cloneable" || to == "java/io/Serializable", nil
	}

	if o == nil {
		return false, nil
	}
	// interfaces are treated like the root class
	iface, err := o.IsInterface(to)
	if err != nil {
		return false, err
	}
	if iface {
		return true, nil
	}
	return o.IsAssignable(to, from)
}

func mergeClass(o ClassOracle, a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	if a == RootClass || b == RootClass {
		return RootClass, nil
	}

	if isArrayName(a) || isArrayName(b) {
		if !isArrayName(a) || !isArrayName(b) {
			return RootClass, nil
		}
		da, err := descriptor.ParseField(a)
		if err != nil {
			return "", err
		}
		db, err := descriptor.ParseField(b)
		if err != nil {
			return "", err
		}
		ca, cb := da.Component(), db.Component()
		if !ca.IsReference() || !cb.IsReference() {
			return RootClass, nil
		}
		c, err := mergeClass(o, ca.ClassName(), cb.ClassName())
		if err != nil {
			return "", err
		}
		if isArrayName(c) {
			return "[" + c, nil
		}
		return "[L" + c + ";", nil
	}

	if o == nil {
		return RootClass, nil
	}
	for _, name := range []string{a, b} {
		iface, err := o.IsInterface(name)
		if err != nil {
			return "", err
		}
		if iface {
			return RootClass, nil
		}
	}
	return o.Merge(a, b)
}
