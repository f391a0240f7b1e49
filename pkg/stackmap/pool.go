package stackmap

import "fmt"

// Pool is an in-memory ConstantPool that hands out class entries on
// demand, starting at index 1.
type Pool struct {
	names   []string
	indices map[string]uint16
}

func NewPool(names ...string) *Pool {
	p := &Pool{indices: make(map[string]uint16)}
	for _, n := range names {
		p.ClassIndex(n)
	}
	return p
}

func (p *Pool) ClassIndex(name string) (uint16, error) {
	if idx, ok := p.indices[name]; ok {
		return idx, nil
	}
	if len(p.names) >= 0xFFFE {
		return 0, fmt.Errorf("constant pool full, cannot add %s", name)
	}
	p.names = append(p.names, name)
	idx := uint16(len(p.names))
	p.indices[name] = idx
	return idx, nil
}

func (p *Pool) ClassName(index uint16) (string, error) {
	if index == 0 || int(index) > len(p.names) {
		return "", fmt.Errorf("no class entry #%d", index)
	}
	return p.names[index-1], nil
}
