package compiler

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"jverify/pkg/bytecode"
	"jverify/pkg/stackmap"
	"jverify/pkg/verifier"
	"jverify/pkg/vtype"
)

// defaultVersion is used when neither the file nor the method names a
// class-file version.
const defaultVersion = 52

// fixtureFile is the layout of a method fixture document.
type fixtureFile struct {
	Class   string          `yaml:"class"`
	Version int             `yaml:"version"`
	Methods []fixtureMethod `yaml:"methods"`
}

type fixtureMethod struct {
	Class            string               `yaml:"class"`
	Name             string               `yaml:"name"`
	Descriptor       string               `yaml:"descriptor"`
	Static           bool                 `yaml:"static"`
	MaxLocals        int                  `yaml:"max-locals"`
	MaxStack         int                  `yaml:"max-stack"`
	Version          int                  `yaml:"version"`
	GenerateStackMap bool                 `yaml:"generate-stackmap"`
	Code             []fixtureInstruction `yaml:"code"`
	Handlers         []fixtureHandler     `yaml:"handlers"`
	StackMap         []fixtureFrame       `yaml:"stackmap"`
}

type fixtureInstruction struct {
	Op         string  `yaml:"op"`
	Local      int     `yaml:"local"`
	Increment  int     `yaml:"increment"`
	Target     int     `yaml:"target"`
	Default    int     `yaml:"default"`
	Targets    []int   `yaml:"targets"`
	Keys       []int32 `yaml:"keys"`
	Low        int32   `yaml:"low"`
	Class      string  `yaml:"class"`
	Owner      string  `yaml:"owner"`
	Name       string  `yaml:"name"`
	Descriptor string  `yaml:"descriptor"`
	Constant   string  `yaml:"constant"`
	Type       string  `yaml:"type"`
	Dimensions int     `yaml:"dimensions"`
	Wide       bool    `yaml:"wide"`
}

// UnmarshalYAML accepts a bare mnemonic for operand-less instructions.
func (fi *fixtureInstruction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		fi.Op = node.Value
		return nil
	}
	type plain fixtureInstruction
	return node.Decode((*plain)(fi))
}

type fixtureHandler struct {
	Start   int    `yaml:"start"`
	End     int    `yaml:"end"`
	Handler int    `yaml:"handler"`
	Catch   string `yaml:"catch"`
}

type fixtureFrame struct {
	Kind   string   `yaml:"kind"`
	Target int      `yaml:"target"`
	Chop   int      `yaml:"chop"`
	Locals []string `yaml:"locals"`
	Stack  []string `yaml:"stack"`
}

// LoadFixtures reads the methods of a fixture file.
func LoadFixtures(path string) ([]*verifier.Method, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer fh.Close()

	methods, err := ParseFixtures(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return methods, nil
}

// ParseFixtures decodes a fixture document into verifier methods.
func ParseFixtures(r io.Reader) ([]*verifier.Method, error) {
	var f fixtureFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	methods := make([]*verifier.Method, 0, len(f.Methods))
	for i, fm := range f.Methods {
		m, err := fm.method(f.Class, f.Version)
		if err != nil {
			return nil, fmt.Errorf("method #%d %s: %w", i, fm.Name, err)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func (fm fixtureMethod) method(class string, version int) (*verifier.Method, error) {
	if fm.Class != "" {
		class = fm.Class
	}
	if fm.Version != 0 {
		version = fm.Version
	}
	if version == 0 {
		version = defaultVersion
	}
	if class == "" || fm.Name == "" || fm.Descriptor == "" {
		return nil, fmt.Errorf("class, name and descriptor are required")
	}

	m := &verifier.Method{
		ClassName:        class,
		Name:             fm.Name,
		Descriptor:       fm.Descriptor,
		Static:           fm.Static,
		MaxLocals:        fm.MaxLocals,
		MaxStack:         fm.MaxStack,
		MajorVersion:     version,
		GenerateStackMap: fm.GenerateStackMap,
		Code:             make([]bytecode.Instruction, 0, len(fm.Code)),
	}

	for i, fi := range fm.Code {
		ins, err := fi.instruction()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		m.Code = append(m.Code, ins)
	}
	for _, h := range fm.Handlers {
		m.Handlers = append(m.Handlers, verifier.Handler{Start: h.Start, End: h.End, Handler: h.Handler, CatchType: h.Catch})
	}
	if fm.StackMap != nil {
		m.StackMap = make([]stackmap.Entry, 0, len(fm.StackMap))
		for i, ff := range fm.StackMap {
			e, err := ff.entry(m.Code)
			if err != nil {
				return nil, fmt.Errorf("stack map frame %d: %w", i, err)
			}
			m.StackMap = append(m.StackMap, e)
		}
	}
	return m, nil
}

func (fi fixtureInstruction) instruction() (bytecode.Instruction, error) {
	op, ok := bytecode.Lookup(fi.Op)
	if !ok {
		return bytecode.Instruction{}, fmt.Errorf("unknown opcode %q", fi.Op)
	}

	ins := bytecode.Instruction{
		Op:         op,
		Local:      fi.Local,
		Increment:  fi.Increment,
		Target:     fi.Target,
		Default:    fi.Default,
		Targets:    fi.Targets,
		Keys:       fi.Keys,
		Low:        fi.Low,
		Class:      fi.Class,
		Owner:      fi.Owner,
		Name:       fi.Name,
		Descriptor: fi.Descriptor,
		Dimensions: fi.Dimensions,
		Wide:       fi.Wide,
	}

	switch op {
	case bytecode.OpLdc, bytecode.OpLdcW, bytecode.OpLdc2W:
		switch {
		case fi.Constant != "":
			k, ok := bytecode.ParseConstKind(fi.Constant)
			if !ok {
				return ins, fmt.Errorf("unknown constant kind %q", fi.Constant)
			}
			ins.Constant = k
		case op == bytecode.OpLdc2W:
			ins.Constant = bytecode.ConstLong
		default:
			ins.Constant = bytecode.ConstInt
		}
	case bytecode.OpNewarray:
		t, ok := bytecode.ParseArrayType(fi.Type)
		if !ok {
			return ins, fmt.Errorf("unknown array type %q", fi.Type)
		}
		ins.ArrayType = t
	}
	return ins, nil
}

func (ff fixtureFrame) entry(code []bytecode.Instruction) (stackmap.Entry, error) {
	kind, ok := stackmap.ParseKind(ff.Kind)
	if !ok {
		return stackmap.Entry{}, fmt.Errorf("unknown frame kind %q", ff.Kind)
	}
	locals, err := parseTypes(ff.Locals, code)
	if err != nil {
		return stackmap.Entry{}, err
	}
	stack, err := parseTypes(ff.Stack, code)
	if err != nil {
		return stackmap.Entry{}, err
	}
	return stackmap.Entry{Kind: kind, Target: ff.Target, Chop: ff.Chop, Locals: locals, Stack: stack}, nil
}

var uninitializedPattern = regexp.MustCompile(`^uninitialized\((\d+)\)$`)

// ParseType reads a verification type as written in fixtures: a primitive
// keyword, uninitializedThis, uninitialized(i) for the new at index i, or a
// class name.
func ParseType(s string, code []bytecode.Instruction) (vtype.Type, error) {
	switch s {
	case "top":
		return vtype.Top, nil
	case "int":
		return vtype.Int, nil
	case "float":
		return vtype.Float, nil
	case "long":
		return vtype.Long, nil
	case "double":
		return vtype.Double, nil
	case "null":
		return vtype.Null, nil
	case "uninitializedThis":
		return vtype.UninitializedThis, nil
	}

	if m := uninitializedPattern.FindStringSubmatch(s); m != nil {
		idx, _ := strconv.Atoi(m[1])
		if idx >= len(code) || code[idx].Op != bytecode.OpNew {
			return vtype.Top, fmt.Errorf("%s does not name a new instruction", s)
		}
		return vtype.Uninitialized(idx, code[idx].Class), nil
	}

	t, err := vtype.FromClassName(s)
	if err != nil {
		return vtype.Top, fmt.Errorf("bad type %q: %w", s, err)
	}
	return t, nil
}

func parseTypes(ss []string, code []bytecode.Instruction) ([]vtype.Type, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	ts := make([]vtype.Type, 0, len(ss))
	for _, s := range ss {
		t, err := ParseType(s, code)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, nil
}
