package compiler_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jverify/internal/compiler"
	"jverify/pkg/bytecode"
	"jverify/pkg/color"
	"jverify/pkg/stackmap"
	"jverify/pkg/vtype"
)

const fixtures = `
class: com/acme/Util
version: 49
methods:
  - name: twice
    descriptor: (I)I
    static: true
    max-locals: 1
    max-stack: 2
    code:
      - iload_0
      - iconst_2
      - imul
      - ireturn
  - name: pick
    descriptor: (I)Lcom/acme/Shape;
    static: true
    max-locals: 1
    max-stack: 1
    code:
      - iload_0
      - {op: ifeq, target: 4}
      - {op: getstatic, owner: com/acme/Util, name: circle, descriptor: Lcom/acme/Circle;}
      - {op: goto, target: 5}
      - {op: getstatic, owner: com/acme/Util, name: square, descriptor: Lcom/acme/Square;}
      - areturn
`

const badFixture = `
class: com/acme/Util
methods:
  - name: broken
    descriptor: (I)I
    static: true
    max-locals: 1
    max-stack: 2
    version: 51
    code:
      - iload_0
      - lreturn
`

const classes = `
classes:
  - name: com/acme/Shape
  - name: com/acme/Circle
    super: com/acme/Shape
`

const configDoc = `
workers = 2

[classes."com/acme/Square"]
super = "com/acme/Shape"
`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, c *compiler.Compiler) (string, error) {
	t.Helper()
	color.EnableColor(false)
	var out bytes.Buffer
	c.Out = &out
	err := c.Verify()
	return out.String(), err
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	c := &compiler.Compiler{
		SourceFile:  write(t, dir, "util.yaml", fixtures),
		ClassesFile: write(t, dir, "classes.yaml", classes),
		ConfigFile:  write(t, dir, "jverify.toml", configDoc),
		Generate:    true,
		Verbose:     true,
	}

	out, err := run(t, c)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	for _, want := range []string{
		"com/acme/Util.twice(I)I ok",
		"com/acme/Util.pick(I)Lcom/acme/Shape; ok",
		"StackMapTable:",
		"@4 same delta=10",
		"@5 same_locals_1_stack_item delta=2 stack=[com/acme/Shape]",
		"2 methods verified",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestVerifyRejects(t *testing.T) {
	dir := t.TempDir()
	c := &compiler.Compiler{
		SourceFile: write(t, dir, "bad.yaml", badFixture),
		ConfigFile: write(t, dir, "jverify.toml", ""),
	}

	out, err := run(t, c)
	if !errors.Is(err, compiler.ErrVerificationFailed) {
		t.Fatalf("expected a verification failure, got %v", err)
	}
	if !strings.Contains(out, "rejected") || !strings.Contains(out, "1 lreturn: Error: return type mismatch") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestParseFixtures(t *testing.T) {
	methods, err := compiler.ParseFixtures(strings.NewReader(`
class: Foo
methods:
  - name: make
    descriptor: ()V
    max-locals: 1
    max-stack: 2
    code:
      - {op: new, class: Foo}
      - {op: ldc, constant: string}
      - {op: newarray, type: int}
      - {op: iinc, local: 0, increment: 300}
      - {op: tableswitch, low: 1, default: 5, targets: [5, 5]}
      - return
    handlers:
      - {start: 0, end: 4, handler: 5, catch: java/lang/Exception}
    stackmap:
      - {kind: full, target: 5, locals: [Foo], stack: ["uninitialized(0)", "[I"]}
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods", len(methods))
	}
	m := methods[0]
	if m.ClassName != "Foo" || m.MajorVersion != 52 || m.Static {
		t.Errorf("method header %+v", m)
	}
	if m.Code[1].Constant != bytecode.ConstString || m.Code[2].ArrayType != bytecode.TInt || m.Code[3].Increment != 300 {
		t.Errorf("operands %v", m.Code)
	}
	if m.Handlers[0].CatchType != "java/lang/Exception" {
		t.Errorf("handlers %v", m.Handlers)
	}
	want := stackmap.Entry{Kind: stackmap.Full, Target: 5,
		Locals: []vtype.Type{vtype.Object("Foo")},
		Stack:  []vtype.Type{vtype.Uninitialized(0, "Foo"), vtype.Object("[I")}}
	if len(m.StackMap) != 1 || m.StackMap[0].String() != want.String() {
		t.Errorf("stack map %v, want %v", m.StackMap, want)
	}

	// no stackmap key means no table; an empty list is an empty table
	methods, err = compiler.ParseFixtures(strings.NewReader(`
methods:
  - {class: A, name: a, descriptor: ()V, code: [return]}
  - {class: A, name: b, descriptor: ()V, code: [return], stackmap: []}
`))
	if err != nil {
		t.Fatal(err)
	}
	if methods[0].StackMap != nil || methods[1].StackMap == nil {
		t.Errorf("tables %v / %v", methods[0].StackMap, methods[1].StackMap)
	}
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"unknown opcode", "methods: [{class: A, name: a, descriptor: ()V, code: [frobnicate]}]", "unknown opcode"},
		{"missing descriptor", "methods: [{class: A, name: a}]", "required"},
		{"bad type", "methods: [{class: A, name: a, descriptor: ()V, code: [return], stackmap: [{kind: same_locals_1_stack_item, target: 0, stack: [\"uninitialized(0)\"]}]}]", "does not name a new"},
		{"bad kind", "methods: [{class: A, name: a, descriptor: ()V, code: [return], stackmap: [{kind: sideways, target: 0}]}]", "unknown frame kind"},
	}
	for _, tt := range tests {
		_, err := compiler.ParseFixtures(strings.NewReader(tt.doc))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want %q", tt.name, err, tt.want)
		}
	}
}
