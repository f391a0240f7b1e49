package oracle_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"jverify/internal/oracle"
	"jverify/pkg/verror"
)

const hierarchy = `
classes:
  - name: com/example/Shape
  - name: com/example/Circle
    super: com/example/Shape
  - name: com/example/Square
    super: com/example/Shape
    interfaces: [com/example/Drawable]
  - name: com/example/Drawable
    interface: true
`

func TestLoadAndAssign(t *testing.T) {
	tab, err := oracle.Load(strings.NewReader(hierarchy))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		to, from string
		want     bool
	}{
		{"com/example/Shape", "com/example/Circle", true},
		{"com/example/Circle", "com/example/Shape", false},
		{"java/lang/Object", "com/example/Square", true},
		{"com/example/Drawable", "com/example/Square", true},
		{"com/example/Drawable", "com/example/Circle", false},
		{"java/lang/Throwable", "java/lang/ArithmeticException", true},
	}
	for _, tt := range tests {
		got, err := tab.IsAssignable(tt.to, tt.from)
		if err != nil {
			t.Fatalf("IsAssignable(%s, %s): %v", tt.to, tt.from, err)
		}
		if got != tt.want {
			t.Errorf("IsAssignable(%s, %s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}

	iface, err := tab.IsInterface("com/example/Drawable")
	if err != nil || !iface {
		t.Errorf("Drawable should be an interface: %v, %v", iface, err)
	}
}

func TestMerge(t *testing.T) {
	tab, err := oracle.Load(strings.NewReader(hierarchy))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		a, b, want string
	}{
		{"com/example/Circle", "com/example/Square", "com/example/Shape"},
		{"com/example/Square", "com/example/Circle", "com/example/Shape"},
		{"com/example/Circle", "com/example/Circle", "com/example/Circle"},
		{"com/example/Circle", "java/lang/String", "java/lang/Object"},
		{"java/lang/ArithmeticException", "java/io/IOException", "java/lang/Exception"},
	}
	for _, tt := range tests {
		got, err := tab.Merge(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Merge(%s, %s): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Merge(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUnknownClass(t *testing.T) {
	tab := oracle.New()
	_, err := tab.IsAssignable("com/example/Missing", "java/lang/String")
	if !errors.Is(err, verror.New(verror.UnknownClass, "")) {
		t.Errorf("expected unknown class error, got %v", err)
	}
	if _, err := tab.Lookup("com/example/Missing"); err == nil {
		t.Error("expected lookup error")
	}
}

func TestConcurrentReads(t *testing.T) {
	tab, err := oracle.Load(strings.NewReader(hierarchy))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if ok, err := tab.IsAssignable("com/example/Shape", "com/example/Circle"); err != nil || !ok {
					t.Errorf("unexpected %v, %v", ok, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
