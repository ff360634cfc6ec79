package vm_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/chazu/coxy/compiler"
	"github.com/chazu/coxy/vm"
)

// ---------------------------------------------------------------------------
// Multi-VM isolation
//
// Two VMs in one process share nothing: globals, interned strings and
// heaps are per instance.
// ---------------------------------------------------------------------------

func TestMultiVM_IndependentGlobals(t *testing.T) {
	vm1, out1 := newVM(t)
	vm2, out2 := newVM(t)

	if _, err := vm1.Interpret(`var shared = "one";`); err != nil {
		t.Fatal(err)
	}
	if _, err := vm2.Interpret(`var shared = "two";`); err != nil {
		t.Fatal(err)
	}
	vm1.Interpret(`print shared;`)
	vm2.Interpret(`print shared;`)

	if out1.String() != "one\n" || out2.String() != "two\n" {
		t.Errorf("outputs = %q, %q; want one and two", out1.String(), out2.String())
	}

	if _, err := vm2.Interpret(`var onlyInTwo = 1;`); err != nil {
		t.Fatal(err)
	}
	if _, ok := vm1.GetGlobal("onlyInTwo"); ok {
		t.Error("global leaked from vm2 into vm1")
	}
}

func TestMultiVM_SeparateHeaps(t *testing.T) {
	vm1, _ := newVM(t)
	vm2, _ := newVM(t)

	if vm1.Heap() == vm2.Heap() {
		t.Fatal("VMs share a heap")
	}
	if vm1.ID() == vm2.ID() {
		t.Error("VMs share an id")
	}

	before := vm2.Heap().LiveObjects()
	if _, err := vm1.Interpret(`var s = "only" + " in one";`); err != nil {
		t.Fatal(err)
	}
	if vm2.Heap().LiveObjects() != before {
		t.Errorf("vm2 LiveObjects changed from %d to %d", before, vm2.Heap().LiveObjects())
	}
}

func TestMultiVM_CollectOneKeepsOther(t *testing.T) {
	vm1, out1 := newVM(t)
	vm2, out2 := newVM(t)

	vm1.Interpret(`var name = "first";`)
	vm2.Interpret(`var name = "second";`)
	vm1.Heap().Collect()
	vm2.Heap().Collect()

	vm1.Interpret(`print name;`)
	vm2.Interpret(`print name;`)
	if out1.String() != "first\n" || out2.String() != "second\n" {
		t.Errorf("outputs = %q, %q", out1.String(), out2.String())
	}
}

func TestMultiVM_Concurrent(t *testing.T) {
	const workers = 4
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg := vm.DefaultConfig()
			cfg.GC.Stress = true
			v := vm.NewVMWithConfig(cfg)
			defer v.Free()
			v.UseCompiler(compiler.Compile)
			var out bytes.Buffer
			v.SetOutput(&out)
			_, errs[i] = v.Interpret(fmt.Sprintf(`
fun sum(n) { var total = 0; for (var i = 1; i <= n; i = i + 1) total = total + i; return total; }
print "worker" + " %d";
print sum(%d);
`, i, 10*(i+1)))
			results[i] = out.String()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d: %v", i, errs[i])
			continue
		}
		n := 10 * (i + 1)
		want := fmt.Sprintf("worker %d\n%d\n", i, n*(n+1)/2)
		if results[i] != want {
			t.Errorf("worker %d output = %q, want %q", i, results[i], want)
		}
	}
}
