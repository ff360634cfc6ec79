package vm

import (
	"fmt"
	"testing"
)

func newKey(chars string) *ObjString {
	return &ObjString{Chars: chars, Hash: hashString(chars)}
}

func TestTable_SetGet(t *testing.T) {
	var tbl Table
	a, b := newKey("a"), newKey("b")

	if !tbl.Set(a, Number(1)) {
		t.Error("Set of a new key should report true")
	}
	if tbl.Set(a, Number(2)) {
		t.Error("Set of an existing key should report false")
	}
	tbl.Set(b, True)

	if v, ok := tbl.Get(a); !ok || v != Number(2) {
		t.Errorf("Get(a) = %v, %v; want 2, true", v, ok)
	}
	if v, ok := tbl.Get(b); !ok || v != True {
		t.Errorf("Get(b) = %v, %v; want true, true", v, ok)
	}
	if _, ok := tbl.Get(newKey("a")); ok {
		t.Error("Get with an uninterned twin should miss: keys compare by identity")
	}
	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}
}

func TestTable_ZeroValueStored(t *testing.T) {
	var tbl Table
	k := newKey("zero")
	tbl.Set(k, Number(0))
	if v, ok := tbl.Get(k); !ok || v != Number(0) {
		t.Errorf("Get = %v, %v; want 0, true", v, ok)
	}
}

func TestTable_Delete(t *testing.T) {
	var tbl Table
	k := newKey("k")

	if tbl.Delete(k) {
		t.Error("Delete on an empty table should report false")
	}
	tbl.Set(k, Number(1))
	if !tbl.Delete(k) {
		t.Error("Delete of a present key should report true")
	}
	if _, ok := tbl.Get(k); ok {
		t.Error("Get after Delete should miss")
	}
	if tbl.Delete(k) {
		t.Error("second Delete should report false")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tbl.Len())
	}
}

// Keys sharing a hash probe past each other; deleting one must not hide
// the ones after it.
func TestTable_TombstonesKeepProbeChains(t *testing.T) {
	var tbl Table
	keys := []*ObjString{
		{Chars: "x", Hash: 7},
		{Chars: "y", Hash: 7},
		{Chars: "z", Hash: 7},
	}
	for i, k := range keys {
		tbl.Set(k, Number(float64(i)))
	}

	tbl.Delete(keys[0])
	if v, ok := tbl.Get(keys[2]); !ok || v != Number(2) {
		t.Errorf("Get(z) after deleting x = %v, %v; want 2, true", v, ok)
	}
	if got := tbl.FindString("y", 7); got != keys[1] {
		t.Errorf("FindString(y) = %v, want the y key", got)
	}

	// Reinserting reuses the tombstone without growing the load.
	countBefore := tbl.count
	if !tbl.Set(keys[0], Number(9)) {
		t.Error("reinsert should report a new key")
	}
	if tbl.count != countBefore {
		t.Errorf("count = %d after reusing a tombstone, want %d", tbl.count, countBefore)
	}
}

func TestTable_Grow(t *testing.T) {
	var tbl Table
	keys := make([]*ObjString, 100)
	for i := range keys {
		keys[i] = newKey(fmt.Sprintf("key%d", i))
		tbl.Set(keys[i], Number(float64(i)))
	}
	if tbl.Len() != 100 {
		t.Fatalf("Len = %d, want 100", tbl.Len())
	}
	if float64(tbl.count) > float64(len(tbl.entries))*tableMaxLoad {
		t.Errorf("load %d/%d exceeds max load", tbl.count, len(tbl.entries))
	}
	if n := len(tbl.entries); n&(n-1) != 0 {
		t.Errorf("capacity %d is not a power of two", n)
	}
	for i, k := range keys {
		if v, ok := tbl.Get(k); !ok || v != Number(float64(i)) {
			t.Errorf("Get(%s) = %v, %v", k.Chars, v, ok)
		}
	}
}

func TestTable_GrowDropsTombstones(t *testing.T) {
	var tbl Table
	for i := 0; i < 6; i++ {
		k := newKey(fmt.Sprintf("t%d", i))
		tbl.Set(k, Nil)
		tbl.Delete(k)
	}
	for i := 0; i < 20; i++ {
		tbl.Set(newKey(fmt.Sprintf("live%d", i)), Nil)
	}
	if tbl.count != tbl.live {
		t.Errorf("count %d != live %d after growth; tombstones should be dropped", tbl.count, tbl.live)
	}
}

func TestTable_AddAll(t *testing.T) {
	var from, to Table
	a, b := newKey("a"), newKey("b")
	from.Set(a, Number(1))
	from.Set(b, Number(2))
	to.Set(a, Number(100))

	to.AddAll(&from)
	if v, _ := to.Get(a); v != Number(1) {
		t.Errorf("Get(a) = %v, want 1 (overwritten)", v)
	}
	if v, _ := to.Get(b); v != Number(2) {
		t.Errorf("Get(b) = %v, want 2", v)
	}
}

func TestTable_FindString(t *testing.T) {
	var tbl Table
	if tbl.FindString("a", hashString("a")) != nil {
		t.Error("FindString on an empty table should return nil")
	}
	k := newKey("hello")
	tbl.Set(k, Nil)
	if got := tbl.FindString("hello", k.Hash); got != k {
		t.Errorf("FindString(hello) = %v, want %v", got, k)
	}
	if got := tbl.FindString("world", hashString("world")); got != nil {
		t.Errorf("FindString(world) = %v, want nil", got)
	}
}

func TestTable_Each(t *testing.T) {
	var tbl Table
	tbl.Set(newKey("a"), Number(1))
	tbl.Set(newKey("b"), Number(2))
	gone := newKey("c")
	tbl.Set(gone, Number(3))
	tbl.Delete(gone)

	sum := 0.0
	n := 0
	tbl.Each(func(_ *ObjString, v Value) {
		sum += v.AsNumber()
		n++
	})
	if n != 2 || sum != 3 {
		t.Errorf("Each visited %d entries summing %v, want 2 entries summing 3", n, sum)
	}
}

func TestTable_AccountsToHeap(t *testing.T) {
	h := NewHeap(GCConfig{})
	tbl := Table{mem: h}
	before := h.BytesAllocated()
	tbl.Set(h.InternString("k"), Nil)
	grown := h.BytesAllocated()
	if grown <= before {
		t.Errorf("BytesAllocated = %d after growth, want more than %d", grown, before)
	}
	tbl.Free()
	if got := h.BytesAllocated(); got != grown-8*entrySize {
		t.Errorf("BytesAllocated = %d after Free, want %d", got, grown-8*entrySize)
	}
}
