package vm

import (
	"testing"
)

// rootSet is a RootMarker over a fixed list of values.
type rootSet struct {
	values []Value
	onMark func(h *Heap)
}

func (r *rootSet) MarkRoots(h *Heap) {
	for _, v := range r.values {
		h.MarkValue(v)
	}
	if r.onMark != nil {
		r.onMark(h)
	}
}

func newTestHeap() (*Heap, *rootSet) {
	h := NewHeap(GCConfig{})
	roots := &rootSet{}
	h.AddRoots(roots)
	return h, roots
}

func TestCollect_FreesUnreachable(t *testing.T) {
	h, roots := newTestHeap()
	kept := h.InternString("kept")
	h.InternString("garbage")
	h.NewFunction()
	roots.values = append(roots.values, kept.Value())

	if h.LiveObjects() != 3 {
		t.Fatalf("LiveObjects = %d, want 3", h.LiveObjects())
	}
	h.Collect()

	if h.LiveObjects() != 1 {
		t.Errorf("LiveObjects = %d after collect, want 1", h.LiveObjects())
	}
	if h.Get(kept.Ref()) != kept {
		t.Error("rooted string was freed")
	}
	stats := h.Stats()
	if stats.Cycles != 1 || stats.ObjectsFreed != 2 {
		t.Errorf("stats = %+v, want 1 cycle and 2 objects freed", stats)
	}
	if h.Phase() != GCIdle {
		t.Errorf("Phase = %s after collect, want idle", h.Phase())
	}
}

func TestCollect_ReusesFreedSlots(t *testing.T) {
	h, _ := newTestHeap()
	s := h.InternString("short-lived")
	ref := s.Ref()
	h.Collect()

	if h.Get(ref) != nil {
		t.Fatal("slot still occupied after collect")
	}
	again := h.InternString("reborn")
	if again.Ref() != ref {
		t.Errorf("new object got ref %d, want reused ref %d", again.Ref(), ref)
	}
}

func TestCollect_TracesReferences(t *testing.T) {
	h, roots := newTestHeap()

	fn := h.NewFunction()
	fn.Name = h.InternString("f")
	fn.Chunk.AddConstant(h.InternString("constant").Value())
	fn.UpvalueCount = 1
	closure := h.NewClosure(fn)
	upvalue := h.NewUpvalue(0)
	upvalue.Closed = h.InternString("captured").Value()
	upvalue.IsOpen = false
	closure.Upvalues[0] = upvalue

	class := h.NewClass(h.InternString("Point"))
	class.Methods.Set(h.InternString("init"), closure.Value())
	instance := h.NewInstance(class)
	instance.Fields.Set(h.InternString("x"), h.InternString("field").Value())
	bound := h.NewBoundMethod(instance.Value(), closure)

	roots.values = []Value{bound.Value()}
	live := h.LiveObjects()
	h.Collect()

	if h.LiveObjects() != live {
		t.Errorf("LiveObjects = %d, want %d: something reachable was freed", h.LiveObjects(), live)
	}
	for _, chars := range []string{"f", "constant", "captured", "Point", "init", "x", "field"} {
		if h.Strings().FindString(chars, hashString(chars)) == nil {
			t.Errorf("reachable string %q dropped from intern table", chars)
		}
	}

	roots.values = nil
	h.Collect()
	if h.LiveObjects() != 0 {
		t.Errorf("LiveObjects = %d with no roots, want 0", h.LiveObjects())
	}
}

func TestCollect_RemovesDeadInternedStrings(t *testing.T) {
	h, _ := newTestHeap()
	h.InternString("tmp")
	if h.Strings().Len() != 1 {
		t.Fatalf("intern table Len = %d, want 1", h.Strings().Len())
	}

	h.Collect()

	if h.Strings().Len() != 0 {
		t.Errorf("intern table Len = %d after collect, want 0", h.Strings().Len())
	}
	if h.Strings().FindString("tmp", hashString("tmp")) != nil {
		t.Error("dead string still findable")
	}

	// Interning again must create a fresh, usable object.
	s := h.InternString("tmp")
	if h.Get(s.Ref()) != s {
		t.Error("re-interned string not registered")
	}
}

func TestCollect_InternedIdentity(t *testing.T) {
	h, roots := newTestHeap()
	a := h.InternString("same")
	roots.values = []Value{a.Value()}
	h.Collect()

	if b := h.InternString("same"); b != a {
		t.Error("interning after a collection returned a different object")
	}
}

func TestCollect_NestedCallIsIgnored(t *testing.T) {
	h, roots := newTestHeap()
	nested := 0
	roots.onMark = func(h *Heap) {
		nested++
		if h.Phase() != GCMarking {
			t.Errorf("Phase during marking = %s", h.Phase())
		}
		h.Collect()
	}

	h.Collect()

	if nested != 1 {
		t.Errorf("roots marked %d times, want 1", nested)
	}
	if h.Stats().Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", h.Stats().Cycles)
	}
}

func TestCollect_AllocationDuringMarkingSurvives(t *testing.T) {
	h, roots := newTestHeap()
	var born *ObjString
	roots.onMark = func(h *Heap) {
		if born == nil {
			born = h.InternString("born during mark")
		}
	}

	h.Collect()

	if born == nil || h.Get(born.Ref()) != born {
		t.Error("object allocated during marking was swept")
	}
}

func TestTempRoots(t *testing.T) {
	h, _ := newTestHeap()
	s := h.InternString("temp")
	h.PushRoot(s.Value())
	h.Collect()
	if h.Get(s.Ref()) != s {
		t.Fatal("temp-rooted string was freed")
	}
	h.PopRoot()
	h.Collect()
	if h.LiveObjects() != 0 {
		t.Errorf("LiveObjects = %d after PopRoot, want 0", h.LiveObjects())
	}
}

func TestRemoveRoots(t *testing.T) {
	h, roots := newTestHeap()
	roots.values = []Value{h.InternString("rooted").Value()}
	h.RemoveRoots(roots)
	h.Collect()
	if h.LiveObjects() != 0 {
		t.Errorf("LiveObjects = %d after RemoveRoots, want 0", h.LiveObjects())
	}
}

// ---------------------------------------------------------------------------
// Scheduling
// ---------------------------------------------------------------------------

func TestSafepoint_CollectsOnlyWhenDue(t *testing.T) {
	h := NewHeap(GCConfig{InitialThreshold: 1 << 30})
	h.InternString("a")
	h.Safepoint()
	if h.Stats().Cycles != 0 {
		t.Error("collected below the threshold")
	}

	h.nextGC = 0
	h.InternString("b")
	if !h.pending {
		t.Fatal("growth past the threshold did not schedule a collection")
	}
	if h.Stats().Cycles != 0 {
		t.Fatal("allocation collected directly instead of at a safepoint")
	}
	h.Safepoint()
	if h.Stats().Cycles != 1 {
		t.Errorf("Cycles = %d after safepoint, want 1", h.Stats().Cycles)
	}
	if h.pending {
		t.Error("pending still set after collecting")
	}
}

func TestCollect_NextThreshold(t *testing.T) {
	h := NewHeap(GCConfig{InitialThreshold: 64, GrowFactor: 3})
	h.Collect()
	want := int(float64(h.BytesAllocated()) * 3)
	if want < 64 {
		want = 64
	}
	if h.NextGC() != want {
		t.Errorf("NextGC = %d, want %d", h.NextGC(), want)
	}

	big := NewHeap(GCConfig{InitialThreshold: 1 << 20})
	big.Collect()
	if big.NextGC() != 1<<20 {
		t.Errorf("NextGC = %d, want the initial threshold as a floor", big.NextGC())
	}
}

func TestStressMode(t *testing.T) {
	h := NewHeap(GCConfig{Stress: true})
	h.Safepoint()
	h.Safepoint()
	if h.Stats().Cycles != 2 {
		t.Errorf("Cycles = %d, want a collection at every safepoint", h.Stats().Cycles)
	}
}

func TestGCConfigDefaults(t *testing.T) {
	cfg := GCConfig{GrowFactor: 0.5}.withDefaults()
	if cfg.InitialThreshold != DefaultInitialThreshold {
		t.Errorf("InitialThreshold = %d, want %d", cfg.InitialThreshold, DefaultInitialThreshold)
	}
	if cfg.GrowFactor != DefaultGrowFactor {
		t.Errorf("GrowFactor = %g, want %g", cfg.GrowFactor, DefaultGrowFactor)
	}
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestHeapFree(t *testing.T) {
	h, roots := newTestHeap()
	fn := h.NewFunction()
	fn.Chunk.WriteConstant(h.InternString("x").Value(), 1)
	roots.values = []Value{fn.Value()}

	h.Free()

	if h.LiveObjects() != 0 {
		t.Errorf("LiveObjects = %d after Free, want 0", h.LiveObjects())
	}
	if h.Strings().Len() != 0 {
		t.Errorf("intern table Len = %d after Free, want 0", h.Strings().Len())
	}
}

func TestFreeObject_DoubleFreePanics(t *testing.T) {
	h, _ := newTestHeap()
	s := h.InternString("once")
	h.freeObject(s.Ref())

	defer func() {
		if recover() == nil {
			t.Error("second free did not panic")
		}
	}()
	h.freeObject(s.Ref())
}

func TestGCPhaseString(t *testing.T) {
	if GCIdle.String() != "idle" || GCMarking.String() != "marking" || GCSweeping.String() != "sweeping" {
		t.Error("phase names wrong")
	}
}

func TestObjectValues_ResolveToSameObject(t *testing.T) {
	h, _ := newTestHeap()
	class := h.NewClass(h.InternString("Point"))
	instance := h.NewInstance(class)
	closure := h.NewClosure(h.NewFunction())
	bound := h.NewBoundMethod(instance.Value(), closure)

	tests := []struct {
		name string
		obj  Object
		v    Value
		kind ObjKind
	}{
		{"class", class, class.Value(), KindClass},
		{"instance", instance, instance.Value(), KindInstance},
		{"bound method", bound, bound.Value(), KindBoundMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.v.IsObject() {
				t.Fatalf("Value() = %v, want an object value", tt.v)
			}
			if got := h.Object(tt.v); got != tt.obj {
				t.Errorf("Object(Value()) = %v, want %v", got, tt.obj)
			}
			if tt.obj.Kind() != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.obj.Kind(), tt.kind)
			}
		})
	}

	if got := h.Format(class.Value()); got != "Point" {
		t.Errorf("Format(class) = %q, want %q", got, "Point")
	}
	if got := h.Format(instance.Value()); got != "Point instance" {
		t.Errorf("Format(instance) = %q, want %q", got, "Point instance")
	}
}

func TestCollect_SurvivorsAreReachableSet(t *testing.T) {
	h, roots := newTestHeap()

	class := h.NewClass(h.InternString("Node"))
	instance := h.NewInstance(class)
	instance.Fields.Set(h.InternString("next"), h.NewInstance(class).Value())
	h.NewInstance(class)
	h.InternString("unreferenced")
	h.NewClosure(h.NewFunction())
	roots.values = []Value{instance.Value()}

	h.Collect()

	// The strings "Node" and "next", the class and both linked instances.
	counts := make(map[ObjKind]int)
	h.Each(func(o Object) {
		counts[o.Kind()]++
		if h.Get(o.Ref()) != o {
			t.Errorf("Each yielded %s at ref %d that Get does not return", o.Kind(), o.Ref())
		}
	})
	want := map[ObjKind]int{KindString: 2, KindClass: 1, KindInstance: 2}
	for kind, n := range want {
		if counts[kind] != n {
			t.Errorf("%s survivors = %d, want %d", kind, counts[kind], n)
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != h.LiveObjects() {
		t.Errorf("Each visited %d objects, LiveObjects = %d", total, h.LiveObjects())
	}
	if total != 5 {
		t.Errorf("survivors = %d, want 5", total)
	}
}
