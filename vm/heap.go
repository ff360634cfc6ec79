package vm

import (
	"fmt"
	"unsafe"

	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Heap: arena of garbage-collected objects
// ---------------------------------------------------------------------------

// slot is one arena cell. A nil obj marks a free slot.
type slot struct {
	obj    Object
	marked bool
}

var slotSize = int(unsafe.Sizeof(slot{}))

// RootMarker is implemented by anything that holds references the collector
// must treat as live: the VM, and the compiler while it builds functions.
type RootMarker interface {
	MarkRoots(h *Heap)
}

// Heap owns every object of one VM. All growth and release of objects,
// chunks and tables is reported to it so it can decide when to collect.
// A Heap is not safe for concurrent use.
type Heap struct {
	slots []slot // index 0 is the null Ref
	free  []Ref

	strings Table // intern table, weak

	roots     []RootMarker
	tempRoots []Value

	cfg            GCConfig
	phase          GCPhase
	gray           []Ref
	pending        bool
	bytesAllocated int
	nextGC         int
	liveObjects    int
	stats          GCStats

	owner string
	log   commonlog.Logger
}

// NewHeap creates an empty heap with the given collector settings.
func NewHeap(cfg GCConfig) *Heap {
	cfg = cfg.withDefaults()
	h := &Heap{
		slots:  make([]slot, 1, 64),
		cfg:    cfg,
		nextGC: cfg.InitialThreshold,
		log:    commonlog.GetLogger("coxy.gc"),
	}
	h.strings.mem = h
	h.bytesAllocated = cap(h.slots) * slotSize
	return h
}

// reallocate is the single accounting primitive for heap traffic. Growth
// past the threshold schedules a collection for the next safepoint; it
// never collects directly.
func (h *Heap) reallocate(oldSize, newSize int) {
	h.bytesAllocated += newSize - oldSize
	if newSize > oldSize && h.phase == GCIdle && h.bytesAllocated > h.nextGC {
		h.pending = true
	}
}

// register places a new object in the arena and accounts for it.
func (h *Heap) register(o Object) {
	var r Ref
	if n := len(h.free); n > 0 {
		r = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		if len(h.slots) == cap(h.slots) {
			oldCap := cap(h.slots)
			slots := make([]slot, len(h.slots), growCapacity(oldCap))
			copy(slots, h.slots)
			h.slots = slots
			h.reallocate(oldCap*slotSize, cap(slots)*slotSize)
		}
		h.slots = append(h.slots, slot{})
		r = Ref(len(h.slots) - 1)
	}

	o.setRef(r)
	h.slots[r] = slot{obj: o}
	h.liveObjects++
	h.reallocate(0, o.size())

	// Objects born during marking survive the cycle.
	if h.phase == GCMarking {
		h.markRef(r)
	}
	if h.cfg.Stress {
		h.pending = true
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// hashString computes the hash cached in every ObjString.
func hashString(chars string) uint32 {
	return uint32(xxh3.HashString(chars))
}

// InternString returns the unique string object with the given contents,
// allocating it only if no equal string is interned yet.
func (h *Heap) InternString(chars string) *ObjString {
	hash := hashString(chars)
	if interned := h.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := &ObjString{Chars: chars, Hash: hash}
	h.register(s)
	h.strings.Set(s, Nil)
	return s
}

// NewFunction allocates an empty function whose chunk reports to this heap.
func (h *Heap) NewFunction() *ObjFunction {
	f := &ObjFunction{}
	f.Chunk.mem = h
	h.register(f)
	return f
}

// NewNative allocates a native function object.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Arity: arity, Fn: fn}
	h.register(n)
	return n
}

// NewClosure allocates a closure over fn with room for its upvalues.
func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Function: fn,
		Upvalues: make([]*ObjUpvalue, fn.UpvalueCount),
	}
	h.register(c)
	return c
}

// NewUpvalue allocates an open upvalue aliasing a stack slot.
func (h *Heap) NewUpvalue(stackSlot int) *ObjUpvalue {
	u := &ObjUpvalue{Slot: stackSlot, Closed: Nil, IsOpen: true}
	h.register(u)
	return u
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name}
	c.Methods.mem = h
	h.register(c)
	return c
}

// NewInstance allocates an instance of class with no fields.
func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class}
	i.Fields.mem = h
	h.register(i)
	return i
}

// NewBoundMethod allocates a method bound to its receiver.
func (h *Heap) NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	h.register(b)
	return b
}

// ---------------------------------------------------------------------------
// Access
// ---------------------------------------------------------------------------

// Get returns the object for r, or nil if r is free.
func (h *Heap) Get(r Ref) Object {
	if r == 0 || int(r) >= len(h.slots) {
		return nil
	}
	return h.slots[r].obj
}

// Object returns the object v references, or nil if v is not an object.
func (h *Heap) Object(v Value) Object {
	if !v.IsObject() {
		return nil
	}
	return h.slots[v.AsRef()].obj
}

// KindOf returns the object kind v references, or 0 for non-objects.
func (h *Heap) KindOf(v Value) ObjKind {
	if o := h.Object(v); o != nil {
		return o.Kind()
	}
	return 0
}

// String returns the string object v references.
func (h *Heap) String(v Value) (*ObjString, bool) {
	s, ok := h.Object(v).(*ObjString)
	return s, ok
}

// Closure returns the closure object v references.
func (h *Heap) Closure(v Value) (*ObjClosure, bool) {
	c, ok := h.Object(v).(*ObjClosure)
	return c, ok
}

// Function returns the function object v references.
func (h *Heap) Function(v Value) (*ObjFunction, bool) {
	f, ok := h.Object(v).(*ObjFunction)
	return f, ok
}

// Instance returns the instance object v references.
func (h *Heap) Instance(v Value) (*ObjInstance, bool) {
	i, ok := h.Object(v).(*ObjInstance)
	return i, ok
}

// Class returns the class object v references.
func (h *Heap) Class(v Value) (*ObjClass, bool) {
	c, ok := h.Object(v).(*ObjClass)
	return c, ok
}

// Strings returns the intern table.
func (h *Heap) Strings() *Table {
	return &h.strings
}

// LiveObjects returns the number of allocated objects.
func (h *Heap) LiveObjects() int {
	return h.liveObjects
}

// BytesAllocated returns the bytes currently accounted to the heap.
func (h *Heap) BytesAllocated() int {
	return h.bytesAllocated
}

// Each calls fn for every allocated object in arena order.
func (h *Heap) Each(fn func(o Object)) {
	for i := 1; i < len(h.slots); i++ {
		if o := h.slots[i].obj; o != nil {
			fn(o)
		}
	}
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// TypeName returns the language-level type name of v.
func (h *Heap) TypeName(v Value) string {
	if o := h.Object(v); o != nil {
		return o.Kind().String()
	}
	return v.TypeName()
}

// Format renders v the way the print statement shows it.
func (h *Heap) Format(v Value) string {
	switch {
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsNil():
		return "nil"
	}

	switch o := h.Object(v).(type) {
	case *ObjString:
		return o.Chars
	case *ObjFunction:
		return formatFunction(o)
	case *ObjNative:
		return "<native fn>"
	case *ObjClosure:
		return formatFunction(o.Function)
	case *ObjUpvalue:
		return "upvalue"
	case *ObjClass:
		return o.Name.Chars
	case *ObjInstance:
		return o.Class.Name.Chars + " instance"
	case *ObjBoundMethod:
		return formatFunction(o.Method.Function)
	case nil:
		return fmt.Sprintf("<freed object %d>", v.AsRef())
	default:
		return "<object>"
	}
}

func formatFunction(f *ObjFunction) string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}
