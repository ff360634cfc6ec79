package vm

import (
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// Ref is a stable handle to an object in a Heap's arena. The zero Ref never
// names a live object.
type Ref uint32

// ObjKind tags the concrete type of a heap object.
type ObjKind uint8

const (
	KindString ObjKind = iota + 1
	KindUpvalue
	KindFunction
	KindNative
	KindClosure
	KindClass
	KindInstance
	KindBoundMethod
)

var kindNames = map[ObjKind]string{
	KindString:      "string",
	KindUpvalue:     "upvalue",
	KindFunction:    "function",
	KindNative:      "native",
	KindClosure:     "closure",
	KindClass:       "class",
	KindInstance:    "instance",
	KindBoundMethod: "bound method",
}

// String returns the kind's name.
func (k ObjKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Object is implemented by every heap-allocated value.
type Object interface {
	Kind() ObjKind
	Ref() Ref

	// size is the number of bytes the object accounts for in the heap.
	size() int
	// blacken grays every object this object references.
	blacken(h *Heap)
	setRef(r Ref)
}

// objHeader is embedded in every object and remembers its arena slot.
type objHeader struct {
	ref Ref
}

func (o *objHeader) Ref() Ref       { return o.ref }
func (o *objHeader) setRef(r Ref)   { o.ref = r }
func (o *objHeader) asValue() Value { return FromRef(o.ref) }

// ObjString is an immutable interned string.
type ObjString struct {
	objHeader
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return KindString }
func (s *ObjString) size() int     { return int(unsafe.Sizeof(*s)) + len(s.Chars) }
func (s *ObjString) blacken(*Heap) {}

// Value returns the string as a Value.
func (s *ObjString) Value() Value { return s.asValue() }

// ObjUpvalue is a captured variable cell. While open it aliases a VM stack
// slot; once closed it owns the value.
type ObjUpvalue struct {
	objHeader
	Slot   int   // stack index while open
	Closed Value // owned value once closed
	IsOpen bool

	// Next open upvalue, ordered by descending Slot.
	Next *ObjUpvalue
}

func (u *ObjUpvalue) Kind() ObjKind { return KindUpvalue }
func (u *ObjUpvalue) size() int     { return int(unsafe.Sizeof(*u)) }
func (u *ObjUpvalue) blacken(h *Heap) {
	if !u.IsOpen {
		h.MarkValue(u.Closed)
	}
}

// ObjFunction is a compiled function body.
type ObjFunction struct {
	objHeader
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *ObjString // nil for the top-level script
}

func (f *ObjFunction) Kind() ObjKind { return KindFunction }
func (f *ObjFunction) size() int     { return int(unsafe.Sizeof(*f)) }
func (f *ObjFunction) blacken(h *Heap) {
	if f.Name != nil {
		h.MarkObject(f.Name)
	}
	for _, c := range f.Chunk.Constants {
		h.MarkValue(c)
	}
}

// Value returns the function as a Value.
func (f *ObjFunction) Value() Value { return f.asValue() }

// DisplayName returns the function's name, or "script" for top-level code.
func (f *ObjFunction) DisplayName() string {
	if f.Name == nil {
		return "script"
	}
	return f.Name.Chars
}

// NativeFn is the Go signature of a built-in function.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a Go function callable from scripts.
type ObjNative struct {
	objHeader
	Name  string
	Arity int // -1 accepts any argument count
	Fn    NativeFn
}

func (n *ObjNative) Kind() ObjKind { return KindNative }
func (n *ObjNative) size() int     { return int(unsafe.Sizeof(*n)) }
func (n *ObjNative) blacken(*Heap) {}

// ObjClosure pairs a function with the upvalues it captured.
type ObjClosure struct {
	objHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind { return KindClosure }
func (c *ObjClosure) size() int {
	return int(unsafe.Sizeof(*c)) + cap(c.Upvalues)*int(unsafe.Sizeof((*ObjUpvalue)(nil)))
}
func (c *ObjClosure) blacken(h *Heap) {
	h.MarkObject(c.Function)
	for _, uv := range c.Upvalues {
		if uv != nil {
			h.MarkObject(uv)
		}
	}
}

// Value returns the closure as a Value.
func (c *ObjClosure) Value() Value { return c.asValue() }

// ObjClass is a class with its method table.
type ObjClass struct {
	objHeader
	Name    *ObjString
	Methods Table
}

func (c *ObjClass) Kind() ObjKind { return KindClass }
func (c *ObjClass) size() int     { return int(unsafe.Sizeof(*c)) }
func (c *ObjClass) blacken(h *Heap) {
	h.MarkObject(c.Name)
	h.MarkTable(&c.Methods)
}

// Value returns the class as a Value.
func (c *ObjClass) Value() Value { return c.asValue() }

// ObjInstance is an instance of a class with its own fields.
type ObjInstance struct {
	objHeader
	Class  *ObjClass
	Fields Table
}

func (i *ObjInstance) Kind() ObjKind { return KindInstance }
func (i *ObjInstance) size() int     { return int(unsafe.Sizeof(*i)) }
func (i *ObjInstance) blacken(h *Heap) {
	h.MarkObject(i.Class)
	h.MarkTable(&i.Fields)
}

// Value returns the instance as a Value.
func (i *ObjInstance) Value() Value { return i.asValue() }

// ObjBoundMethod is a method closure bound to its receiver.
type ObjBoundMethod struct {
	objHeader
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) Kind() ObjKind { return KindBoundMethod }
func (b *ObjBoundMethod) size() int     { return int(unsafe.Sizeof(*b)) }
func (b *ObjBoundMethod) blacken(h *Heap) {
	h.MarkValue(b.Receiver)
	h.MarkObject(b.Method)
}

// Value returns the bound method as a Value.
func (b *ObjBoundMethod) Value() Value { return b.asValue() }
