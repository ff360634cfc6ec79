package vm

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: The coxy virtual machine
// ---------------------------------------------------------------------------

const (
	// DefaultMaxFrames is the call depth at which calls overflow.
	DefaultMaxFrames = 64
	// SlotsPerFrame is the value-stack allowance per frame; a function can
	// address at most this many locals.
	SlotsPerFrame = 256
)

// Config holds the tunables of one VM instance.
type Config struct {
	MaxFrames int
	GC        GCConfig

	// Trace logs every instruction with the stack before it executes.
	Trace bool
	// PrintCode logs the disassembly of every compiled function.
	PrintCode bool
}

// DefaultConfig returns the configuration NewVM uses.
func DefaultConfig() Config {
	return Config{
		MaxFrames: DefaultMaxFrames,
		GC: GCConfig{
			InitialThreshold: DefaultInitialThreshold,
			GrowFactor:       DefaultGrowFactor,
		},
	}
}

// CallFrame is the execution state of one function invocation.
type CallFrame struct {
	closure *ObjClosure
	ip      int // offset of the next instruction in closure's chunk
	slots   int // stack index of the frame's slot zero (the callee)
}

// VM owns a value stack, call frames, globals and a heap. Instances share
// nothing; a VM must only be used from one goroutine at a time.
type VM struct {
	id   string
	cfg  Config
	heap *Heap

	frames     []CallFrame
	frameCount int
	stack      []Value
	sp         int // next free stack slot

	globals      Table
	openUpvalues *ObjUpvalue // sorted by descending stack slot
	initString   *ObjString

	compilerBackend CompilerBackend

	out     io.Writer
	started time.Time
	log     commonlog.Logger
	trace   commonlog.Logger
}

// NewVM creates a VM with the default configuration.
func NewVM() *VM {
	return NewVMWithConfig(DefaultConfig())
}

// NewVMWithConfig creates a VM with its own heap, stacks and globals.
func NewVMWithConfig(cfg Config) *VM {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = DefaultMaxFrames
	}

	vm := &VM{
		id:      uuid.NewString(),
		cfg:     cfg,
		heap:    NewHeap(cfg.GC),
		frames:  make([]CallFrame, cfg.MaxFrames),
		stack:   make([]Value, cfg.MaxFrames*SlotsPerFrame),
		out:     os.Stdout,
		started: time.Now(),
		log:     commonlog.GetLogger("coxy.vm"),
		trace:   commonlog.GetLogger("coxy.trace"),
	}
	vm.heap.owner = vm.id[:8]
	vm.globals.mem = vm.heap
	vm.heap.AddRoots(vm)

	vm.initString = vm.heap.InternString("init")
	vm.defineNatives()
	return vm
}

// Free releases every resource the VM owns. The VM must not be used
// afterwards.
func (vm *VM) Free() {
	vm.resetStack()
	vm.globals.Free()
	vm.initString = nil
	vm.heap.Free()
}

// ID returns the VM's instance id.
func (vm *VM) ID() string {
	return vm.id
}

// Heap returns the VM's heap.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// Config returns the VM's configuration.
func (vm *VM) Config() Config {
	return vm.cfg
}

// SetOutput redirects the print statement.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// ---------------------------------------------------------------------------
// Host API
// ---------------------------------------------------------------------------

// Interpret compiles and runs source. The result names the phase that
// failed; the error carries the diagnostics.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	fn, err := vm.Compile(source)
	if err != nil {
		return InterpretCompileError, err
	}
	if err := vm.Run(fn); err != nil {
		return InterpretRuntimeError, err
	}
	return InterpretOK, nil
}

// Compile compiles source into a top-level function in the VM's heap
// without running it.
func (vm *VM) Compile(source string) (*ObjFunction, error) {
	if vm.compilerBackend == nil {
		return nil, ErrNoCompiler
	}
	fn, err := vm.compilerBackend.Compile(vm.heap, source)
	if err != nil {
		return nil, err
	}
	if vm.cfg.PrintCode {
		vm.printCode(fn)
	}
	return fn, nil
}

// Run executes a compiled top-level function to completion.
func (vm *VM) Run(fn *ObjFunction) error {
	vm.Push(fn.Value())
	closure := vm.heap.NewClosure(fn)
	vm.Pop()
	vm.Push(closure.Value())
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// Push pushes v on the value stack. It panics with ErrStackOverflow when
// the stack is full.
func (vm *VM) Push(v Value) {
	vm.push(v)
}

// Pop removes and returns the top of the value stack. It panics on an empty
// stack.
func (vm *VM) Pop() Value {
	if vm.sp == 0 {
		panic("vm: stack underflow")
	}
	return vm.pop()
}

// StackDepth returns the number of values on the stack.
func (vm *VM) StackDepth() int {
	return vm.sp
}

// GetGlobal returns the global named name.
func (vm *VM) GetGlobal(name string) (Value, bool) {
	return vm.globals.Get(vm.heap.InternString(name))
}

// SetGlobal defines or overwrites the global named name.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.Set(vm.heap.InternString(name), v)
}

// Format renders v the way print does.
func (vm *VM) Format(v Value) string {
	return vm.heap.Format(v)
}

// MarkRoots marks the VM's roots: the value stack, every active frame's
// closure, the globals, open upvalues, and the interned "init" name.
func (vm *VM) MarkRoots(h *Heap) {
	for i := 0; i < vm.sp; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(uv)
	}
	h.MarkTable(&vm.globals)
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		panic(ErrStackOverflow)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}
