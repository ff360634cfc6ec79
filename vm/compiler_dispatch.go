package vm

// ---------------------------------------------------------------------------
// CompilerBackend: Interface for compilation backends
// ---------------------------------------------------------------------------

// CompilerBackend turns source text into a top-level function allocated in
// the given heap. The compiler lives in its own package, so the VM only
// knows it through this interface.
type CompilerBackend interface {
	// Compile compiles a whole script. The returned function has arity 0.
	Compile(h *Heap, source string) (*ObjFunction, error)

	// Name returns the name of this compiler backend.
	Name() string
}

// ---------------------------------------------------------------------------
// GoCompilerBackend: Uses the Go compiler package
// ---------------------------------------------------------------------------

// CompileFunc is the signature for compilation functions.
// This is used to inject the compiler without creating import cycles.
type CompileFunc func(h *Heap, source string) (*ObjFunction, error)

// GoCompilerBackend wraps the compiler/ package written in Go.
type GoCompilerBackend struct {
	compileFunc CompileFunc
}

// NewGoCompilerBackend creates a new Go compiler backend.
// The compileFunc parameter should be compiler.Compile from the compiler package.
func NewGoCompilerBackend(compileFunc CompileFunc) *GoCompilerBackend {
	return &GoCompilerBackend{compileFunc: compileFunc}
}

// Compile compiles a script using the Go compiler.
func (g *GoCompilerBackend) Compile(h *Heap, source string) (*ObjFunction, error) {
	return g.compileFunc(h, source)
}

// Name returns "go".
func (g *GoCompilerBackend) Name() string {
	return "go"
}

// UseCompiler installs compileFunc as the VM's compiler.
func (vm *VM) UseCompiler(compileFunc CompileFunc) {
	vm.compilerBackend = NewGoCompilerBackend(compileFunc)
}

// UseCompilerBackend installs an arbitrary compiler backend.
func (vm *VM) UseCompilerBackend(backend CompilerBackend) {
	vm.compilerBackend = backend
}

// CompilerName returns the installed backend's name, or "" if none.
func (vm *VM) CompilerName() string {
	if vm.compilerBackend == nil {
		return ""
	}
	return vm.compilerBackend.Name()
}
