package vm

import (
	"errors"
	"fmt"
	"strings"
)

// InterpretResult reports which phase of Interpret failed, if any.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// String returns a human-readable name for the result.
func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretCompileError:
		return "compile error"
	case InterpretRuntimeError:
		return "runtime error"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

var (
	// ErrStackOverflow is the cause of a RuntimeError raised when the frame
	// or value stack is exhausted.
	ErrStackOverflow = errors.New("stack overflow")

	// ErrNoCompiler is returned when source is interpreted before a compiler
	// was installed with UseCompiler.
	ErrNoCompiler = errors.New("vm: no compiler installed")
)

// TraceLine is one entry of a runtime error's call trace, innermost first.
type TraceLine struct {
	Line     int
	Function string // "" for the top-level script
}

// String renders the entry as "[line N] in name()" or "[line N] in script".
func (t TraceLine) String() string {
	if t.Function == "" {
		return fmt.Sprintf("[line %d] in script", t.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", t.Line, t.Function)
}

// RuntimeError is a failure raised while executing bytecode.
type RuntimeError struct {
	Message string
	Trace   []TraceLine

	cause error
}

// Error returns the message followed by the call trace, one entry per line.
func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, t := range e.Trace {
		sb.WriteByte('\n')
		sb.WriteString(t.String())
	}
	return sb.String()
}

// Line returns the source line of the failing instruction.
func (e *RuntimeError) Line() int {
	if len(e.Trace) == 0 {
		return 0
	}
	return e.Trace[0].Line
}

// Unwrap returns the underlying cause, such as ErrStackOverflow or an error
// returned by a native function.
func (e *RuntimeError) Unwrap() error {
	return e.cause
}
