package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// run executes instructions until the top-level frame returns or an error
// is raised. Collections happen only at the top of the loop, between
// instructions, where every live object is reachable from the roots.
func (vm *VM) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == ErrStackOverflow {
				err = vm.runtimeErrorCause(ErrStackOverflow, "Stack overflow.")
				return
			}
			panic(r)
		}
	}()

	frame := &vm.frames[vm.frameCount-1]
	code := frame.closure.Function.Chunk.Code
	constants := frame.closure.Function.Chunk.Constants

	for {
		vm.heap.Safepoint()

		if vm.cfg.Trace {
			vm.traceInstruction(frame)
		}

		op := Opcode(code[frame.ip])
		frame.ip++

		switch op {
		// ============ Constants ============
		case OpConstant:
			vm.push(constants[code[frame.ip]])
			frame.ip++

		case OpConstantLong:
			vm.push(constants[readUint24(code, frame.ip)])
			frame.ip += 3

		case OpNil:
			vm.push(Nil)

		case OpTrue:
			vm.push(True)

		case OpFalse:
			vm.push(False)

		// ============ Variables ============
		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := int(code[frame.ip])
			frame.ip++
			vm.push(vm.stack[frame.slots+slot])

		case OpSetLocal:
			slot := int(code[frame.ip])
			frame.ip++
			vm.stack[frame.slots+slot] = vm.peek(0)

		case OpGetGlobal:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)

		case OpDefineGlobal:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpSetGlobal:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case OpGetUpvalue:
			uv := frame.closure.Upvalues[code[frame.ip]]
			frame.ip++
			if uv.IsOpen {
				vm.push(vm.stack[uv.Slot])
			} else {
				vm.push(uv.Closed)
			}

		case OpSetUpvalue:
			uv := frame.closure.Upvalues[code[frame.ip]]
			frame.ip++
			if uv.IsOpen {
				vm.stack[uv.Slot] = vm.peek(0)
			} else {
				uv.Closed = vm.peek(0)
			}

		case OpGetProperty:
			instance, ok := vm.heap.Instance(vm.peek(0))
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			if value, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(value)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}

		case OpSetProperty:
			instance, ok := vm.heap.Instance(vm.peek(1))
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			instance.Fields.Set(name, vm.peek(0))
			value := vm.pop()
			vm.pop()
			vm.push(value)

		case OpGetSuper:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			superclass, _ := vm.heap.Class(vm.pop())
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		// ============ Comparison ============
		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(Equal(a, b)))

		case OpGreater:
			if err := vm.checkNumbers(); err != nil {
				return err
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(Bool(a > b))

		case OpLess:
			if err := vm.checkNumbers(); err != nil {
				return err
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(Bool(a < b))

		// ============ Arithmetic ============
		case OpAdd:
			b, a := vm.peek(0), vm.peek(1)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				vm.push(Number(a.AsNumber() + b.AsNumber()))
			case vm.heap.KindOf(a) == KindString && vm.heap.KindOf(b) == KindString:
				vm.concatenate()
			default:
				return vm.runtimeError("Operands must be two numbers or two strings (got %s and %s).",
					vm.heap.TypeName(a), vm.heap.TypeName(b))
			}

		case OpSubtract:
			if err := vm.checkNumbers(); err != nil {
				return err
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(Number(a - b))

		case OpMultiply:
			if err := vm.checkNumbers(); err != nil {
				return err
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(Number(a * b))

		case OpDivide:
			if err := vm.checkNumbers(); err != nil {
				return err
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(Number(a / b))

		case OpNot:
			vm.push(Bool(IsFalsey(vm.pop())))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number (got %s).", vm.heap.TypeName(vm.peek(0)))
			}
			vm.push(Number(-vm.pop().AsNumber()))

		// ============ Statements and control flow ============
		case OpPrint:
			fmt.Fprintln(vm.out, vm.heap.Format(vm.pop()))

		case OpJump:
			offset := readUint16(code, frame.ip)
			frame.ip += 2 + offset

		case OpJumpIfFalse:
			offset := readUint16(code, frame.ip)
			frame.ip += 2
			if IsFalsey(vm.peek(0)) {
				frame.ip += offset
			}

		case OpLoop:
			offset := readUint16(code, frame.ip)
			frame.ip += 2 - offset

		// ============ Calls and closures ============
		case OpCall:
			argCount := int(code[frame.ip])
			frame.ip++
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code
			constants = frame.closure.Function.Chunk.Constants

		case OpInvoke:
			name := vm.constantString(constants, code[frame.ip])
			argCount := int(code[frame.ip+1])
			frame.ip += 2
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code
			constants = frame.closure.Function.Chunk.Constants

		case OpSuperInvoke:
			name := vm.constantString(constants, code[frame.ip])
			argCount := int(code[frame.ip+1])
			frame.ip += 2
			superclass, _ := vm.heap.Class(vm.pop())
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code
			constants = frame.closure.Function.Chunk.Constants

		case OpClosure:
			function, _ := vm.heap.Function(constants[code[frame.ip]])
			frame.ip++
			closure := vm.heap.NewClosure(function)
			vm.push(closure.Value())
			for i := range closure.Upvalues {
				isLocal := code[frame.ip] == 1
				index := int(code[frame.ip+1])
				frame.ip += 2
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.sp = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code
			constants = frame.closure.Function.Chunk.Constants

		// ============ Classes ============
		case OpClass:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			vm.push(vm.heap.NewClass(name).Value())

		case OpInherit:
			superclass, ok := vm.heap.Class(vm.peek(1))
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass, _ := vm.heap.Class(vm.peek(0))
			subclass.Methods.AddAll(&superclass.Methods)
			vm.pop()

		case OpMethod:
			name := vm.constantString(constants, code[frame.ip])
			frame.ip++
			vm.defineMethod(name)

		default:
			// Bytecode comes from the in-process compiler and is trusted.
			panic(fmt.Sprintf("vm: unknown opcode 0x%02X at offset %d", byte(op), frame.ip-1))
		}
	}
}

func readUint16(code []byte, offset int) int {
	return int(code[offset])<<8 | int(code[offset+1])
}

func (vm *VM) constantString(constants []Value, index byte) *ObjString {
	return vm.heap.slots[constants[index].AsRef()].obj.(*ObjString)
}

func (vm *VM) checkNumbers() error {
	a, b := vm.peek(1), vm.peek(0)
	if a.IsNumber() && b.IsNumber() {
		return nil
	}
	return vm.runtimeError("Operands must be numbers (got %s and %s).",
		vm.heap.TypeName(a), vm.heap.TypeName(b))
}

func (vm *VM) concatenate() {
	b, _ := vm.heap.String(vm.peek(0))
	a, _ := vm.heap.String(vm.peek(1))
	result := vm.heap.InternString(a.Chars + b.Chars)
	vm.pop()
	vm.pop()
	vm.push(result.Value())
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) callValue(callee Value, argCount int) error {
	switch obj := vm.heap.Object(callee).(type) {
	case *ObjBoundMethod:
		vm.stack[vm.sp-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)

	case *ObjClass:
		vm.stack[vm.sp-argCount-1] = vm.heap.NewInstance(obj).Value()
		if initializer, ok := obj.Methods.Get(vm.initString); ok {
			closure, _ := vm.heap.Closure(initializer)
			return vm.call(closure, argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil

	case *ObjClosure:
		return vm.call(obj, argCount)

	case *ObjNative:
		if obj.Arity >= 0 && argCount != obj.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argCount)
		}
		args := vm.stack[vm.sp-argCount : vm.sp]
		result, err := obj.Fn(args)
		if err != nil {
			return vm.runtimeErrorCause(err, "%s", err.Error())
		}
		vm.sp -= argCount + 1
		vm.push(result)
		return nil
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeErrorCause(ErrStackOverflow, "Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.sp - argCount - 1
	return nil
}

func (vm *VM) invoke(name *ObjString, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := vm.heap.Instance(receiver)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if value, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.sp-argCount-1] = value
		return vm.callValue(value, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	closure, _ := vm.heap.Closure(method)
	return vm.call(closure, argCount)
}

func (vm *VM) bindMethod(class *ObjClass, name *ObjString) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	closure, _ := vm.heap.Closure(method)
	bound := vm.heap.NewBoundMethod(vm.peek(0), closure)
	vm.pop()
	vm.push(bound.Value())
	return nil
}

func (vm *VM) defineMethod(name *ObjString) {
	method := vm.peek(0)
	class, _ := vm.heap.Class(vm.peek(1))
	class.Methods.Set(name, method)
	vm.pop()
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for a stack slot, creating it if
// no closure has captured that slot yet.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}

	created := vm.heap.NewUpvalue(slot)
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above last, copying the
// slot's value into the upvalue.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.Slot]
		uv.IsOpen = false
		vm.openUpvalues = uv.Next
		uv.Next = nil
	}
}

// ---------------------------------------------------------------------------
// Errors and tracing
// ---------------------------------------------------------------------------

func (vm *VM) runtimeError(format string, args ...any) error {
	return vm.runtimeErrorCause(nil, format, args...)
}

// runtimeErrorCause builds a RuntimeError with the current call trace and
// resets the stack so the VM can keep serving a REPL.
func (vm *VM) runtimeErrorCause(cause error, format string, args ...any) error {
	err := &RuntimeError{
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := TraceLine{Line: fn.Chunk.Line(frame.ip - 1)}
		if fn.Name != nil {
			line.Function = fn.Name.Chars
		}
		err.Trace = append(err.Trace, line)
	}
	vm.resetStack()
	return err
}

func (vm *VM) traceInstruction(frame *CallFrame) {
	var sb strings.Builder
	sb.WriteString("          ")
	for i := 0; i < vm.sp; i++ {
		sb.WriteString("[ ")
		sb.WriteString(vm.heap.Format(vm.stack[i]))
		sb.WriteString(" ]")
	}
	vm.trace.Info(sb.String())
	text, _ := DisassembleInstruction(vm.heap, &frame.closure.Function.Chunk, frame.ip)
	vm.trace.Info(text)
}

func (vm *VM) printCode(fn *ObjFunction) {
	vm.log.Info(DisassembleProgram(vm.heap, fn))
}
