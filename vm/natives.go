package vm

import (
	"time"
)

// DefineNative binds a Go function to a global name. An arity of -1 accepts
// any number of arguments.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	native := vm.heap.NewNative(name, arity, fn)
	vm.globals.Set(vm.heap.InternString(name), native.asValue())
}

func (vm *VM) defineNatives() {
	vm.DefineNative("clock", 0, func(args []Value) (Value, error) {
		return Number(time.Since(vm.started).Seconds()), nil
	})
}
