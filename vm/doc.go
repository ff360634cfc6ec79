// Package vm implements the coxy virtual machine.
//
// This package contains:
//   - NaN-boxed value representation
//   - Handle-addressed object heap with string interning
//   - Bytecode chunks, opcodes and the disassembler
//   - Mark-and-sweep garbage collector
//   - Bytecode interpreter and native functions
//
// The compiler lives in package compiler and is installed with
// UseCompiler, so this package has no dependency on the front end.
package vm
