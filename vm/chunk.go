package vm

import (
	"unsafe"
)

// MaxShortConstant is the largest constant index OpConstant can encode.
// Pools beyond it are loaded with OpConstantLong.
const MaxShortConstant = 255

// MaxLongConstant is the largest constant index OpConstantLong can encode.
const MaxLongConstant = 1<<24 - 1

// allocator is the accounting hook every growable buffer reports to.
type allocator interface {
	reallocate(oldSize, newSize int)
}

// growCapacity returns the next capacity for a growable buffer.
func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

var (
	valueSize = int(unsafe.Sizeof(Value(0)))
	lineSize  = int(unsafe.Sizeof(int(0)))
)

// Chunk is a compiled unit of bytecode: instruction bytes, the source line
// of every byte, and the constant pool the instructions index into.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []Value

	mem allocator
}

// Write appends one byte of code recorded against a source line.
func (c *Chunk) Write(b byte, line int) {
	if len(c.Code) == cap(c.Code) {
		oldCap := cap(c.Code)
		newCap := growCapacity(oldCap)
		code := make([]byte, len(c.Code), newCap)
		copy(code, c.Code)
		lines := make([]int, len(c.Lines), newCap)
		copy(lines, c.Lines)
		c.Code, c.Lines = code, lines
		c.account(oldCap*(1+lineSize), newCap*(1+lineSize))
	}
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends a value to the constant pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	if len(c.Constants) == cap(c.Constants) {
		oldCap := cap(c.Constants)
		newCap := growCapacity(oldCap)
		constants := make([]Value, len(c.Constants), newCap)
		copy(constants, c.Constants)
		c.Constants = constants
		c.account(oldCap*valueSize, newCap*valueSize)
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// WriteConstant adds v to the pool and emits the instruction that loads it,
// choosing the long form once the index no longer fits a byte. It returns
// the constant index, or -1 if the pool is full.
func (c *Chunk) WriteConstant(v Value, line int) int {
	idx := c.AddConstant(v)
	switch {
	case idx <= MaxShortConstant:
		c.WriteOp(OpConstant, line)
		c.Write(byte(idx), line)
	case idx <= MaxLongConstant:
		c.WriteOp(OpConstantLong, line)
		c.Write(byte(idx>>16), line)
		c.Write(byte(idx>>8), line)
		c.Write(byte(idx), line)
	default:
		return -1
	}
	return idx
}

// Line returns the source line of the instruction starting at offset.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// Len returns the number of code bytes.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Free releases the chunk's backing storage.
func (c *Chunk) Free() {
	c.account(c.footprint(), 0)
	c.Code = nil
	c.Lines = nil
	c.Constants = nil
}

// footprint is the number of bytes the chunk currently accounts for.
func (c *Chunk) footprint() int {
	return cap(c.Code)*(1+lineSize) + cap(c.Constants)*valueSize
}

func (c *Chunk) account(oldSize, newSize int) {
	if c.mem != nil {
		c.mem.reallocate(oldSize, newSize)
	}
}

// readUint24 decodes the big-endian operand of OpConstantLong.
func readUint24(code []byte, offset int) int {
	return int(code[offset])<<16 | int(code[offset+1])<<8 | int(code[offset+2])
}
