package vm

import "fmt"

// Opcode represents a bytecode instruction.
type Opcode byte

const (
	// ========================================================================
	// Constants and literals
	// ========================================================================

	OpConstant     Opcode = iota // Push constant: OpConstant <index:u8>
	OpConstantLong               // Push constant: OpConstantLong <index:u24>
	OpNil                        // Push nil
	OpTrue                       // Push true
	OpFalse                      // Push false

	// ========================================================================
	// Stack and variables
	// ========================================================================

	OpPop          // Pop top of stack
	OpGetLocal     // Push local: OpGetLocal <slot:u8>
	OpSetLocal     // Store TOS to local (no pop): OpSetLocal <slot:u8>
	OpGetGlobal    // Push global: OpGetGlobal <name:u8>
	OpDefineGlobal // Pop into new global: OpDefineGlobal <name:u8>
	OpSetGlobal    // Store TOS to existing global: OpSetGlobal <name:u8>
	OpGetUpvalue   // Push upvalue: OpGetUpvalue <index:u8>
	OpSetUpvalue   // Store TOS to upvalue: OpSetUpvalue <index:u8>
	OpGetProperty  // Replace instance with property: OpGetProperty <name:u8>
	OpSetProperty  // instance value -> value: OpSetProperty <name:u8>
	OpGetSuper     // Bind superclass method: OpGetSuper <name:u8>

	// ========================================================================
	// Comparison and arithmetic
	// ========================================================================

	OpEqual    // Pop two, push a == b
	OpGreater  // Pop two, push a > b
	OpLess     // Pop two, push a < b
	OpAdd      // Pop two, push sum or concatenation
	OpSubtract // Pop two, push a - b
	OpMultiply // Pop two, push a * b
	OpDivide   // Pop two, push a / b
	OpNot      // Replace TOS with its falsiness
	OpNegate   // Negate numeric TOS

	// ========================================================================
	// Statements and control flow
	// ========================================================================

	OpPrint       // Pop and print
	OpJump        // Forward jump: OpJump <offset:u16>
	OpJumpIfFalse // Forward jump if TOS falsey (no pop): OpJumpIfFalse <offset:u16>
	OpLoop        // Backward jump: OpLoop <offset:u16>

	// ========================================================================
	// Calls and closures
	// ========================================================================

	OpCall         // Call callee below args: OpCall <argc:u8>
	OpInvoke       // Call method by name: OpInvoke <name:u8> <argc:u8>
	OpSuperInvoke  // Call superclass method: OpSuperInvoke <name:u8> <argc:u8>
	OpClosure      // Make closure: OpClosure <fn:u8> then <isLocal:u8 index:u8> per upvalue
	OpCloseUpvalue // Close upvalue for TOS slot, then pop
	OpReturn       // Return TOS from the current frame

	// ========================================================================
	// Classes
	// ========================================================================

	OpClass   // Push new class: OpClass <name:u8>
	OpInherit // Copy superclass methods into subclass
	OpMethod  // Bind closure on TOS as method of class below: OpMethod <name:u8>
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name       string // Human-readable name
	OperandLen int    // Fixed operand bytes following the opcode
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant:     {"OP_CONSTANT", 1},
	OpConstantLong: {"OP_CONSTANT_LONG", 3},
	OpNil:          {"OP_NIL", 0},
	OpTrue:         {"OP_TRUE", 0},
	OpFalse:        {"OP_FALSE", 0},

	OpPop:          {"OP_POP", 0},
	OpGetLocal:     {"OP_GET_LOCAL", 1},
	OpSetLocal:     {"OP_SET_LOCAL", 1},
	OpGetGlobal:    {"OP_GET_GLOBAL", 1},
	OpDefineGlobal: {"OP_DEFINE_GLOBAL", 1},
	OpSetGlobal:    {"OP_SET_GLOBAL", 1},
	OpGetUpvalue:   {"OP_GET_UPVALUE", 1},
	OpSetUpvalue:   {"OP_SET_UPVALUE", 1},
	OpGetProperty:  {"OP_GET_PROPERTY", 1},
	OpSetProperty:  {"OP_SET_PROPERTY", 1},
	OpGetSuper:     {"OP_GET_SUPER", 1},

	OpEqual:    {"OP_EQUAL", 0},
	OpGreater:  {"OP_GREATER", 0},
	OpLess:     {"OP_LESS", 0},
	OpAdd:      {"OP_ADD", 0},
	OpSubtract: {"OP_SUBTRACT", 0},
	OpMultiply: {"OP_MULTIPLY", 0},
	OpDivide:   {"OP_DIVIDE", 0},
	OpNot:      {"OP_NOT", 0},
	OpNegate:   {"OP_NEGATE", 0},

	OpPrint:       {"OP_PRINT", 0},
	OpJump:        {"OP_JUMP", 2},
	OpJumpIfFalse: {"OP_JUMP_IF_FALSE", 2},
	OpLoop:        {"OP_LOOP", 2},

	OpCall:         {"OP_CALL", 1},
	OpInvoke:       {"OP_INVOKE", 2},
	OpSuperInvoke:  {"OP_SUPER_INVOKE", 2},
	OpClosure:      {"OP_CLOSURE", 1}, // plus two bytes per captured upvalue
	OpCloseUpvalue: {"OP_CLOSE_UPVALUE", 0},
	OpReturn:       {"OP_RETURN", 0},

	OpClass:   {"OP_CLASS", 1},
	OpInherit: {"OP_INHERIT", 0},
	OpMethod:  {"OP_METHOD", 1},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of fixed operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpLoop
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
