package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of chunk under a name header.
func Disassemble(h *Heap, c *Chunk, name string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("== %s ==\n", name))

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			display := h.Format(v)
			// Truncate long strings for readability
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %q\n", i, display))
		}
	}

	for offset := 0; offset < len(c.Code); {
		text, next := DisassembleInstruction(h, c, offset)
		sb.WriteString(text)
		sb.WriteByte('\n')
		offset = next
	}
	return sb.String()
}

// DisassembleProgram lists fn followed by every function nested in its
// constant pool, depth first.
func DisassembleProgram(h *Heap, fn *ObjFunction) string {
	var sb strings.Builder
	seen := map[*ObjFunction]bool{}
	var walk func(f *ObjFunction)
	walk = func(f *ObjFunction) {
		if seen[f] {
			return
		}
		seen[f] = true
		sb.WriteString(Disassemble(h, &f.Chunk, f.DisplayName()))
		for _, c := range f.Chunk.Constants {
			if nested, ok := h.Function(c); ok {
				walk(nested)
			}
		}
	}
	walk(fn)
	return sb.String()
}

// DisassembleInstruction formats the instruction at offset and returns the
// offset of the next instruction.
func DisassembleInstruction(h *Heap, c *Chunk, offset int) (string, int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%04d ", offset))
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", c.Line(offset)))
	}

	op := Opcode(c.Code[offset])
	name := op.String()

	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
		OpGetProperty, OpSetProperty, OpGetSuper, OpClass, OpMethod:
		idx := int(c.Code[offset+1])
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'", name, idx, h.Format(c.Constants[idx])))
		return sb.String(), offset + 2

	case OpConstantLong:
		idx := readUint24(c.Code, offset+1)
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'", name, idx, h.Format(c.Constants[idx])))
		return sb.String(), offset + 4

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		sb.WriteString(fmt.Sprintf("%-16s %4d", name, c.Code[offset+1]))
		return sb.String(), offset + 2

	case OpJump, OpJumpIfFalse:
		jump := readUint16(c.Code, offset+1)
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %d", name, offset, offset+3+jump))
		return sb.String(), offset + 3

	case OpLoop:
		jump := readUint16(c.Code, offset+1)
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %d", name, offset, offset+3-jump))
		return sb.String(), offset + 3

	case OpInvoke, OpSuperInvoke:
		idx := int(c.Code[offset+1])
		argCount := c.Code[offset+2]
		sb.WriteString(fmt.Sprintf("%-16s (%d args) %4d '%s'", name, argCount, idx, h.Format(c.Constants[idx])))
		return sb.String(), offset + 3

	case OpClosure:
		idx := int(c.Code[offset+1])
		offset += 2
		sb.WriteString(fmt.Sprintf("%-16s %4d %s", name, idx, h.Format(c.Constants[idx])))
		fn, ok := h.Function(c.Constants[idx])
		if !ok {
			return sb.String(), offset
		}
		for j := 0; j < fn.UpvalueCount; j++ {
			kind := "upvalue"
			if c.Code[offset] == 1 {
				kind = "local"
			}
			sb.WriteString(fmt.Sprintf("\n%04d    |                     %s %d", offset, kind, c.Code[offset+1]))
			offset += 2
		}
		return sb.String(), offset

	default:
		if _, known := opcodeInfoTable[op]; !known {
			sb.WriteString(fmt.Sprintf("Unknown opcode %d", byte(op)))
			return sb.String(), offset + 1
		}
		sb.WriteString(name)
		return sb.String(), offset + 1 + op.OperandLen()
	}
}
