package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders a linked Executable's instruction stream as
// human-readable text, one line per instruction, annotated with any
// debug symbol recorded at that offset (a CALL_UI64 site's callee
// name).
func (e *Executable) Disassemble() string {
	var b strings.Builder
	for i := 0; i < len(e.Code); {
		op := Opcode(e.Code[i])
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		if i+w > len(e.Code) {
			fmt.Fprintf(&b, "%06d: <truncated %s>\n", i, op)
			break
		}

		fmt.Fprintf(&b, "%06d: %s", i, disasmOperands(op, e.Code[i:i+w]))
		if name, ok := e.DebugSymbols[i]; ok {
			fmt.Fprintf(&b, "  ; %s", name)
		}
		if i == e.EntryOffset {
			b.WriteString("  <- entry")
		}
		b.WriteByte('\n')

		i += w
	}
	return b.String()
}

// disasmOperands formats one instruction's mnemonic and operands. instr
// is exactly op.Width() bytes, opcode byte included.
func disasmOperands(op Opcode, instr []byte) string {
	name := op.String()
	operands := instr[1:]

	switch op {
	case OpNOP, OpERR, OpEXIT:
		return name

	case OpLBL:
		return fmt.Sprintf("%s %d", name, binary.LittleEndian.Uint32(operands))

	case OpADD_REG_REG_REG, OpSUB_REG_REG_REG, OpMUL_REG_REG_REG, OpDIV_REG_REG_REG,
		OpMOD_REG_REG_REG, OpGT_REG_REG_REG, OpGTE_REG_REG_REG, OpLT_REG_REG_REG,
		OpLTE_REG_REG_REG, OpEQ_REG_REG_REG, OpNEQ_REG_REG_REG, OpAND_REG_REG_REG,
		OpOR_REG_REG_REG:
		return fmt.Sprintf("%s r%d, r%d, r%d", name, operands[0], operands[1], operands[2])

	case OpADD_REG_REG_UI8, OpSUB_REG_REG_UI8, OpAND_REG_REG_UI8, OpXOR_REG_REG_UI8:
		return fmt.Sprintf("%s r%d, r%d, %d", name, operands[0], operands[1], operands[2])
	case OpLTE_REG_REG_I8:
		return fmt.Sprintf("%s r%d, r%d, %d", name, operands[0], operands[1], int8(operands[2]))

	case OpMV_REG_SP, OpMV_REG_IP:
		return fmt.Sprintf("%s r%d", name, operands[0])

	case OpMV_REG_UI8:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], operands[1])
	case OpMV_REG_UI16:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], binary.LittleEndian.Uint16(operands[1:]))
	case OpMV_REG_UI32:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], binary.LittleEndian.Uint32(operands[1:]))
	case OpMV_REG_UI64:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], binary.LittleEndian.Uint64(operands[1:]))
	case OpMV_REG_I8:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], int8(operands[1]))
	case OpMV_REG_I16:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], int16(binary.LittleEndian.Uint16(operands[1:])))
	case OpMV_REG_I32:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], int32(binary.LittleEndian.Uint32(operands[1:])))
	case OpMV_REG_I64:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], int64(binary.LittleEndian.Uint64(operands[1:])))

	case OpMV8_REG_REG, OpMV16_REG_REG, OpMV32_REG_REG, OpMV64_REG_REG,
		OpMV8_LOC_REG, OpMV16_LOC_REG, OpMV32_LOC_REG, OpMV64_LOC_REG,
		OpMV8_REG_LOC, OpMV16_REG_LOC, OpMV32_REG_LOC, OpMV64_REG_LOC:
		return fmt.Sprintf("%s r%d, r%d", name, operands[0], operands[1])

	case OpPUSH8_REG, OpPUSH16_REG, OpPUSH32_REG, OpPUSH64_REG,
		OpPOP8_REG, OpPOP16_REG, OpPOP32_REG, OpPOP64_REG:
		return fmt.Sprintf("%s r%d", name, operands[0])

	case OpJMPR_I32:
		return fmt.Sprintf("%s %+d", name, int32(binary.LittleEndian.Uint32(operands)))
	case OpJRZ_REG_I32, OpJRNZ_REG_I32:
		return fmt.Sprintf("%s r%d, %+d", name, operands[0], int32(binary.LittleEndian.Uint32(operands[1:])))

	case OpCALL_UI64:
		return fmt.Sprintf("%s %d", name, binary.LittleEndian.Uint64(operands))
	case OpCALL_NATIVE_UI64:
		return fmt.Sprintf("%s %d", name, binary.LittleEndian.Uint64(operands))
	case OpCALL_REG:
		return fmt.Sprintf("%s r%d", name, operands[0])

	case OpRET_UI8:
		return fmt.Sprintf("%s %d", name, operands[0])

	case OpSALLOC_REG_UI8:
		return fmt.Sprintf("%s r%d, %d", name, operands[0], operands[1])
	case OpSDEALLOC_UI8:
		return fmt.Sprintf("%s %d", name, operands[0])

	default:
		return name
	}
}
