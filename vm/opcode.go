// Package vm implements the linker and the bytecode interpreter: the
// instruction wire format, the calling convention and frame layout,
// and the native function registry.
package vm

// Opcode is the one-byte instruction tag at the head of every
// instruction. Grouped register-register-register arithmetic and
// comparison ops share a width, as do the register-immediate forms.
type Opcode byte

const (
	OpNOP Opcode = iota
	OpERR
	OpEXIT

	OpLBL

	OpADD_REG_REG_REG
	OpSUB_REG_REG_REG
	OpMUL_REG_REG_REG
	OpDIV_REG_REG_REG
	OpMOD_REG_REG_REG
	OpGT_REG_REG_REG
	OpGTE_REG_REG_REG
	OpLT_REG_REG_REG
	OpLTE_REG_REG_REG
	OpEQ_REG_REG_REG
	OpNEQ_REG_REG_REG
	OpAND_REG_REG_REG
	OpOR_REG_REG_REG

	OpADD_REG_REG_UI8
	OpSUB_REG_REG_UI8
	OpAND_REG_REG_UI8
	OpLTE_REG_REG_I8
	OpXOR_REG_REG_UI8

	OpMV_REG_SP
	OpMV_REG_IP

	OpMV_REG_UI8
	OpMV_REG_UI16
	OpMV_REG_UI32
	OpMV_REG_UI64
	OpMV_REG_I8
	OpMV_REG_I16
	OpMV_REG_I32
	OpMV_REG_I64

	OpMV8_REG_REG
	OpMV16_REG_REG
	OpMV32_REG_REG
	OpMV64_REG_REG

	OpMV8_LOC_REG
	OpMV16_LOC_REG
	OpMV32_LOC_REG
	OpMV64_LOC_REG

	OpMV8_REG_LOC
	OpMV16_REG_LOC
	OpMV32_REG_LOC
	OpMV64_REG_LOC

	OpPUSH8_REG
	OpPUSH16_REG
	OpPUSH32_REG
	OpPUSH64_REG

	OpPOP8_REG
	OpPOP16_REG
	OpPOP32_REG
	OpPOP64_REG

	OpJMPR_I32
	OpJRNZ_REG_I32
	OpJRZ_REG_I32

	OpCALL_UI64
	OpCALL_NATIVE_UI64
	OpCALL_REG

	OpRET_UI8

	OpSALLOC_REG_UI8
	OpSDEALLOC_UI8

	opcodeCount
)

// width is the total instruction length in bytes (opcode + operands),
// indexed by Opcode. 0 means the opcode takes a variable/special width
// not representable by a fixed table entry (none currently do; kept as
// a table for symmetry with ast/coreir's enum+array idiom).
var width = [opcodeCount]int{
	OpNOP: 1, OpERR: 1, OpEXIT: 1,
	OpLBL: 5,

	OpADD_REG_REG_REG: 4, OpSUB_REG_REG_REG: 4, OpMUL_REG_REG_REG: 4,
	OpDIV_REG_REG_REG: 4, OpMOD_REG_REG_REG: 4, OpGT_REG_REG_REG: 4,
	OpGTE_REG_REG_REG: 4, OpLT_REG_REG_REG: 4, OpLTE_REG_REG_REG: 4,
	OpEQ_REG_REG_REG: 4, OpNEQ_REG_REG_REG: 4, OpAND_REG_REG_REG: 4,
	OpOR_REG_REG_REG: 4,

	OpADD_REG_REG_UI8: 4, OpSUB_REG_REG_UI8: 4, OpAND_REG_REG_UI8: 4,
	OpLTE_REG_REG_I8: 4, OpXOR_REG_REG_UI8: 4,

	OpMV_REG_SP: 2, OpMV_REG_IP: 2,

	OpMV_REG_UI8: 3, OpMV_REG_UI16: 4, OpMV_REG_UI32: 6, OpMV_REG_UI64: 10,
	OpMV_REG_I8: 3, OpMV_REG_I16: 4, OpMV_REG_I32: 6, OpMV_REG_I64: 10,

	OpMV8_REG_REG: 3, OpMV16_REG_REG: 3, OpMV32_REG_REG: 3, OpMV64_REG_REG: 3,
	OpMV8_LOC_REG: 3, OpMV16_LOC_REG: 3, OpMV32_LOC_REG: 3, OpMV64_LOC_REG: 3,
	OpMV8_REG_LOC: 3, OpMV16_REG_LOC: 3, OpMV32_REG_LOC: 3, OpMV64_REG_LOC: 3,

	OpPUSH8_REG: 2, OpPUSH16_REG: 2, OpPUSH32_REG: 2, OpPUSH64_REG: 2,
	OpPOP8_REG: 2, OpPOP16_REG: 2, OpPOP32_REG: 2, OpPOP64_REG: 2,

	OpJMPR_I32: 5, OpJRNZ_REG_I32: 6, OpJRZ_REG_I32: 6,

	OpCALL_UI64: 9, OpCALL_NATIVE_UI64: 9, OpCALL_REG: 2,

	OpRET_UI8: 2,

	OpSALLOC_REG_UI8: 3, OpSDEALLOC_UI8: 2,
}

// Width returns the total instruction length (opcode byte included).
func (op Opcode) Width() int {
	if int(op) < len(width) {
		return width[op]
	}
	return 0
}

var opcodeNames = [opcodeCount]string{
	OpNOP: "NOP", OpERR: "ERR", OpEXIT: "EXIT", OpLBL: "LBL_UI32",
	OpADD_REG_REG_REG: "ADD_REG_REG_REG", OpSUB_REG_REG_REG: "SUB_REG_REG_REG",
	OpMUL_REG_REG_REG: "MUL_REG_REG_REG", OpDIV_REG_REG_REG: "DIV_REG_REG_REG",
	OpMOD_REG_REG_REG: "MOD_REG_REG_REG", OpGT_REG_REG_REG: "GT_REG_REG_REG",
	OpGTE_REG_REG_REG: "GTE_REG_REG_REG", OpLT_REG_REG_REG: "LT_REG_REG_REG",
	OpLTE_REG_REG_REG: "LTE_REG_REG_REG", OpEQ_REG_REG_REG: "EQ_REG_REG_REG",
	OpNEQ_REG_REG_REG: "NEQ_REG_REG_REG", OpAND_REG_REG_REG: "AND_REG_REG_REG",
	OpOR_REG_REG_REG: "OR_REG_REG_REG",
	OpADD_REG_REG_UI8: "ADD_REG_REG_UI8", OpSUB_REG_REG_UI8: "SUB_REG_REG_UI8",
	OpAND_REG_REG_UI8: "AND_REG_REG_UI8", OpLTE_REG_REG_I8: "LTE_REG_REG_I8",
	OpXOR_REG_REG_UI8: "XOR_REG_REG_UI8",
	OpMV_REG_SP:       "MV_REG_SP", OpMV_REG_IP: "MV_REG_IP",
	OpMV_REG_UI8: "MV_REG_UI8", OpMV_REG_UI16: "MV_REG_UI16",
	OpMV_REG_UI32: "MV_REG_UI32", OpMV_REG_UI64: "MV_REG_UI64",
	OpMV_REG_I8: "MV_REG_I8", OpMV_REG_I16: "MV_REG_I16",
	OpMV_REG_I32: "MV_REG_I32", OpMV_REG_I64: "MV_REG_I64",
	OpMV8_REG_REG: "MV8_REG_REG", OpMV16_REG_REG: "MV16_REG_REG",
	OpMV32_REG_REG: "MV32_REG_REG", OpMV64_REG_REG: "MV64_REG_REG",
	OpMV8_LOC_REG: "MV8_LOC_REG", OpMV16_LOC_REG: "MV16_LOC_REG",
	OpMV32_LOC_REG: "MV32_LOC_REG", OpMV64_LOC_REG: "MV64_LOC_REG",
	OpMV8_REG_LOC: "MV8_REG_LOC", OpMV16_REG_LOC: "MV16_REG_LOC",
	OpMV32_REG_LOC: "MV32_REG_LOC", OpMV64_REG_LOC: "MV64_REG_LOC",
	OpPUSH8_REG: "PUSH8_REG", OpPUSH16_REG: "PUSH16_REG",
	OpPUSH32_REG: "PUSH32_REG", OpPUSH64_REG: "PUSH64_REG",
	OpPOP8_REG: "POP8_REG", OpPOP16_REG: "POP16_REG",
	OpPOP32_REG: "POP32_REG", OpPOP64_REG: "POP64_REG",
	OpJMPR_I32: "JMPR_I32", OpJRNZ_REG_I32: "JRNZ_REG_I32", OpJRZ_REG_I32: "JRZ_REG_I32",
	OpCALL_UI64: "CALL_UI64", OpCALL_NATIVE_UI64: "CALL_NATIVE_UI64", OpCALL_REG: "CALL_REG",
	OpRET_UI8:        "RET_UI8",
	OpSALLOC_REG_UI8: "SALLOC_REG_UI8", OpSDEALLOC_UI8: "SDEALLOC_UI8",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "?unknown-opcode?"
}

// Register roles: 0..31 caller-saves, 32..59 callee-saves, then the
// four reserved registers.
const (
	RegisterCount  = 64
	CallerSaveLo   = 0
	CallerSaveHi   = 31
	CalleeSaveLo   = 32
	CalleeSaveHi   = 59
	RetReg         = 60
	FpReg          = 61
	SpReg          = 62
	IpReg          = 63
	ReturnAddrSize = 8
)

// MoveRegRegOpcode returns the N-bit register-register move opcode for
// a byte width (1, 2, 4, or 8).
func MoveRegRegOpcode(size uint32) Opcode {
	switch size {
	case 1:
		return OpMV8_REG_REG
	case 2:
		return OpMV16_REG_REG
	case 4:
		return OpMV32_REG_REG
	default:
		return OpMV64_REG_REG
	}
}

func MoveLocRegOpcode(size uint32) Opcode {
	switch size {
	case 1:
		return OpMV8_LOC_REG
	case 2:
		return OpMV16_LOC_REG
	case 4:
		return OpMV32_LOC_REG
	default:
		return OpMV64_LOC_REG
	}
}

func MoveRegLocOpcode(size uint32) Opcode {
	switch size {
	case 1:
		return OpMV8_REG_LOC
	case 2:
		return OpMV16_REG_LOC
	case 4:
		return OpMV32_REG_LOC
	default:
		return OpMV64_REG_LOC
	}
}

func PushOpcode(size uint32) Opcode {
	switch size {
	case 1:
		return OpPUSH8_REG
	case 2:
		return OpPUSH16_REG
	case 4:
		return OpPUSH32_REG
	default:
		return OpPUSH64_REG
	}
}

func PopOpcode(size uint32) Opcode {
	switch size {
	case 1:
		return OpPOP8_REG
	case 2:
		return OpPOP16_REG
	case 4:
		return OpPOP32_REG
	default:
		return OpPOP64_REG
	}
}
