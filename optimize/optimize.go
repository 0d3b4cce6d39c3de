// Package optimize implements the peephole/dead-code pass that runs on
// a codegen.Program before linking: a fixed point of dependency fusion,
// single-op simplification, and dead-code removal.
//
// This runs before linking, while every jump still names a label id
// rather than a byte displacement (codegen's "far label" staging).
// Rewrites still preserve instruction offsets by padding freed bytes
// with NOPs — codegen's debug-symbol and string-relocation tables are
// keyed by offset — and the linker's NOP elision reclaims the padding.
package optimize

import (
	"encoding/binary"

	"corevm/codegen"
	"corevm/vm"
)

// Optimize rewrites every non-native function's Code in place:
// dependency fusion, single-op simplification and dead-code
// elimination repeat until a full cycle makes no change.
func Optimize(prog *codegen.Program) {
	for _, fn := range prog.Functions {
		if fn.IsNative {
			continue
		}
		optimizeFunction(fn)
	}
}

func optimizeFunction(fn *codegen.Function) {
	for {
		changed := false
		if fusePushPop(fn) {
			changed = true
		}
		if fuseLiteralMoves(fn) {
			changed = true
		}
		if fuseRegCopies(fn) {
			changed = true
		}
		if simplifySingleOps(fn) {
			changed = true
		}
		if removeDeadMoves(fn) {
			changed = true
		}
		if !changed {
			return
		}
	}
}

type instr struct {
	offset int
	op     vm.Opcode
	width  int
}

// decode walks a function's code into a flat instruction list, skipping
// nothing — NOPs are kept as ordinary instructions so offset math stays
// correct.
func decode(code []byte) []instr {
	var out []instr
	for i := 0; i < len(code); {
		op := vm.Opcode(code[i])
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		out = append(out, instr{offset: i, op: op, width: w})
		i += w
	}
	return out
}

// isBarrier reports whether an instruction invalidates straight-line
// reasoning about register liveness and stack order. Jumps clear any
// push/pop pairing assumptions and calls clobber the caller-saved
// registers; refusing to fuse across them at all is the conservative
// subset of a full dependency graph that stays safe without tracking
// per-register liveness across basic blocks.
func isBarrier(op vm.Opcode) bool {
	switch op {
	case vm.OpLBL, vm.OpJMPR_I32, vm.OpJRZ_REG_I32, vm.OpJRNZ_REG_I32,
		vm.OpCALL_UI64, vm.OpCALL_NATIVE_UI64, vm.OpCALL_REG,
		vm.OpRET_UI8, vm.OpEXIT, vm.OpERR,
		// SALLOC/SDEALLOC move sp without a matching PUSH/POP, so any
		// stack-order reasoning spanning them is invalid too.
		vm.OpSALLOC_REG_UI8, vm.OpSDEALLOC_UI8:
		return true
	}
	return false
}

func pushSrcReg(op vm.Opcode) (size int, isPush bool) {
	switch op {
	case vm.OpPUSH8_REG:
		return 1, true
	case vm.OpPUSH16_REG:
		return 2, true
	case vm.OpPUSH32_REG:
		return 4, true
	case vm.OpPUSH64_REG:
		return 8, true
	}
	return 0, false
}

func popDstReg(op vm.Opcode) (size int, isPop bool) {
	switch op {
	case vm.OpPOP8_REG:
		return 1, true
	case vm.OpPOP16_REG:
		return 2, true
	case vm.OpPOP32_REG:
		return 4, true
	case vm.OpPOP64_REG:
		return 8, true
	}
	return 0, false
}

// writesReg reports whether the register-writing operand(s) of op
// include r. Used by fuseRegCopies and removeDeadMoves to stop a scan
// once r is overwritten.
func writesReg(code []byte, ins instr, r byte) bool {
	switch ins.op {
	case vm.OpADD_REG_REG_REG, vm.OpSUB_REG_REG_REG, vm.OpMUL_REG_REG_REG,
		vm.OpDIV_REG_REG_REG, vm.OpMOD_REG_REG_REG, vm.OpGT_REG_REG_REG,
		vm.OpGTE_REG_REG_REG, vm.OpLT_REG_REG_REG, vm.OpLTE_REG_REG_REG,
		vm.OpEQ_REG_REG_REG, vm.OpNEQ_REG_REG_REG, vm.OpAND_REG_REG_REG,
		vm.OpOR_REG_REG_REG,
		vm.OpADD_REG_REG_UI8, vm.OpSUB_REG_REG_UI8, vm.OpAND_REG_REG_UI8,
		vm.OpLTE_REG_REG_I8, vm.OpXOR_REG_REG_UI8:
		return code[ins.offset+1] == r
	case vm.OpMV_REG_SP, vm.OpMV_REG_IP,
		vm.OpMV_REG_UI8, vm.OpMV_REG_UI16, vm.OpMV_REG_UI32, vm.OpMV_REG_UI64,
		vm.OpMV_REG_I8, vm.OpMV_REG_I16, vm.OpMV_REG_I32, vm.OpMV_REG_I64,
		vm.OpMV8_REG_REG, vm.OpMV16_REG_REG, vm.OpMV32_REG_REG, vm.OpMV64_REG_REG,
		vm.OpMV8_REG_LOC, vm.OpMV16_REG_LOC, vm.OpMV32_REG_LOC, vm.OpMV64_REG_LOC,
		vm.OpPOP8_REG, vm.OpPOP16_REG, vm.OpPOP32_REG, vm.OpPOP64_REG,
		vm.OpSALLOC_REG_UI8:
		return code[ins.offset+1] == r
	}
	return false
}

func nopOut(code []byte, offset, width int) {
	for i := 0; i < width; i++ {
		code[offset+i] = byte(vm.OpNOP)
	}
}

// fusePushPop implements `PUSHn r1; POPn r2` -> `MVn_REG_REG r2, r1`.
// The pair must be contiguous (nothing but NOPs in between): the
// replacement move is one byte wider than either the push or the pop
// slot alone, so the rewrite spans both; a real instruction in the gap
// could also address the stack against the transient depth the pair
// created, which the fused form no longer produces.
func fusePushPop(fn *codegen.Function) bool {
	code := fn.Code
	ins := decode(code)
	changed := false

	for i := 0; i < len(ins); i++ {
		size, ok := pushSrcReg(ins[i].op)
		if !ok {
			continue
		}
		srcReg := code[ins[i].offset+1]

		j := i + 1
		for j < len(ins) && ins[j].op == vm.OpNOP {
			j++
		}
		if j >= len(ins) {
			continue
		}
		popSize, isPop := popDstReg(ins[j].op)
		if !isPop || popSize != size {
			continue
		}
		dstReg := code[ins[j].offset+1]

		nopOut(code, ins[i].offset, ins[j].offset+ins[j].width-ins[i].offset)
		code[ins[i].offset] = byte(vm.MoveRegRegOpcode(uint32(size)))
		code[ins[i].offset+1] = dstReg
		code[ins[i].offset+2] = srcReg
		changed = true
	}

	return changed
}

// regRegWidth reports the byte width an MVn_REG_REG opcode moves, or
// false if op isn't one.
func regRegWidth(op vm.Opcode) (int, bool) {
	switch op {
	case vm.OpMV8_REG_REG:
		return 1, true
	case vm.OpMV16_REG_REG:
		return 2, true
	case vm.OpMV32_REG_REG:
		return 4, true
	case vm.OpMV64_REG_REG:
		return 8, true
	}
	return 0, false
}

// locRegWidth reports the byte width an MVn_LOC_REG opcode stores, or
// false if op isn't one.
func locRegWidth(op vm.Opcode) (int, bool) {
	switch op {
	case vm.OpMV8_LOC_REG:
		return 1, true
	case vm.OpMV16_LOC_REG:
		return 2, true
	case vm.OpMV32_LOC_REG:
		return 4, true
	case vm.OpMV64_LOC_REG:
		return 8, true
	}
	return 0, false
}

// fuseRegCopies implements `MV64_REG_REG t, s; MV64_LOC_REG d, t` (t
// unread/unwritten in between) -> `MV64_LOC_REG d, s`: a register copy
// whose next use is a store-to-location of the same width is folded
// into the store directly. Reads of t after the store are not checked.
func fuseRegCopies(fn *codegen.Function) bool {
	code := fn.Code
	ins := decode(code)
	changed := false

	for i := 0; i < len(ins); i++ {
		size, ok := regRegWidth(ins[i].op)
		if !ok {
			continue
		}
		dst := code[ins[i].offset+1]
		src := code[ins[i].offset+2]

		for j := i + 1; j < len(ins); j++ {
			if isBarrier(ins[j].op) {
				break
			}
			if locSize, isLoc := locRegWidth(ins[j].op); isLoc && locSize == size && code[ins[j].offset+2] == dst {
				addr := code[ins[j].offset+1]
				nopOut(code, ins[i].offset, ins[i].width)
				code[ins[j].offset+1] = addr
				code[ins[j].offset+2] = src
				changed = true
				break
			}
			if readsReg(code, ins[j], dst) || writesReg(code, ins[j], dst) {
				break
			}
		}
	}

	return changed
}

// fuseLiteralMoves implements the literal-move fusion rewrites: a
// temporary loaded with MV_REG_I64 or MV_REG_UI64 whose very next
// instruction consumes it as a reg-reg move source or as an operand of
// SUB/ADD/LTE against another register has the literal folded straight
// into that consumer. Reads of the temporary after the consumer are not
// checked.
func fuseLiteralMoves(fn *codegen.Function) bool {
	code := fn.Code
	ins := decode(code)
	changed := false

	for i := 0; i+1 < len(ins); i++ {
		if ins[i].op != vm.OpMV_REG_I64 && ins[i].op != vm.OpMV_REG_UI64 {
			continue
		}
		if _, isReloc := fn.StringRelocs[ins[i].offset+2]; isReloc {
			// A string-literal placeholder's operand is patched by the
			// linker; its current bytes are not the real value.
			continue
		}
		t := code[ins[i].offset+1]
		k := binary.LittleEndian.Uint64(code[ins[i].offset+2:])

		j := i + 1
		if isBarrier(ins[j].op) {
			continue
		}

		switch ins[j].op {
		case vm.OpMV64_REG_REG:
			dst, src := code[ins[j].offset+1], code[ins[j].offset+2]
			if src != t {
				continue
			}
			// The replacement literal load is as wide as the original, so
			// it lands in the original's slot; the narrower move slot
			// becomes NOPs.
			code[ins[i].offset] = byte(vm.OpMV_REG_I64)
			code[ins[i].offset+1] = dst
			binary.LittleEndian.PutUint64(code[ins[i].offset+2:], k)
			nopOut(code, ins[j].offset, ins[j].width)
			changed = true

		case vm.OpSUB_REG_REG_REG:
			d, a, b := code[ins[j].offset+1], code[ins[j].offset+2], code[ins[j].offset+3]
			if b != t || k > 255 {
				continue
			}
			nopOut(code, ins[i].offset, ins[i].width)
			code[ins[j].offset] = byte(vm.OpSUB_REG_REG_UI8)
			code[ins[j].offset+1] = d
			code[ins[j].offset+2] = a
			code[ins[j].offset+3] = byte(k)
			changed = true

		case vm.OpADD_REG_REG_REG:
			d, a, b := code[ins[j].offset+1], code[ins[j].offset+2], code[ins[j].offset+3]
			var other byte
			if a == t {
				other = b
			} else if b == t {
				other = a
			} else {
				continue
			}
			if k > 255 {
				continue
			}
			nopOut(code, ins[i].offset, ins[i].width)
			code[ins[j].offset] = byte(vm.OpADD_REG_REG_UI8)
			code[ins[j].offset+1] = d
			code[ins[j].offset+2] = other
			code[ins[j].offset+3] = byte(k)
			changed = true

		case vm.OpLTE_REG_REG_REG:
			d, a, b := code[ins[j].offset+1], code[ins[j].offset+2], code[ins[j].offset+3]
			if b != t || k > 127 {
				continue
			}
			nopOut(code, ins[i].offset, ins[i].width)
			code[ins[j].offset] = byte(vm.OpLTE_REG_REG_I8)
			code[ins[j].offset+1] = d
			code[ins[j].offset+2] = a
			code[ins[j].offset+3] = byte(k)
			changed = true
		}
	}

	return changed
}

// simplifySingleOps narrows an oversized literal load that fits in a
// byte, and turns an identity register move into a NOP.
func simplifySingleOps(fn *codegen.Function) bool {
	code := fn.Code
	ins := decode(code)
	changed := false

	for _, in := range ins {
		switch in.op {
		case vm.OpMV_REG_I64, vm.OpMV_REG_UI64:
			if _, isReloc := fn.StringRelocs[in.offset+2]; isReloc {
				continue
			}
			k := binary.LittleEndian.Uint64(code[in.offset+2:])
			if k > 255 {
				continue
			}
			d := code[in.offset+1]
			code[in.offset] = byte(vm.OpMV_REG_UI8)
			code[in.offset+1] = d
			code[in.offset+2] = byte(k)
			for i := 3; i < in.width; i++ {
				code[in.offset+i] = byte(vm.OpNOP)
			}
			changed = true

		case vm.OpMV8_REG_REG, vm.OpMV16_REG_REG, vm.OpMV32_REG_REG, vm.OpMV64_REG_REG:
			d, s := code[in.offset+1], code[in.offset+2]
			if d == s {
				nopOut(code, in.offset, in.width)
				changed = true
			}
		}
	}

	return changed
}

// removeDeadMoves removes a register-register move whose destination is
// provably overwritten before any read, matching the "removes
// MV8_REG_REG chains with no readers" example. Reaching a barrier or
// the end of the function without seeing either proves nothing — the
// value may still be observed past the barrier (a return value left in
// RetReg, a temporary consumed after a label) — so such moves stay.
func removeDeadMoves(fn *codegen.Function) bool {
	code := fn.Code
	ins := decode(code)
	changed := false

	for i, in := range ins {
		var d byte
		switch in.op {
		case vm.OpMV8_REG_REG, vm.OpMV16_REG_REG, vm.OpMV32_REG_REG, vm.OpMV64_REG_REG:
			d = code[in.offset+1]
		default:
			continue
		}

		dead := false
		for j := i + 1; j < len(ins); j++ {
			if isBarrier(ins[j].op) || readsReg(code, ins[j], d) {
				break
			}
			if writesReg(code, ins[j], d) {
				dead = true
				break
			}
		}
		if dead {
			nopOut(code, in.offset, in.width)
			changed = true
		}
	}

	return changed
}

func readsReg(code []byte, ins instr, r byte) bool {
	switch ins.op {
	case vm.OpADD_REG_REG_REG, vm.OpSUB_REG_REG_REG, vm.OpMUL_REG_REG_REG,
		vm.OpDIV_REG_REG_REG, vm.OpMOD_REG_REG_REG, vm.OpGT_REG_REG_REG,
		vm.OpGTE_REG_REG_REG, vm.OpLT_REG_REG_REG, vm.OpLTE_REG_REG_REG,
		vm.OpEQ_REG_REG_REG, vm.OpNEQ_REG_REG_REG, vm.OpAND_REG_REG_REG,
		vm.OpOR_REG_REG_REG:
		return code[ins.offset+2] == r || code[ins.offset+3] == r
	case vm.OpADD_REG_REG_UI8, vm.OpSUB_REG_REG_UI8, vm.OpAND_REG_REG_UI8,
		vm.OpLTE_REG_REG_I8, vm.OpXOR_REG_REG_UI8:
		return code[ins.offset+2] == r
	case vm.OpMV8_REG_REG, vm.OpMV16_REG_REG, vm.OpMV32_REG_REG, vm.OpMV64_REG_REG:
		return code[ins.offset+2] == r
	case vm.OpMV8_LOC_REG, vm.OpMV16_LOC_REG, vm.OpMV32_LOC_REG, vm.OpMV64_LOC_REG:
		return code[ins.offset+1] == r || code[ins.offset+2] == r
	case vm.OpMV8_REG_LOC, vm.OpMV16_REG_LOC, vm.OpMV32_REG_LOC, vm.OpMV64_REG_LOC:
		return code[ins.offset+2] == r
	case vm.OpPUSH8_REG, vm.OpPUSH16_REG, vm.OpPUSH32_REG, vm.OpPUSH64_REG:
		return code[ins.offset+1] == r
	case vm.OpJRZ_REG_I32, vm.OpJRNZ_REG_I32, vm.OpCALL_REG:
		return code[ins.offset+1] == r
	}
	return false
}
