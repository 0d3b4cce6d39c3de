package vm

// execInstructions runs the fetch-decode-dispatch loop. singleStep
// returns to the caller after one instruction, for debug mode's
// step/breakpoint support.
//
// This is considered a tight loop: simple helpers are fine (Go inlines
// them), but the instruction bodies stay inline in the switch rather
// than behind another layer of function calls.
func (vm *VM) execInstructions(singleStep bool) {
	for {
		if vm.registers[IpReg] >= uint64(len(vm.program)) {
			vm.errcode = errProgramFinished
			return
		}

		op := Opcode(vm.fetchU8())

		switch op {
		case OpNOP:

		case OpERR:
			vm.errcode = errIllegalOperation
			return

		case OpEXIT:
			vm.registers[IpReg] = uint64(len(vm.program))
			vm.errcode = errProgramFinished
			return

		case OpADD_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] + vm.registers[b]
		case OpSUB_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] - vm.registers[b]
		case OpMUL_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] * vm.registers[b]
		case OpDIV_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			if vm.registers[b] == 0 {
				vm.errcode = errDivideByZero
				panic(vm.errcode)
			}
			vm.registers[d] = uint64(int64(vm.registers[a]) / int64(vm.registers[b]))
		case OpMOD_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			if vm.registers[b] == 0 {
				vm.errcode = errDivideByZero
				panic(vm.errcode)
			}
			vm.registers[d] = uint64(int64(vm.registers[a]) % int64(vm.registers[b]))
		case OpGT_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(int64(vm.registers[a]) > int64(vm.registers[b]))
		case OpGTE_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(int64(vm.registers[a]) >= int64(vm.registers[b]))
		case OpLT_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(int64(vm.registers[a]) < int64(vm.registers[b]))
		case OpLTE_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(int64(vm.registers[a]) <= int64(vm.registers[b]))
		case OpEQ_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(vm.registers[a] == vm.registers[b])
		case OpNEQ_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(vm.registers[a] != vm.registers[b])
		case OpAND_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(vm.registers[a] != 0 && vm.registers[b] != 0)
		case OpOR_REG_REG_REG:
			d, a, b := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = boolU64(vm.registers[a] != 0 || vm.registers[b] != 0)

		case OpADD_REG_REG_UI8:
			d, a, imm := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] + uint64(imm)
		case OpSUB_REG_REG_UI8:
			d, a, imm := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] - uint64(imm)
		case OpAND_REG_REG_UI8:
			d, a, imm := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] & uint64(imm)
		case OpLTE_REG_REG_I8:
			d, a, imm := vm.fetchU8(), vm.fetchU8(), int8(vm.fetchU8())
			vm.registers[d] = boolU64(int64(vm.registers[a]) <= int64(imm))
		case OpXOR_REG_REG_UI8:
			d, a, imm := vm.fetchU8(), vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[a] ^ uint64(imm)

		case OpMV_REG_SP:
			d := vm.fetchU8()
			vm.registers[d] = vm.registers[SpReg]
		case OpMV_REG_IP:
			d := vm.fetchU8()
			vm.registers[d] = vm.registers[IpReg]

		case OpMV_REG_UI8:
			d, v := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = uint64(v)
		case OpMV_REG_UI16:
			d, v := vm.fetchU8(), vm.fetchU16()
			vm.registers[d] = uint64(v)
		case OpMV_REG_UI32:
			d, v := vm.fetchU8(), vm.fetchU32()
			vm.registers[d] = uint64(v)
		case OpMV_REG_UI64:
			d, v := vm.fetchU8(), vm.fetchU64()
			vm.registers[d] = v
		case OpMV_REG_I8:
			d, v := vm.fetchU8(), int8(vm.fetchU8())
			vm.registers[d] = uint64(int64(v))
		case OpMV_REG_I16:
			d, v := vm.fetchU8(), int16(vm.fetchU16())
			vm.registers[d] = uint64(int64(v))
		case OpMV_REG_I32:
			d, v := vm.fetchU8(), vm.fetchI32()
			vm.registers[d] = uint64(int64(v))
		case OpMV_REG_I64:
			d, v := vm.fetchU8(), int64(vm.fetchU64())
			vm.registers[d] = uint64(v)

		case OpMV8_REG_REG, OpMV16_REG_REG, OpMV32_REG_REG, OpMV64_REG_REG:
			d, s := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[s]

		case OpMV8_LOC_REG:
			addr, s := vm.fetchU8(), vm.fetchU8()
			putUint(vm.stack[vm.registers[addr]:], 1, vm.registers[s])
		case OpMV16_LOC_REG:
			addr, s := vm.fetchU8(), vm.fetchU8()
			putUint(vm.stack[vm.registers[addr]:], 2, vm.registers[s])
		case OpMV32_LOC_REG:
			addr, s := vm.fetchU8(), vm.fetchU8()
			putUint(vm.stack[vm.registers[addr]:], 4, vm.registers[s])
		case OpMV64_LOC_REG:
			addr, s := vm.fetchU8(), vm.fetchU8()
			putUint(vm.stack[vm.registers[addr]:], 8, vm.registers[s])

		case OpMV8_REG_LOC:
			d, addr := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = getUint(vm.stack[vm.registers[addr]:], 1)
		case OpMV16_REG_LOC:
			d, addr := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = getUint(vm.stack[vm.registers[addr]:], 2)
		case OpMV32_REG_LOC:
			d, addr := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = getUint(vm.stack[vm.registers[addr]:], 4)
		case OpMV64_REG_LOC:
			d, addr := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = getUint(vm.stack[vm.registers[addr]:], 8)

		case OpPUSH8_REG:
			s := vm.fetchU8()
			vm.pushBytes(1, vm.registers[s])
		case OpPUSH16_REG:
			s := vm.fetchU8()
			vm.pushBytes(2, vm.registers[s])
		case OpPUSH32_REG:
			s := vm.fetchU8()
			vm.pushBytes(4, vm.registers[s])
		case OpPUSH64_REG:
			s := vm.fetchU8()
			vm.pushBytes(8, vm.registers[s])

		case OpPOP8_REG:
			d := vm.fetchU8()
			vm.registers[d] = vm.popBytes(1)
		case OpPOP16_REG:
			d := vm.fetchU8()
			vm.registers[d] = vm.popBytes(2)
		case OpPOP32_REG:
			d := vm.fetchU8()
			vm.registers[d] = vm.popBytes(4)
		case OpPOP64_REG:
			d := vm.fetchU8()
			vm.registers[d] = vm.popBytes(8)

		case OpJMPR_I32:
			disp := vm.fetchI32()
			vm.registers[IpReg] = uint64(int64(vm.registers[IpReg]) + int64(disp))
		case OpJRZ_REG_I32:
			r := vm.fetchU8()
			disp := vm.fetchI32()
			if vm.registers[r] == 0 {
				vm.registers[IpReg] = uint64(int64(vm.registers[IpReg]) + int64(disp))
			}
		case OpJRNZ_REG_I32:
			r := vm.fetchU8()
			disp := vm.fetchI32()
			if vm.registers[r] != 0 {
				vm.registers[IpReg] = uint64(int64(vm.registers[IpReg]) + int64(disp))
			}

		case OpCALL_UI64:
			target := vm.fetchU64()
			vm.pushBytes(8, vm.registers[IpReg])
			vm.pushBytes(8, vm.registers[FpReg])
			vm.registers[FpReg] = vm.registers[SpReg]
			vm.registers[IpReg] = target
		case OpCALL_NATIVE_UI64:
			id := vm.fetchU64()
			if int(id) >= len(vm.natives) || vm.natives[id] == nil {
				vm.errcode = errUnknownOpcode
				panic(vm.errcode)
			}
			if err := vm.natives[id](vm); err != nil {
				vm.errcode = err
				panic(vm.errcode)
			}
		case OpCALL_REG:
			r := vm.fetchU8()
			target := vm.registers[r]
			vm.pushBytes(8, vm.registers[IpReg])
			vm.pushBytes(8, vm.registers[FpReg])
			vm.registers[FpReg] = vm.registers[SpReg]
			vm.registers[IpReg] = target

		case OpRET_UI8:
			argBytes := vm.fetchU8()
			vm.registers[FpReg] = vm.popBytes(8)
			vm.registers[IpReg] = vm.popBytes(8)
			vm.registers[SpReg] += uint64(argBytes)

		case OpSALLOC_REG_UI8:
			d, n := vm.fetchU8(), vm.fetchU8()
			vm.registers[d] = vm.registers[SpReg]
			if vm.registers[SpReg] < uint64(n) {
				vm.errcode = errStackOverflow
				panic(vm.errcode)
			}
			vm.registers[SpReg] -= uint64(n)
		case OpSDEALLOC_UI8:
			n := vm.fetchU8()
			vm.registers[SpReg] += uint64(n)

		default:
			vm.errcode = errUnknownOpcode
			return
		}

		if singleStep {
			return
		}
	}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
