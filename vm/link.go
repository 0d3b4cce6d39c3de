package vm

import (
	"encoding/binary"

	"corevm/cerr"

	"github.com/dolthub/swiss"
)

// LinkFunction is the bytecode generator's per-function output, shaped
// to avoid an import cycle between corevm/codegen (which already
// imports corevm/vm for Opcode) and this package: codegen.Program has a
// conversion method into a slice of these.
type LinkFunction struct {
	Name         string
	LabelID      int
	Code         []byte
	DebugSymbols map[int]string
	IsNative     bool
	NativeID     int
	StringPool   [][]byte
	StringRelocs map[int]int
}

// Executable is a fully linked, directly runnable program: one
// contiguous instruction stream with every jump, call and string
// address resolved to an absolute byte offset.
type Executable struct {
	Code         []byte
	EntryOffset  int
	Natives      []NativeFunc
	DebugSymbols map[int]string
}

// Link performs the linking pass: resolve each
// function's own LABEL/jump pairs to relative displacements, append
// every function's string data to one data segment, concatenate the
// functions in order, patch every CALL_UI64 site to its callee's
// absolute offset (or to a CALL_NATIVE_UI64 dispatch if the callee is a
// native function), and finally elide the NOPs left behind by the
// LBL_UI32 erasure, sliding the surviving bytes left and adjusting
// every displacement/absolute-target/debug-symbol offset to match.
func Link(funcs []LinkFunction, entryName string) (*Executable, []*cerr.CompileError) {
	var errs []*cerr.CompileError

	nativeIDs := map[string]int{}
	var userFuncs []LinkFunction
	for _, f := range funcs {
		if f.IsNative {
			nativeIDs[f.Name] = f.NativeID
			continue
		}
		userFuncs = append(userFuncs, f)
	}

	for i := range userFuncs {
		resolveLocalJumps(&userFuncs[i])
	}

	var data []byte
	dataOffsets := make([]map[int]int, len(userFuncs)) // per-func pool index -> absolute data offset
	for i, f := range userFuncs {
		dataOffsets[i] = map[int]int{}
		for idx, blob := range f.StringPool {
			dataOffsets[i][idx] = len(data)
			data = append(data, blob...)
		}
	}

	funcBase := swiss.NewMap[string, int](uint32(len(userFuncs)))
	var code []byte
	debugSym := map[int]string{}
	for _, f := range userFuncs {
		funcBase.Put(f.Name, len(code))
		base := len(code)
		for off, name := range f.DebugSymbols {
			debugSym[base+off] = name
		}
		code = append(code, f.Code...)
	}

	// Data segment is appended after every function's code, so its
	// absolute base is known only once the whole code stream exists.
	// It is plain bytes, never walked as instructions.
	dataBase := len(code)
	code = append(code, data...)

	var stringRelocOperands []int // old absolute offsets of the 8-byte data-address immediates
	for i, f := range userFuncs {
		base, _ := funcBase.Get(f.Name)
		for localOff, poolIdx := range f.StringRelocs {
			absAddr := dataBase + dataOffsets[i][poolIdx]
			binary.LittleEndian.PutUint64(code[base+localOff:], uint64(absAddr))
			stringRelocOperands = append(stringRelocOperands, base+localOff)
		}
	}

	// Patch CALL_UI64 sites using the recorded callee-name debug symbol;
	// a callee matching a native function is rewritten to
	// CALL_NATIVE_UI64 with the native registry index as its operand.
	// These targets are still expressed in pre-elision (old) offsets;
	// elideNops below remaps every one of them.
	walk(code[:dataBase], func(offset int, op Opcode) {
		if op != OpCALL_UI64 {
			return
		}
		name, ok := debugSym[offset]
		if !ok {
			errs = append(errs, cerr.Linkf("CALL_UI64 at offset %d has no recorded callee", offset))
			return
		}
		if nid, ok := nativeIDs[name]; ok {
			code[offset] = byte(OpCALL_NATIVE_UI64)
			binary.LittleEndian.PutUint64(code[offset+1:], uint64(nid))
			return
		}
		target, ok := funcBase.Get(name)
		if !ok {
			errs = append(errs, cerr.Linkf("call to undefined function %q", name))
			return
		}
		binary.LittleEndian.PutUint64(code[offset+1:], uint64(target))
	})

	entryOld, ok := funcBase.Get(entryName)
	if !ok {
		errs = append(errs, cerr.Linkf("no entry function named %q", entryName))
	}

	if len(errs) > 0 {
		return nil, errs
	}

	newCode, remap := elideNops(code, dataBase)
	removed := dataBase - len(newCode)
	for _, oldOperandOff := range stringRelocOperands {
		// oldOperandOff addresses the 8-byte immediate directly (not an
		// instruction start); its containing instruction starts 2 bytes
		// earlier (opcode + dst register), per emitStringLiteral.
		newOperandOff := remap[oldOperandOff-2] + 2
		oldAddr := int(binary.LittleEndian.Uint64(newCode[newOperandOff:]))
		binary.LittleEndian.PutUint64(newCode[newOperandOff:], uint64(oldAddr-removed))
	}
	newCode = append(newCode, data...)

	newDebugSym := make(map[int]string, len(debugSym))
	for off, name := range debugSym {
		newDebugSym[remap[off]] = name
	}

	natives := make([]NativeFunc, len(nativeIDs))
	for name, id := range nativeIDs {
		if id >= 0 && id < len(nativeRegistry) {
			if fn, ok := nativeRegistry[name]; ok {
				natives[id] = fn
			}
		}
	}

	return &Executable{Code: newCode, EntryOffset: remap[entryOld], Natives: natives, DebugSymbols: newDebugSym}, errs
}

// elideNops compacts away every NOP instruction within code[:codeEnd]
// (the function-code region; code[codeEnd:] is the data segment and is
// copied by the caller, untouched, since it holds raw bytes rather than
// instructions). It returns the compacted code region and a map from
// every old instruction-start offset (plus the codeEnd boundary itself)
// to its corresponding new offset, so the caller can rewrite jump
// displacements, CALL_UI64 absolute targets, and debug-symbol keys that
// were computed against the pre-elision layout.
func elideNops(code []byte, codeEnd int) ([]byte, map[int]int) {
	remap := make(map[int]int, codeEnd)
	removed := 0
	for i := 0; i < codeEnd; {
		op := Opcode(code[i])
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		remap[i] = i - removed
		if op == OpNOP {
			removed += w
		}
		i += w
	}
	remap[codeEnd] = codeEnd - removed

	out := make([]byte, 0, codeEnd-removed)
	for i := 0; i < codeEnd; {
		op := Opcode(code[i])
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		if op != OpNOP {
			out = append(out, code[i:i+w]...)
		}
		i += w
	}

	// Rewrite every displacement/absolute-target operand still holding a
	// pre-elision value, writing the new value at the instruction's new
	// (post-elision) location in out.
	for i := 0; i < codeEnd; {
		op := Opcode(code[i])
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		newOff := remap[i]
		switch op {
		case OpJMPR_I32:
			oldDisp := int32(binary.LittleEndian.Uint32(code[i+1:]))
			oldTarget := i + w + int(oldDisp)
			newTarget := remap[oldTarget]
			newDisp := int32(newTarget - (newOff + w))
			binary.LittleEndian.PutUint32(out[newOff+1:], uint32(newDisp))
		case OpJRZ_REG_I32, OpJRNZ_REG_I32:
			oldDisp := int32(binary.LittleEndian.Uint32(code[i+2:]))
			oldTarget := i + w + int(oldDisp)
			newTarget := remap[oldTarget]
			newDisp := int32(newTarget - (newOff + w))
			binary.LittleEndian.PutUint32(out[newOff+2:], uint32(newDisp))
		case OpCALL_UI64:
			oldTarget := int(binary.LittleEndian.Uint64(code[i+1:]))
			newTarget := remap[oldTarget]
			binary.LittleEndian.PutUint64(out[newOff+1:], uint64(newTarget))
		}
		i += w
	}

	return out, remap
}

// resolveLocalJumps replaces a function's LBL_UI32 markers with NOPs,
// recording each label id's local byte offset, then rewrites every
// JMPR_I32/JRZ_REG_I32/JRNZ_REG_I32 operand (which codegen left holding
// the target label id) with the signed displacement from the
// instruction immediately following the jump to that label's offset.
func resolveLocalJumps(f *LinkFunction) {
	labelOffset := map[int]int{}
	walk(f.Code, func(offset int, op Opcode) {
		if op != OpLBL {
			return
		}
		id := int(binary.LittleEndian.Uint32(f.Code[offset+1:]))
		labelOffset[id] = offset
		for i := 0; i < OpLBL.Width(); i++ {
			f.Code[offset+i] = byte(OpNOP)
		}
	})

	walk(f.Code, func(offset int, op Opcode) {
		var operandOff int
		switch op {
		case OpJMPR_I32:
			operandOff = offset + 1
		case OpJRZ_REG_I32, OpJRNZ_REG_I32:
			operandOff = offset + 2
		default:
			return
		}
		id := int(int32(binary.LittleEndian.Uint32(f.Code[operandOff:])))
		target, ok := labelOffset[id]
		if !ok {
			return
		}
		afterInstr := offset + op.Width()
		disp := int32(target - afterInstr)
		binary.LittleEndian.PutUint32(f.Code[operandOff:], uint32(disp))
	})
}

// walk visits every instruction's starting offset and opcode in a
// linear bytecode stream, using Opcode.Width to advance.
func walk(code []byte, fn func(offset int, op Opcode)) {
	for i := 0; i < len(code); {
		op := Opcode(code[i])
		fn(i, op)
		w := op.Width()
		if w <= 0 {
			w = 1
		}
		i += w
	}
}
