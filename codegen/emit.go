package codegen

import (
	"corevm/ast"
	"corevm/coreir"
	"corevm/vm"
)

// funcGen is per-function emission state: the growing instruction
// buffer, the register bitmap, this function's frame shape, its cached
// stack analysis, and the stack-label → node id table used to resolve
// RELATIVE_OFFSET addressing (pattern-bound names).
type funcGen struct {
	g        *generator
	core     *coreir.Tree
	analysis *coreir.StackAnalysis
	frame    coreir.FunctionData
	labelID  int

	buf          []byte
	regs         registerBitmap
	debugSymbols map[int]string
	stackLabels  map[int]coreir.NodeID

	stringPool   [][]byte
	stringRelocs map[int]int
}

func newFuncGen(g *generator, core *coreir.Tree, analysis *coreir.StackAnalysis) *funcGen {
	return &funcGen{
		g: g, core: core, analysis: analysis,
		debugSymbols: map[int]string{},
		stackLabels:  map[int]coreir.NodeID{},
		stringRelocs: map[int]int{},
	}
}

func (fg *funcGen) writeOp(op vm.Opcode) { fg.buf = append(fg.buf, byte(op)) }
func (fg *funcGen) writeU8(b byte)       { fg.buf = append(fg.buf, b) }
func (fg *funcGen) writeU16(v uint16)    { fg.buf = append(fg.buf, le16(v)...) }
func (fg *funcGen) writeU32(v uint32)    { fg.buf = append(fg.buf, le32(v)...) }
func (fg *funcGen) writeU64(v uint64)    { fg.buf = append(fg.buf, le64(v)...) }

func (fg *funcGen) emitLabel(id int) {
	fg.writeOp(vm.OpLBL)
	fg.writeU32(uint32(id))
}

// emit appends the instructions for one core IR node and its
// descendants.
func (fg *funcGen) emit(n coreir.NodeID) {
	if n == coreir.NoNode {
		return
	}
	node := fg.core.Node(n)

	switch node.Kind {
	case coreir.NOP, coreir.VARIABLE, coreir.PARAM, coreir.DYNAMIC_VARIABLE,
		coreir.DYNAMIC_PARAM, coreir.RELATIVE_OFFSET, coreir.STACK_DATA:
		// Addressing descriptors are only ever consumed as a PUSH/POP's
		// child; they never emit anything directly.

	case coreir.NUMBER:
		r := fg.regs.alloc(fg.g, int(n))
		fg.emitLiteralMove(r, node.Data.Number, node.Data.NumberType)
		fg.writeOp(vm.PushOpcode(node.Data.NumberType.Size()))
		fg.writeU8(r)
		fg.regs.free(r)

	case coreir.BOOLEAN:
		r := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpMV_REG_UI8)
		fg.writeU8(r)
		if node.Data.Bool {
			fg.writeU8(1)
		} else {
			fg.writeU8(0)
		}
		fg.writeOp(vm.OpPUSH8_REG)
		fg.writeU8(r)
		fg.regs.free(r)

	case coreir.STRING:
		// String literal: the datum is appended to the function's own
		// string pool; its absolute address is pushed. Each datum is
		// keyed by its index in that pool.
		fg.emitStringLiteral(node.Data.Str)

	case coreir.TUPLE, coreir.BLOCK:
		for _, c := range node.Children {
			fg.emit(c)
		}

	case coreir.FUNCTION_CALL:
		fg.emitCall(n, node)

	case coreir.REFERENCE:
		// Data.Bool doubles as the referent's isParam flag (set by
		// lower.lowerReference), since REFERENCE carries no dedicated
		// addressing-kind field of its own.
		r := fg.addressOf(n, node.Data.Variable.Offset, node.Data.Variable.Size, node.Data.Bool)
		fg.writeOp(vm.OpPUSH64_REG)
		fg.writeU8(r)
		fg.regs.free(r)

	case coreir.RET:
		fg.emitRet(n, node)

	case coreir.PUSH:
		fg.emitPush(n, node)

	case coreir.POP:
		fg.emitPop(n, node)

	case coreir.STACK_ALLOC:
		fg.writeOp(vm.OpSALLOC_REG_UI8)
		fg.writeU8(vm.RetReg)
		fg.writeU8(byte(node.Data.Size))

	case coreir.STACK_DEALLOC:
		fg.writeOp(vm.OpSDEALLOC_UI8)
		fg.writeU8(byte(node.Data.Size))

	case coreir.JMP:
		fg.writeOp(vm.OpJMPR_I32)
		fg.writeU32(uint32(node.Data.LabelID))

	case coreir.JZ:
		r := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpPOP8_REG)
		fg.writeU8(r)
		fg.writeOp(vm.OpJRZ_REG_I32)
		fg.writeU8(r)
		fg.writeU32(uint32(node.Data.LabelID))
		fg.regs.free(r)

	case coreir.JNZ:
		r := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpPOP8_REG)
		fg.writeU8(r)
		fg.writeOp(vm.OpJRNZ_REG_I32)
		fg.writeU8(r)
		fg.writeU32(uint32(node.Data.LabelID))
		fg.regs.free(r)

	case coreir.LABEL:
		fg.emitLabel(node.Data.LabelID)

	case coreir.STACK_LABEL:
		fg.stackLabels[node.Data.LabelID] = n

	case coreir.NOT:
		fg.emit(node.Children[0])
		r := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpPOP8_REG)
		fg.writeU8(r)
		// NOT is synthesized as XOR against 1 (boolean flip).
		fg.writeOp(vm.OpXOR_REG_REG_UI8)
		fg.writeU8(r)
		fg.writeU8(r)
		fg.writeU8(1)
		fg.writeOp(vm.OpPUSH8_REG)
		fg.writeU8(r)
		fg.regs.free(r)

	default:
		if node.Kind.IsBinaryOp() {
			fg.emitBinaryOp(n, node)
			return
		}
		fg.g.fail(n, "codegen: unknown core IR node kind %s", node.Kind)
	}
}

func (fg *funcGen) emitLiteralMove(r byte, value int64, nt ast.NumberType) {
	switch nt.Size() {
	case 1:
		fg.writeOp(vm.OpMV_REG_UI8)
		fg.writeU8(r)
		fg.writeU8(byte(value))
	case 2:
		fg.writeOp(vm.OpMV_REG_UI16)
		fg.writeU8(r)
		fg.writeU16(uint16(value))
	case 4:
		fg.writeOp(vm.OpMV_REG_UI32)
		fg.writeU8(r)
		fg.writeU32(uint32(value))
	default:
		fg.writeOp(vm.OpMV_REG_UI64)
		fg.writeU8(r)
		fg.writeU64(uint64(value))
	}
}

// emitStringLiteral records s in this function's string pool and emits
// a placeholder absolute load + push; the operand is patched by the
// linker once every function's data segment has a known base address
// (vm.Link resolves StringRelocs the same way it resolves CALL_UI64
// targets).
func (fg *funcGen) emitStringLiteral(s string) {
	idx := len(fg.stringPool)
	fg.stringPool = append(fg.stringPool, []byte(s))

	r := fg.regs.alloc(fg.g, 0)
	fg.writeOp(vm.OpMV_REG_UI64)
	fg.writeU8(r)
	fg.stringRelocs[len(fg.buf)] = idx
	fg.writeU64(0)
	fg.writeOp(vm.OpPUSH64_REG)
	fg.writeU8(r)
	fg.regs.free(r)
}

// addressOf computes the absolute stack address of a VARIABLE/PARAM/
// REFERENCE slot into a freshly allocated register and returns it.
//
// The stack descends, so a frame slot sits x bytes above sp, where x is
// the current analysis depth minus everything at or above the slot.
// Local offsets already include the parameter area (lower.addLocal), so
// a local's delta is simply pre - offset - size; a parameter addition-
// ally sits above the return address and saved frame pointer the CALL
// pushed between the argument area and the callee frame.
func (fg *funcGen) addressOf(n coreir.NodeID, v, s uint32, isParam bool) byte {
	pre := fg.analysis.Pre[n]

	x := pre - v - s
	if isParam {
		x += 2 * vm.ReturnAddrSize
	}

	r := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.OpMV_REG_SP)
	fg.writeU8(r)

	if x != 0 {
		k := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpMV_REG_UI64)
		fg.writeU8(k)
		fg.writeU64(uint64(x))
		fg.writeOp(vm.OpADD_REG_REG_REG)
		fg.writeU8(r)
		fg.writeU8(r)
		fg.writeU8(k)
		fg.regs.free(k)
	}
	return r
}

// emitPush lowers a PUSH core node: compute the source address (or the
// pattern-relative-offset address), load size bytes, push them.
func (fg *funcGen) emitPush(n coreir.NodeID, node *coreir.Node) {
	src := fg.core.Node(node.Children[0])
	size := node.Data.Size

	switch src.Kind {
	case coreir.VARIABLE:
		addr := fg.addressOf(n, src.Data.Variable.Offset, size, false)
		fg.emitLoadAndPush(addr, size)
	case coreir.PARAM:
		addr := fg.addressOf(n, src.Data.Variable.Offset, size, true)
		fg.emitLoadAndPush(addr, size)
	case coreir.DYNAMIC_VARIABLE, coreir.DYNAMIC_PARAM:
		addr := fg.addressOfDynamic(n, src)
		fg.emitLoadAndPush(addr, size)
	case coreir.RELATIVE_OFFSET:
		addr := fg.addressOfRelative(n, src.Data.Relative)
		fg.emitLoadAndPush(addr, size)
	default:
		fg.g.fail(n, "codegen: PUSH from unsupported source kind %s", src.Kind)
	}
}

// chunkPlan decomposes size bytes into the same greedy 8/4/2/1 chunk
// sequence emitPopAndStore writes with, returning the chunk sizes only;
// callers track each chunk's byte offset from the base address themselves.
func chunkPlan(size uint32) []uint32 {
	var chunks []uint32
	remaining := size
	for _, chunk := range []uint32{8, 4, 2, 1} {
		for remaining >= chunk {
			chunks = append(chunks, chunk)
			remaining -= chunk
		}
	}
	return chunks
}

// emitLoadAndPush copies size bytes starting at addr onto the operand
// stack. emitPopAndStore (below) writes a multi-chunk value by popping
// the stack's topmost chunk first into the lowest offset, working
// toward the highest offset for the value's deepest (earliest-pushed)
// chunk — so reconstructing the original push order here requires
// walking the same chunk plan back to front: load the highest-offset
// (deepest/earliest) chunk first and push it first, ending with the
// lowest-offset (topmost/latest) chunk pushed last, back on top.
// Getting this backwards silently reverses the field order of any
// value wider than 8 bytes (e.g. a tuple) every time it round-trips
// through a variable, while leaving single-chunk (<=8 byte) values
// unaffected — which is why it only surfaces on composite types.
func (fg *funcGen) emitLoadAndPush(addr byte, size uint32) {
	plan := chunkPlan(size)
	offsets := make([]uint32, len(plan))
	off := uint32(0)
	for i, chunk := range plan {
		offsets[i] = off
		off += chunk
	}

	for i := len(plan) - 1; i >= 0; i-- {
		chunk := plan[i]
		cur := fg.addrPlusOffset(addr, offsets[i])
		v := fg.regs.alloc(fg.g, 0)
		fg.writeOp(vm.MoveRegLocOpcode(chunk))
		fg.writeU8(v)
		fg.writeU8(cur)
		fg.writeOp(vm.PushOpcode(chunk))
		fg.writeU8(v)
		fg.regs.free(v)
		fg.regs.free(cur)
	}
	fg.regs.free(addr)
}

// addrPlusOffset returns a fresh register holding addr+offset without
// mutating addr, so emitLoadAndPush can address every chunk of a
// multi-chunk value off the same base register in any order.
func (fg *funcGen) addrPlusOffset(addr byte, offset uint32) byte {
	r := fg.regs.alloc(fg.g, 0)
	if offset == 0 {
		fg.writeOp(vm.OpMV64_REG_REG)
		fg.writeU8(r)
		fg.writeU8(addr)
		return r
	}
	fg.writeOp(vm.OpMV_REG_UI64)
	fg.writeU8(r)
	fg.writeU64(uint64(offset))
	fg.writeOp(vm.OpADD_REG_REG_REG)
	fg.writeU8(r)
	fg.writeU8(r)
	fg.writeU8(addr)
	return r
}

// advanceAddr bumps an address register by delta bytes, for chunked
// multi-word moves.
func (fg *funcGen) advanceAddr(addr byte, delta uint32) byte {
	k := fg.regs.alloc(fg.g, 0)
	fg.writeOp(vm.OpMV_REG_UI64)
	fg.writeU8(k)
	fg.writeU64(uint64(delta))
	fg.writeOp(vm.OpADD_REG_REG_REG)
	fg.writeU8(addr)
	fg.writeU8(addr)
	fg.writeU8(k)
	fg.regs.free(k)
	return addr
}

func (fg *funcGen) emitPop(n coreir.NodeID, node *coreir.Node) {
	var target *coreir.Node
	if len(node.Children) > 0 {
		// POP's single child is a pure addressing descriptor; it never
		// emits instructions of its own.
		target = fg.core.Node(node.Children[0])
	}
	size := node.Data.Size

	if target == nil || (target.Kind != coreir.VARIABLE && target.Kind != coreir.PARAM &&
		target.Kind != coreir.DYNAMIC_VARIABLE && target.Kind != coreir.DYNAMIC_PARAM) {
		// Plain POP with no addressed destination: value is simply
		// discarded from the stack (the lowerer builds one only for an
		// assignment to an unknown variable, after recording the
		// error). Pop scalar chunks.
		fg.discardTop(size)
		return
	}

	var addr byte
	switch target.Kind {
	case coreir.VARIABLE:
		addr = fg.addressOf(n, target.Data.Variable.Offset, size, false)
	case coreir.PARAM:
		addr = fg.addressOf(n, target.Data.Variable.Offset, size, true)
	case coreir.DYNAMIC_VARIABLE, coreir.DYNAMIC_PARAM:
		addr = fg.addressOfDynamic(n, target)
	}
	fg.emitPopAndStore(addr, size)
}

func (fg *funcGen) discardTop(size uint32) {
	remaining := size
	for _, chunk := range []uint32{8, 4, 2, 1} {
		for remaining >= chunk {
			v := fg.regs.alloc(fg.g, 0)
			fg.writeOp(vm.PopOpcode(chunk))
			fg.writeU8(v)
			fg.regs.free(v)
			remaining -= chunk
		}
	}
}

func (fg *funcGen) emitPopAndStore(addr byte, size uint32) {
	// Values are stored highest-chunk-first directly from the top of
	// the stack; addr is advanced forward for every chunk after the
	// first so multi-word pops land contiguously, mirroring
	// emitLoadAndPush's layout.
	remaining := size
	cur := addr
	for _, chunk := range []uint32{8, 4, 2, 1} {
		for remaining >= chunk {
			v := fg.regs.alloc(fg.g, 0)
			fg.writeOp(vm.PopOpcode(chunk))
			fg.writeU8(v)
			fg.writeOp(vm.MoveLocRegOpcode(chunk))
			fg.writeU8(cur)
			fg.writeU8(v)
			fg.regs.free(v)
			remaining -= chunk
			if remaining > 0 {
				cur = fg.advanceAddr(cur, chunk)
			}
		}
	}
	fg.regs.free(addr)
}

// addressOfDynamic computes a[i]'s runtime address: the 8-byte byte
// offset is already on top of the stack (pushed by a preceding sibling
// statement), so it is popped first, then subtracted from element 0's
// address. Elements were pushed in order onto the descending stack, so
// element 0 occupies the slot's highest addresses and successive
// elements sit below it.
func (fg *funcGen) addressOfDynamic(n coreir.NodeID, dyn *coreir.Node) byte {
	idx := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.OpPOP64_REG)
	fg.writeU8(idx)

	// Pre counts the index bytes the POP64 above just consumed.
	pre := fg.analysis.Pre[n] - 8
	v, elem := dyn.Data.Variable.Offset, dyn.Data.Variable.Size

	// Element 0's address falls out of the slot formula with the element
	// size in place of the slot size.
	x := pre - v - elem
	if dyn.Kind == coreir.DYNAMIC_PARAM {
		x += 2 * vm.ReturnAddrSize
	}

	base := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.OpMV_REG_SP)
	fg.writeU8(base)
	if x != 0 {
		k := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpMV_REG_UI64)
		fg.writeU8(k)
		fg.writeU64(uint64(x))
		fg.writeOp(vm.OpADD_REG_REG_REG)
		fg.writeU8(base)
		fg.writeU8(base)
		fg.writeU8(k)
		fg.regs.free(k)
	}
	fg.writeOp(vm.OpSUB_REG_REG_REG)
	fg.writeU8(base)
	fg.writeU8(base)
	fg.writeU8(idx)
	fg.regs.free(idx)
	return base
}

// addressOfRelative resolves a pattern-bound name's address relative to
// the stack label captured when its match subject was pushed. Delta is
// the cumulative depth (in bytes past the label) through the end of the
// addressed field, so the field's lowest address sits
// pre - base - Delta bytes above sp.
func (fg *funcGen) addressOfRelative(n coreir.NodeID, rel coreir.RelativeOffsetData) byte {
	lblNode, ok := fg.stackLabels[rel.StackLabel]
	var base uint32
	if ok {
		base = fg.analysis.Pre[lblNode]
	}
	pre := fg.analysis.Pre[n]
	x := pre - base - uint32(rel.Delta)

	r := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.OpMV_REG_SP)
	fg.writeU8(r)
	if x != 0 {
		k := fg.regs.alloc(fg.g, int(n))
		fg.writeOp(vm.OpMV_REG_UI64)
		fg.writeU8(k)
		fg.writeU64(uint64(x))
		fg.writeOp(vm.OpADD_REG_REG_REG)
		fg.writeU8(r)
		fg.writeU8(r)
		fg.writeU8(k)
		fg.regs.free(k)
	}
	return r
}

// emitCall lowers a FUNCTION_CALL: snapshot and save live caller-saved
// temporaries, push argument code, CALL_UI64, restore temporaries, and
// push the result if it is register-sized.
func (fg *funcGen) emitCall(n coreir.NodeID, node *coreir.Node) {
	live := fg.regs.snapshotCallerSaved()
	for _, r := range live {
		fg.writeOp(vm.OpPUSH64_REG)
		fg.writeU8(r)
	}

	for _, c := range node.Children {
		fg.emit(c)
	}

	id := fg.g.functionLabelID(node.Data.Call.Name)
	fg.debugSymbols[len(fg.buf)] = node.Data.Call.Name
	fg.writeOp(vm.OpCALL_UI64)
	fg.writeU64(uint64(id))

	for i := len(live) - 1; i >= 0; i-- {
		fg.writeOp(vm.OpPOP64_REG)
		fg.writeU8(live[i])
	}

	switch node.Data.Call.OutSize {
	case 1, 2, 4, 8:
		fg.writeOp(vm.PushOpcode(node.Data.Call.OutSize))
		fg.writeU8(vm.RetReg)
	}
}

func (fg *funcGen) emitRet(n coreir.NodeID, node *coreir.Node) {
	fg.emit(node.Children[0])
	switch node.Data.Return.OutSize {
	case 0:
	case 1, 2, 4, 8:
		fg.writeOp(vm.PopOpcode(node.Data.Return.OutSize))
		fg.writeU8(vm.RetReg)
	default:
		// The calling convention only carries a result home through
		// RetReg when it is a register-transferable width; anything else
		// has nowhere defined to go (callers only ever PUSH RetReg for
		// such sizes, per emitCall). Rather than silently popping the
		// wrong number of bytes, fail the compile the same way register
		// exhaustion does.
		fg.g.fail(n, "codegen: function result of %d bytes does not fit the RetReg calling convention", node.Data.Return.OutSize)
	}
	fg.writeOp(vm.OpSDEALLOC_UI8)
	fg.writeU8(byte(fg.frame.LocalsSize))
	fg.writeOp(vm.OpRET_UI8)
	fg.writeU8(byte(node.Data.Return.InSize))
}

// emitBinaryOp: lower LHS, lower RHS, pop both (LHS then RHS, LIFO),
// apply the operator, push the result.
func (fg *funcGen) emitBinaryOp(n coreir.NodeID, node *coreir.Node) {
	fg.emit(node.Children[0])
	fg.emit(node.Children[1])

	lhsSize := fg.sizeOfSubtree(node.Children[0])
	rhsSize := fg.sizeOfSubtree(node.Children[1])
	resultSize := lhsSize
	if rhsSize > resultSize {
		resultSize = rhsSize
	}

	rhsReg := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.PopOpcode(rhsSize))
	fg.writeU8(rhsReg)
	lhsReg := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(vm.PopOpcode(lhsSize))
	fg.writeU8(lhsReg)

	dst := fg.regs.alloc(fg.g, int(n))
	fg.writeOp(binOpcode(node.Kind))
	fg.writeU8(dst)
	fg.writeU8(lhsReg)
	fg.writeU8(rhsReg)
	fg.regs.free(lhsReg)
	fg.regs.free(rhsReg)

	pushSize := uint32(1)
	if node.Kind.IsArithmetic() {
		pushSize = resultSize
	}
	fg.writeOp(vm.PushOpcode(pushSize))
	fg.writeU8(dst)
	fg.regs.free(dst)
}

// sizeOfSubtree returns the post-depth minus pre-depth of a BLOCK
// wrapping a single operand — i.e. how many bytes it left on the stack.
func (fg *funcGen) sizeOfSubtree(n coreir.NodeID) uint32 {
	return fg.analysis.Post[n] - fg.analysis.Pre[n]
}

func binOpcode(k coreir.Kind) vm.Opcode {
	switch k {
	case coreir.ADD:
		return vm.OpADD_REG_REG_REG
	case coreir.SUB:
		return vm.OpSUB_REG_REG_REG
	case coreir.MUL:
		return vm.OpMUL_REG_REG_REG
	case coreir.DIV:
		return vm.OpDIV_REG_REG_REG
	case coreir.MOD:
		return vm.OpMOD_REG_REG_REG
	case coreir.EQ:
		return vm.OpEQ_REG_REG_REG
	case coreir.GT:
		return vm.OpGT_REG_REG_REG
	case coreir.GTE:
		return vm.OpGTE_REG_REG_REG
	case coreir.LT:
		return vm.OpLT_REG_REG_REG
	case coreir.LTE:
		return vm.OpLTE_REG_REG_REG
	case coreir.AND:
		return vm.OpAND_REG_REG_REG
	case coreir.OR:
		return vm.OpOR_REG_REG_REG
	default:
		return vm.OpNOP
	}
}
