// Package codegen translates a corevm/coreir.Tree into per-function
// bytecode: register allocation, frame-relative addressing, and the
// full instruction emission table.
package codegen

import (
	"encoding/binary"

	"corevm/cerr"
	"corevm/coreir"
	"corevm/vm"

	"github.com/dolthub/swiss"
)

// Function is one function's compiled bytecode chunk, kept separate
// from every other function until the linker concatenates them, so
// cross-function references stay symbolic ("far labels") until link
// time.
type Function struct {
	Name    string
	LabelID int
	Code    []byte
	// DebugSymbols maps a byte offset within Code to a human-readable
	// name: the callee of the CALL_UI64 site at that offset.
	DebugSymbols map[int]string
	IsNative     bool
	NativeID     int

	// StringPool holds every string literal's raw bytes emitted by this
	// function. StringRelocs maps a byte offset of an MV_REG_UI64
	// operand within Code to an index into StringPool; the linker
	// appends each pool's bytes to the program's data segment and
	// patches the operand to the datum's final absolute address.
	StringPool   [][]byte
	StringRelocs map[int]int
}

// Program is the bytecode generator's output: the _main function plus
// one function per FUNCTION node encountered in the core IR.
type Program struct {
	Functions []*Function
}

// nativeFunctions mirrors vm's fixed native registry.
var nativeFunctions = map[string]int{
	"print":    0,
	"println":  1,
	"load_dll": 2,
	"load_fn":  3,
}

// generator holds whole-program state shared across every function.
type generator struct {
	core *coreir.Tree

	labelCounter  int
	functionLabel *swiss.Map[string, int]

	errs []*cerr.CompileError
}

// Generate compiles a whole-program core IR tree. startLabelID should
// be strictly greater than the highest jump/stack label id the lowerer
// assigned, guaranteeing function-label ids never collide with them.
func Generate(core *coreir.Tree, startLabelID int) (*Program, []*cerr.CompileError) {
	g := &generator{core: core, labelCounter: startLabelID, functionLabel: swiss.NewMap[string, int](8)}

	prog := &Program{}
	root := core.Node(core.Root)

	var mainStmts []coreir.NodeID
	for _, c := range root.Children {
		node := core.Node(c)
		if node.Kind == coreir.FUNCTION {
			fn := g.generateFunction(c)
			prog.Functions = append(prog.Functions, fn)
			continue
		}
		mainStmts = append(mainStmts, c)
	}

	// The module's top-level statements are generated exactly like any
	// other function body, under a synthetic zero-argument entry point
	// with no RET (there is no caller to return to; execution simply
	// falls through to EXIT), so they get the same stack analysis and
	// register-allocation treatment as any user function.
	body := core.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	core.SetChildren(body, mainStmts...)
	mainNode := core.Add(coreir.FUNCTION, coreir.NoNode, coreir.Data{
		Function: coreir.FunctionData{Name: "_main", LocalsSize: core.MainLocalsSize},
	})
	core.SetChildren(mainNode, body)

	mainFn := g.generateFunction(mainNode)
	mainFn.Code = append(mainFn.Code, byte(vm.OpEXIT))

	prog.Functions = append([]*Function{mainFn}, prog.Functions...)

	for name, id := range nativeFunctions {
		prog.Functions = append(prog.Functions, &Function{Name: name, LabelID: -1, IsNative: true, NativeID: id})
	}

	return prog, g.errs
}

// ToVM converts the generated functions into the linker's input shape.
// codegen already imports vm for Opcode, so the conversion lives here
// rather than adding a reverse import from vm back to codegen.
func (p *Program) ToVM() []vm.LinkFunction {
	out := make([]vm.LinkFunction, len(p.Functions))
	for i, f := range p.Functions {
		out[i] = vm.LinkFunction{
			Name:         f.Name,
			LabelID:      f.LabelID,
			Code:         f.Code,
			DebugSymbols: f.DebugSymbols,
			IsNative:     f.IsNative,
			NativeID:     f.NativeID,
			StringPool:   f.StringPool,
			StringRelocs: f.StringRelocs,
		}
	}
	return out
}

func (g *generator) functionLabelID(name string) int {
	if id, ok := g.functionLabel.Get(name); ok {
		return id
	}
	g.labelCounter++
	id := g.labelCounter
	g.functionLabel.Put(name, id)
	return id
}

func (g *generator) fail(node coreir.NodeID, format string, args ...any) {
	g.errs = append(g.errs, cerr.Codegenf(int(node), format, args...))
}

func (g *generator) generateFunction(n coreir.NodeID) *Function {
	node := g.core.Node(n)
	analysis := coreir.AnalyzeFunction(g.core, n)

	fg := newFuncGen(g, g.core, analysis)
	fg.frame = node.Data.Function
	fg.labelID = g.functionLabelID(node.Data.Function.Name)

	fg.emitLabel(fg.labelID)
	allocReg := vm.RetReg
	fg.writeOp(vm.OpSALLOC_REG_UI8)
	fg.writeU8(byte(allocReg))
	fg.writeU8(byte(node.Data.Function.LocalsSize))

	for _, c := range node.Children {
		fg.emit(c)
	}

	return &Function{
		Name:         node.Data.Function.Name,
		LabelID:      fg.labelID,
		Code:         fg.buf,
		DebugSymbols: fg.debugSymbols,
		StringPool:   fg.stringPool,
		StringRelocs: fg.stringRelocs,
	}
}

// le64 / le32 / le16 are little-endian encoders; all multi-byte
// immediates on the wire are little-endian two's-complement.
func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}
