package lower

import (
	"fmt"

	"corevm/ast"
	"corevm/cerr"
	"corevm/coreir"
)

// Lowerer holds the whole-program state shared across functions: the
// output tree under construction, the program-global label/stack-label
// counters (label ids must never collide across functions), and the
// stack of contexts (at most two deep in practice: the module-level
// context plus the one function being lowered, since the language has
// no nested function literals; modeled as a stack for symmetry with
// save/restore on Function entry).
type Lowerer struct {
	src *ast.Tree
	dst *coreir.Tree

	ctxStack   []*funcContext
	labelID    int
	stackLabel int

	// patternScopes maps a pattern-bound identifier to where its value
	// lives relative to a match subject's stack label, for the
	// currently-open match expressions (innermost last).
	patternScopes []map[string]coreir.RelativeOffsetData

	errs []*cerr.CompileError
}

// Lower runs the lowerer over a fully resolved/typechecked external AST
// and returns the resulting core IR tree. Errors are accumulated, not
// fatal per-node: a best-effort core IR is still returned so callers can
// report every problem in one pass, failing the compile as a whole
// rather than on the first node visited.
func Lower(src *ast.Tree) (*coreir.Tree, []*cerr.CompileError) {
	l := &Lowerer{src: src, dst: &coreir.Tree{}}
	l.ctxStack = append(l.ctxStack, newFuncContext())
	root := l.lowerModule(src.Root)
	l.dst.Root = root
	l.dst.MainLocalsSize = l.ctx().localsSize
	return l.dst, l.errs
}

func (l *Lowerer) fail(node ast.NodeID, format string, args ...any) {
	l.errs = append(l.errs, cerr.Lowerf(int(node), format, args...))
}

func (l *Lowerer) ctx() *funcContext {
	return l.ctxStack[len(l.ctxStack)-1]
}

// typeAt returns the resolved type for id, or the zero Type for a node
// that carries none (statements, unannotated builder nodes).
func (l *Lowerer) typeAt(id ast.TypeID) ast.Type {
	if id < 0 || int(id) >= len(l.src.Types) {
		return ast.Type{}
	}
	return l.src.Types[id]
}

func (l *Lowerer) nextLabel() int {
	l.labelID++
	return l.labelID
}

func (l *Lowerer) nextStackLabel() int {
	l.stackLabel++
	return l.stackLabel
}

// lowerModule lowers the top-level tree, which is a Block of statements
// (declarations, functions, module/import/export no-ops).
func (l *Lowerer) lowerModule(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	var children []coreir.NodeID
	for _, c := range node.Children {
		srcChild := l.src.Node(c)
		if srcChild.Kind == ast.TypeDefinition {
			// Each sum variant becomes its own FUNCTION, spliced in as a
			// direct sibling of every other top-level statement — not
			// wrapped in a nested BLOCK — because codegen.Generate only
			// ever looks one level into root.Children for FUNCTION kind
			// nodes to split off as their own callable chunks; anything
			// nested inside a BLOCK is instead treated as _main's body.
			children = append(children, l.lowerTypeDefinitionFunctions(c)...)
			continue
		}
		if id, ok := l.lowerStatement(c); ok {
			children = append(children, id)
		}
	}
	l.dst.SetChildren(out, children...)
	return out
}

// lowerStatement lowers one top-level or block statement; deallocating
// any stack bytes its result leaves behind is up to the caller
// (lowerBlock). ok is false for no-op nodes
// (module/import/export) that contribute no core IR node.
func (l *Lowerer) lowerStatement(n ast.NodeID) (coreir.NodeID, bool) {
	node := l.src.Node(n)
	switch node.Kind {
	case ast.ModuleDeclaration, ast.ImportDeclaration, ast.Export:
		return coreir.NoNode, false
	case ast.Function:
		return l.lowerFunction(n), true
	case ast.TypeDefinition:
		// Handled by lowerModule directly (see lowerTypeDefinitionFunctions):
		// a type definition splices zero or more sibling FUNCTION nodes in
		// rather than contributing a single id the way every other
		// statement kind does.
		return coreir.NoNode, false
	default:
		return l.lowerExpr(n), true
	}
}

// lowerExpr dispatches on every expression-producing ast.Kind.
func (l *Lowerer) lowerExpr(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	switch node.Kind {
	case ast.NumberLiteral:
		return l.dst.Add(coreir.NUMBER, coreir.NoNode, coreir.Data{
			Number: node.Data.Number, NumberType: node.Data.NumberType,
		})
	case ast.BooleanLiteral:
		return l.dst.Add(coreir.BOOLEAN, coreir.NoNode, coreir.Data{Bool: node.Data.Bool})
	case ast.StringLiteral:
		return l.dst.Add(coreir.STRING, coreir.NoNode, coreir.Data{Str: node.Data.Str})
	case ast.Identifier:
		return l.lowerIdentifierRead(n)
	case ast.Assignment:
		return l.lowerAssignment(n)
	case ast.Tuple:
		return l.lowerTuple(n)
	case ast.Block:
		return l.lowerBlock(n)
	case ast.FunctionCall:
		return l.lowerCall(n)
	case ast.Declaration:
		return l.lowerDeclaration(n)
	case ast.IfStatement:
		return l.lowerIf(n)
	case ast.WhileLoop:
		return l.lowerWhile(n)
	case ast.Match:
		return l.lowerMatch(n)
	case ast.ArrayValue:
		return l.lowerArrayValue(n)
	case ast.Reference:
		return l.lowerReference(n)
	default:
		if node.Kind.IsBinaryOp() {
			return l.lowerBinaryOp(n)
		}
		l.fail(n, "lower: unhandled ast kind %s", node.Kind)
		return l.dst.Add(coreir.NOP, coreir.NoNode, coreir.Data{})
	}
}

// lowerAssignment: lower the RHS, then POP sized to the target's slot.
func (l *Lowerer) lowerAssignment(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	target, rhs := node.Children[0], node.Children[1]
	rhsID := l.lowerExpr(rhs)

	targetNode := l.src.Node(target)
	if targetNode.Kind == ast.Reference {
		// a[i] = v : dynamic target. The index must already be on top
		// of the stack (above rhs) by the time POP runs, so its
		// multiply-by-element-size is lowered as a statement preceding
		// the POP rather than as the POP's own child.
		indexStmt, dyn, size := l.lowerDynamicTarget(target)
		pop := l.dst.Add(coreir.POP, coreir.NoNode, coreir.Data{Size: size})
		l.dst.SetSize(pop, size)
		l.dst.SetChildren(pop, dyn)

		block := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(block, rhsID, indexStmt, pop)
		return block
	}

	slot, ok := l.ctx().vars[targetNode.Data.Name]
	if !ok {
		l.fail(target, "lower: assignment to unknown variable %q", targetNode.Data.Name)
		pop := l.dst.Add(coreir.POP, coreir.NoNode, coreir.Data{})
		block := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(block, rhsID, pop)
		return block
	}

	addrKind := coreir.VARIABLE
	if slot.isParam {
		addrKind = coreir.PARAM
	}
	addr := l.dst.Add(addrKind, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: slot.size}})

	pop := l.dst.Add(coreir.POP, coreir.NoNode, coreir.Data{Size: slot.size})
	l.dst.SetSize(pop, slot.size)
	l.dst.SetChildren(pop, addr)

	block := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	l.dst.SetChildren(block, rhsID, pop)
	return block
}

func (l *Lowerer) lowerTuple(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	out := l.dst.Add(coreir.TUPLE, coreir.NoNode, coreir.Data{})
	children := make([]coreir.NodeID, len(node.Children))
	for i, c := range node.Children {
		children[i] = l.lowerExpr(c)
	}
	l.dst.SetChildren(out, children...)
	return out
}

// lowerBlock lowers a Block's statements, deallocating any statement's
// stack contribution that is not the final BlockResult value.
func (l *Lowerer) lowerBlock(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	var children []coreir.NodeID

	for i, c := range node.Children {
		cNode := l.src.Node(c)
		isLast := i == len(node.Children)-1

		if cNode.Kind == ast.BlockResult {
			valueID := l.lowerExpr(cNode.Children[0])
			children = append(children, valueID)
			continue
		}

		id := l.lowerExpr(c)
		children = append(children, id)

		if isLast {
			continue
		}
		if size := ast.SizeOf(l.src.Types, cNode.TypeScope); size > 0 {
			dealloc := l.dst.Add(coreir.STACK_DEALLOC, coreir.NoNode, coreir.Data{Size: size})
			l.dst.SetSize(dealloc, size)
			children = append(children, dealloc)
		}
	}

	l.dst.SetChildren(out, children...)
	return out
}

func (l *Lowerer) lowerFunction(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	l.ctxStack = append(l.ctxStack, newFuncContext())
	defer func() { l.ctxStack = l.ctxStack[:len(l.ctxStack)-1] }()

	fnType := l.typeAt(node.TypeScope)

	out := l.dst.Add(coreir.FUNCTION, coreir.NoNode, coreir.Data{})

	// Parameters are the function's own children save for the last
	// (body); by convention params are Declaration-less Identifier
	// nodes carrying their resolved parameter type in their own TypeScope.
	paramCount := len(node.Children) - 1
	for i := 0; i < paramCount; i++ {
		pNode := l.src.Node(node.Children[i])
		size := ast.SizeOf(l.src.Types, pNode.TypeScope)
		l.ctx().addParam(pNode.Data.Name, size)
	}

	bodyID := l.lowerExpr(node.Children[len(node.Children)-1])

	var outSize uint32
	if len(fnType.Results) > 0 {
		outSize = ast.SizeOf(l.src.Types, fnType.Results[len(fnType.Results)-1])
	}

	ret := l.dst.Add(coreir.RET, coreir.NoNode, coreir.Data{
		Return: coreir.ReturnData{InSize: l.ctx().paramSize, OutSize: outSize, FrameSize: l.ctx().paramSize + l.ctx().localsSize},
	})
	l.dst.SetChildren(ret, bodyID)

	l.dst.Node(out).Data.Function = coreir.FunctionData{
		Name:       node.Data.Name,
		InSize:     l.ctx().paramSize,
		OutSize:    outSize,
		LocalsSize: l.ctx().localsSize,
	}
	l.dst.SetChildren(out, ret)
	return out
}

// lowerDeclaration: `let lhs : T = rhs`. Tuple-bound lhs allocates one
// local per element and pops right-to-left (rightmost is on top of
// stack).
func (l *Lowerer) lowerDeclaration(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	lhs, rhs := node.Children[0], node.Children[1]
	rhsID := l.lowerExpr(rhs)

	lhsNode := l.src.Node(lhs)
	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	children := []coreir.NodeID{rhsID}

	if lhsNode.Kind == ast.Tuple {
		names := lhsNode.Children
		rhsType := l.typeAt(l.src.Node(rhs).TypeScope)
		for i := len(names) - 1; i >= 0; i-- {
			nameNode := l.src.Node(names[i])
			var fieldType ast.TypeID = ast.NoType
			if rhsType.Kind == ast.TypeKindTuple && i < len(rhsType.Fields) {
				fieldType = rhsType.Fields[i]
			}
			size := ast.SizeOf(l.src.Types, fieldType)
			slot := l.ctx().addLocal(nameNode.Data.Name, size)
			addr := l.dst.Add(coreir.VARIABLE, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: slot.size}})
			pop := l.dst.Add(coreir.POP, coreir.NoNode, coreir.Data{Size: size})
			l.dst.SetSize(pop, size)
			l.dst.SetChildren(pop, addr)
			children = append(children, pop)
		}
	} else {
		size := ast.SizeOf(l.src.Types, lhsNode.TypeScope)
		slot := l.ctx().addLocal(lhsNode.Data.Name, size)
		addr := l.dst.Add(coreir.VARIABLE, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: slot.size}})
		pop := l.dst.Add(coreir.POP, coreir.NoNode, coreir.Data{Size: size})
		l.dst.SetSize(pop, size)
		l.dst.SetChildren(pop, addr)
		children = append(children, pop)
	}

	l.dst.SetChildren(out, children...)
	return out
}

// lowerIf: shared after-label; each (test, body) arm gets its own
// false-label; else is the last body with no leading test.
func (l *Lowerer) lowerIf(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	after := l.nextLabel()
	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	var children []coreir.NodeID

	// Children are laid out as alternating (test, body) pairs, with an
	// optional trailing else-body (odd count).
	i := 0
	for i+1 < len(node.Children) {
		test, body := node.Children[i], node.Children[i+1]
		testID := l.lowerExpr(test)
		children = append(children, testID)

		falseLabel := l.nextLabel()
		jz := l.dst.Add(coreir.JZ, coreir.NoNode, coreir.Data{LabelID: falseLabel})
		children = append(children, jz)

		bodyID := l.lowerExpr(body)
		children = append(children, bodyID)

		jmp := l.dst.Add(coreir.JMP, coreir.NoNode, coreir.Data{LabelID: after})
		children = append(children, jmp)

		lbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: falseLabel})
		children = append(children, lbl)

		i += 2
	}
	if i < len(node.Children) {
		elseID := l.lowerExpr(node.Children[i])
		children = append(children, elseID)
	}

	afterLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: after})
	children = append(children, afterLbl)

	l.dst.SetChildren(out, children...)
	return out
}

func (l *Lowerer) lowerWhile(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	test, body := node.Children[0], node.Children[1]

	testLabelID := l.nextLabel()
	afterLabelID := l.nextLabel()

	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})

	testLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: testLabelID})
	testID := l.lowerExpr(test)
	jz := l.dst.Add(coreir.JZ, coreir.NoNode, coreir.Data{LabelID: afterLabelID})
	bodyID := l.lowerExpr(body)
	jmp := l.dst.Add(coreir.JMP, coreir.NoNode, coreir.Data{LabelID: testLabelID})
	afterLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: afterLabelID})

	l.dst.SetChildren(out, testLbl, testID, jz, bodyID, jmp, afterLbl)
	return out
}

// lowerIdentifierRead emits a PUSH sourced from VARIABLE/PARAM, or from
// a RELATIVE_OFFSET if the name is currently pattern-bound.
func (l *Lowerer) lowerIdentifierRead(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	size := ast.SizeOf(l.src.Types, node.TypeScope)

	for i := len(l.patternScopes) - 1; i >= 0; i-- {
		if rel, ok := l.patternScopes[i][node.Data.Name]; ok {
			src := l.dst.Add(coreir.RELATIVE_OFFSET, coreir.NoNode, coreir.Data{Relative: rel})
			push := l.dst.Add(coreir.PUSH, coreir.NoNode, coreir.Data{Size: size})
			l.dst.SetChildren(push, src)
			l.dst.SetSize(push, size)
			return push
		}
	}

	slot, ok := l.ctx().vars[node.Data.Name]
	if !ok {
		l.fail(n, "lower: read of unknown variable %q", node.Data.Name)
		slot = varSlot{}
	}
	addrKind := coreir.VARIABLE
	if slot.isParam {
		addrKind = coreir.PARAM
	}
	src := l.dst.Add(addrKind, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: size}})
	push := l.dst.Add(coreir.PUSH, coreir.NoNode, coreir.Data{Size: size})
	l.dst.SetChildren(push, src)
	l.dst.SetSize(push, size)
	return push
}

func (l *Lowerer) lowerArrayValue(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	out := l.dst.Add(coreir.TUPLE, coreir.NoNode, coreir.Data{})
	children := make([]coreir.NodeID, len(node.Children))
	for i, c := range node.Children {
		children[i] = l.lowerExpr(c)
	}
	l.dst.SetChildren(out, children...)
	return out
}

// lowerReference handles both uses of ast.Reference: 1 child is
// address-of, 2 children (base, index) is array access a[i].
func (l *Lowerer) lowerReference(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	if len(node.Children) == 2 {
		indexStmt, dyn, size := l.lowerDynamicTarget(n)
		push := l.dst.Add(coreir.PUSH, coreir.NoNode, coreir.Data{Size: size})
		l.dst.SetChildren(push, dyn)
		l.dst.SetSize(push, size)

		block := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(block, indexStmt, push)
		return block
	}

	referent := l.src.Node(node.Children[0])
	slot, ok := l.ctx().vars[referent.Data.Name]
	if !ok {
		l.fail(n, "lower: reference to unknown variable %q", referent.Data.Name)
	}
	ref := l.dst.Add(coreir.REFERENCE, coreir.NoNode, coreir.Data{
		Variable: coreir.VariableData{Offset: slot.offset, Size: slot.size},
		Bool:     slot.isParam,
	})
	return ref
}

// lowerDynamicTarget lowers `a[i]`'s addressing. It returns a statement
// that must execute immediately before the PUSH/POP that uses the
// result (leaving an 8-byte byte offset on top of the stack for the
// dynamic PUSH/POP to consume), a leaf DYNAMIC_VARIABLE/
// DYNAMIC_PARAM descriptor node (addressing info only, no children) to
// use as that PUSH/POP's single child, and the element's byte size.
// Shared by reads (lowerReference) and writes (lowerAssignment's
// dynamic-target path).
func (l *Lowerer) lowerDynamicTarget(n ast.NodeID) (coreir.NodeID, coreir.NodeID, uint32) {
	node := l.src.Node(n)
	base, index := node.Children[0], node.Children[1]
	baseNode := l.src.Node(base)

	elemSize := ast.SizeOf(l.src.Types, node.TypeScope)

	indexID := l.lowerExpr(index)
	litSize := l.dst.Add(coreir.NUMBER, coreir.NoNode, coreir.Data{Number: int64(elemSize), NumberType: ast.UI64})
	mulBlock := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	litBlock := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	l.dst.SetChildren(mulBlock, indexID)
	l.dst.SetChildren(litBlock, litSize)
	mul := l.dst.Add(coreir.MUL, coreir.NoNode, coreir.Data{})
	l.dst.SetChildren(mul, mulBlock, litBlock)

	slot, ok := l.ctx().vars[baseNode.Data.Name]
	if !ok {
		l.fail(n, "lower: array access to unknown variable %q", baseNode.Data.Name)
	}
	dynKind := coreir.DYNAMIC_VARIABLE
	if slot.isParam {
		dynKind = coreir.DYNAMIC_PARAM
	}
	dyn := l.dst.Add(dynKind, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: elemSize}})
	return mul, dyn, elemSize
}

// lowerCall lowers a function call's argument expressions (pushed
// left-to-right) followed by a FUNCTION_CALL node.
func (l *Lowerer) lowerCall(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	callee := l.src.Node(node.Children[0])
	args := node.Children[1:]

	fnType := l.typeAt(callee.TypeScope)
	var inSize, outSize uint32
	for _, p := range fnType.Params {
		inSize += ast.SizeOf(l.src.Types, p)
	}
	if len(fnType.Results) > 0 {
		outSize = ast.SizeOf(l.src.Types, fnType.Results[len(fnType.Results)-1])
	}

	out := l.dst.Add(coreir.FUNCTION_CALL, coreir.NoNode, coreir.Data{
		Call: coreir.CallData{Name: callee.Data.Name, InSize: inSize, OutSize: outSize},
		Size: outSize,
	})
	l.dst.SetSize(out, outSize)

	children := make([]coreir.NodeID, len(args))
	for i, a := range args {
		children[i] = l.lowerExpr(a)
	}
	l.dst.SetChildren(out, children...)
	return out
}

// lowerBinaryOp handles arithmetic/comparison operators uniformly, and
// special-cases AND/OR for short-circuit evaluation.
func (l *Lowerer) lowerBinaryOp(n ast.NodeID) coreir.NodeID {
	node := l.src.Node(n)
	kind := astKindToCoreKind(node.Kind)

	if kind == coreir.AND || kind == coreir.OR {
		return l.lowerShortCircuit(n, kind)
	}

	lhsID := l.wrapInBlock(node.Children[0])
	rhsID := l.wrapInBlock(node.Children[1])
	out := l.dst.Add(kind, coreir.NoNode, coreir.Data{})
	l.dst.SetChildren(out, lhsID, rhsID)
	return out
}

func (l *Lowerer) lowerShortCircuit(n ast.NodeID, kind coreir.Kind) coreir.NodeID {
	node := l.src.Node(n)
	lhsID := l.wrapInBlock(node.Children[0])

	shortLabel := l.nextLabel()
	afterLabel := l.nextLabel()

	out := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})

	var jumpKind coreir.Kind
	var shortValue bool
	if kind == coreir.AND {
		jumpKind = coreir.JZ
		shortValue = false
	} else {
		jumpKind = coreir.JNZ
		shortValue = true
	}

	jump := l.dst.Add(jumpKind, coreir.NoNode, coreir.Data{LabelID: shortLabel})
	rhsID := l.wrapInBlock(node.Children[1])
	jmp := l.dst.Add(coreir.JMP, coreir.NoNode, coreir.Data{LabelID: afterLabel})
	shortLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: shortLabel})
	shortPush := l.dst.Add(coreir.BOOLEAN, coreir.NoNode, coreir.Data{Bool: shortValue})
	afterLbl := l.dst.Add(coreir.LABEL, coreir.NoNode, coreir.Data{LabelID: afterLabel})

	l.dst.SetChildren(out, lhsID, jump, rhsID, jmp, shortLbl, shortPush, afterLbl)
	return out
}

func (l *Lowerer) wrapInBlock(n ast.NodeID) coreir.NodeID {
	id := l.lowerExpr(n)
	block := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
	l.dst.SetChildren(block, id)
	return block
}

func astKindToCoreKind(k ast.Kind) coreir.Kind {
	switch k {
	case ast.Add:
		return coreir.ADD
	case ast.Sub:
		return coreir.SUB
	case ast.Mul:
		return coreir.MUL
	case ast.Div:
		return coreir.DIV
	case ast.Mod:
		return coreir.MOD
	case ast.Eq:
		return coreir.EQ
	case ast.Gt:
		return coreir.GT
	case ast.Gte:
		return coreir.GTE
	case ast.Lt:
		return coreir.LT
	case ast.Lte:
		return coreir.LTE
	case ast.And:
		return coreir.AND
	case ast.Or:
		return coreir.OR
	default:
		panic(fmt.Sprintf("lower: %s is not a binary operator", k))
	}
}

// lowerTypeDefinitionFunctions generates one synthetic FUNCTION per sum
// variant, each taking the variant's payload on the stack and returning
// a (tag, payload) product. Returned directly as a slice of sibling
// FUNCTION ids (never wrapped in a BLOCK) so lowerModule can splice them
// in next to every other top-level FUNCTION — codegen.Generate only
// looks one level into root.Children for FUNCTION-kind nodes.
func (l *Lowerer) lowerTypeDefinitionFunctions(n ast.NodeID) []coreir.NodeID {
	node := l.src.Node(n)
	sumType := l.typeAt(node.TypeScope)
	var fns []coreir.NodeID

	if sumType.Kind != ast.TypeKindSum {
		return nil
	}

	maxPayload := uint32(0)
	for _, f := range sumType.Fields {
		if sz := ast.SizeOf(l.src.Types, f); sz > maxPayload {
			maxPayload = sz
		}
	}

	for i, payloadType := range sumType.Fields {
		l.ctxStack = append(l.ctxStack, newFuncContext())
		payloadSize := ast.SizeOf(l.src.Types, payloadType)
		slot := l.ctx().addParam("payload", payloadSize)

		fn := l.dst.Add(coreir.FUNCTION, coreir.NoNode, coreir.Data{})

		// Body pads first (so padding ends up farthest from the top, below
		// the payload), then re-pushes the payload (read back out of its
		// own parameter slot) immediately below the tag, then pushes the
		// tag last so it ends up on top — matching the pattern-test reader
		// in pattern.go, which looks for the tag at the subject's current
		// (topmost) offset and recurses into the payload at offset-1, i.e.
		// the bytes directly beneath the tag.
		var bodyChildren []coreir.NodeID
		if pad := maxPayload - payloadSize; pad > 0 {
			alloc := l.dst.Add(coreir.STACK_ALLOC, coreir.NoNode, coreir.Data{Size: pad})
			l.dst.SetSize(alloc, pad)
			bodyChildren = append(bodyChildren, alloc)
		}
		if payloadSize > 0 {
			addr := l.dst.Add(coreir.PARAM, coreir.NoNode, coreir.Data{Variable: coreir.VariableData{Offset: slot.offset, Size: slot.size}})
			push := l.dst.Add(coreir.PUSH, coreir.NoNode, coreir.Data{Size: payloadSize})
			l.dst.SetChildren(push, addr)
			l.dst.SetSize(push, payloadSize)
			bodyChildren = append(bodyChildren, push)
		}
		tag := l.dst.Add(coreir.NUMBER, coreir.NoNode, coreir.Data{Number: int64(i), NumberType: ast.UI8})
		bodyChildren = append(bodyChildren, tag)

		outSize := 1 + maxPayload
		ret := l.dst.Add(coreir.RET, coreir.NoNode, coreir.Data{
			Return: coreir.ReturnData{InSize: payloadSize, OutSize: outSize, FrameSize: payloadSize},
		})
		body := l.dst.Add(coreir.BLOCK, coreir.NoNode, coreir.Data{})
		l.dst.SetChildren(body, bodyChildren...)
		l.dst.SetChildren(ret, body)

		l.dst.Node(fn).Data.Function = coreir.FunctionData{
			Name:       fmt.Sprintf("%s::variant%d", node.Data.Name, i),
			InSize:     payloadSize,
			OutSize:    outSize,
			LocalsSize: 0,
		}
		l.dst.SetChildren(fn, ret)
		fns = append(fns, fn)

		l.ctxStack = l.ctxStack[:len(l.ctxStack)-1]
	}

	return fns
}
