package corevm_test

import (
	"bytes"
	"testing"

	"corevm/ast"
	"corevm/codegen"
	"corevm/lower"
	"corevm/optimize"
	"corevm/vm"

	"github.com/stretchr/testify/require"
)

// runModule lowers, generates, optimizes, links, and runs a module
// built with ast.Builder, returning everything printed to stdout.
func runModule(t *testing.T, tree *ast.Tree) string {
	t.Helper()

	core, errs := lower.Lower(tree)
	require.Empty(t, errs)

	prog, errs := codegen.Generate(core, 100000)
	require.Empty(t, errs)

	optimize.Optimize(prog)

	exe, errs := vm.Link(prog.ToVM(), "_main")
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(exe, vm.Options{Stdout: &out})
	machine.RunProgram()
	return out.String()
}

// buildNestedBlockScope builds:
//
//	let a: u64 = 1;
//	a = { let b: u64 = 3; b };
//	print a;
//
// exercising a block used as an expression (its BlockResult value
// reassigned into an outer local) and nested scope for the inner
// declaration of b.
func buildNestedBlockScope() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	aLHS := b.Ident(ast.NoNode, "a")
	b.SetType(aLHS, u64)
	one := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(one, u64)
	declA := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declA, aLHS, one)

	bLHS := b.Ident(ast.NoNode, "b")
	b.SetType(bLHS, u64)
	three := b.Number(ast.NoNode, 3, ast.UI64)
	b.SetType(three, u64)
	declB := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declB, bLHS, three)

	bRead := b.Ident(ast.NoNode, "b")
	b.SetType(bRead, u64)
	innerBlock := b.Add(ast.Block, ast.NoNode, ast.Data{})
	blockResult := b.Add(ast.BlockResult, innerBlock, ast.Data{})
	b.SetChildren(blockResult, bRead)
	b.SetChildren(innerBlock, declB, blockResult)
	b.SetType(innerBlock, u64)

	aTarget := b.Ident(ast.NoNode, "a")
	assign := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(assign, aTarget, innerBlock)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	aRead := b.Ident(ast.NoNode, "a")
	b.SetType(aRead, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, aRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declA, assign, call)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_NestedBlockScope(t *testing.T) {
	require.Equal(t, "3", runModule(t, buildNestedBlockScope()))
}

// buildIfElseAssignment builds:
//
//	let a: u64 = 1;
//	if (true) { a = 2 } else { a = 3 };
//	print a;
func buildIfElseAssignment() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	boolT := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsBool: true})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	aLHS := b.Ident(ast.NoNode, "a")
	b.SetType(aLHS, u64)
	one := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(one, u64)
	declA := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declA, aLHS, one)

	cond := b.Boolean(ast.NoNode, true)
	b.SetType(cond, boolT)

	aTargetThen := b.Ident(ast.NoNode, "a")
	two := b.Number(ast.NoNode, 2, ast.UI64)
	b.SetType(two, u64)
	assignThen := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(assignThen, aTargetThen, two)
	thenBlock := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(thenBlock, assignThen)

	aTargetElse := b.Ident(ast.NoNode, "a")
	three := b.Number(ast.NoNode, 3, ast.UI64)
	b.SetType(three, u64)
	assignElse := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(assignElse, aTargetElse, three)
	elseBlock := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(elseBlock, assignElse)

	ifStmt := b.Add(ast.IfStatement, ast.NoNode, ast.Data{})
	b.SetChildren(ifStmt, cond, thenBlock, elseBlock)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	aRead := b.Ident(ast.NoNode, "a")
	b.SetType(aRead, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, aRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declA, ifStmt, call)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_IfElseAssignment(t *testing.T) {
	require.Equal(t, "2", runModule(t, buildIfElseAssignment()))
}

// buildTupleDestructure builds:
//
//	let a: (u64, u64, u64) = (3, 5, 7);
//	let (b, c, d): (u64, u64, u64) = a;
//	print d;
//
// This round-trips a 24-byte tuple through a declared variable (store
// then load), which is the case the multi-chunk load/store ordering
// must get right: a fresh (3, 5, 7) literal pushes with 7 on top, and
// reading it back out of a must reproduce that same order so that
// destructuring binds d to 7, not 3.
func buildTupleDestructure() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	tupleT := b.AddType(ast.Type{Kind: ast.TypeKindTuple, Fields: []ast.TypeID{u64, u64, u64}})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	aLHS := b.Ident(ast.NoNode, "a")
	b.SetType(aLHS, tupleT)
	three := b.Number(ast.NoNode, 3, ast.UI64)
	b.SetType(three, u64)
	five := b.Number(ast.NoNode, 5, ast.UI64)
	b.SetType(five, u64)
	seven := b.Number(ast.NoNode, 7, ast.UI64)
	b.SetType(seven, u64)
	tupleLit := b.Add(ast.Tuple, ast.NoNode, ast.Data{})
	b.SetChildren(tupleLit, three, five, seven)
	b.SetType(tupleLit, tupleT)
	declA := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declA, aLHS, tupleLit)

	bName := b.Ident(ast.NoNode, "b")
	cName := b.Ident(ast.NoNode, "c")
	dName := b.Ident(ast.NoNode, "d")
	tupleLHS := b.Add(ast.Tuple, ast.NoNode, ast.Data{})
	b.SetChildren(tupleLHS, bName, cName, dName)

	aRead := b.Ident(ast.NoNode, "a")
	b.SetType(aRead, tupleT)
	declBCD := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declBCD, tupleLHS, aRead)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	dRead := b.Ident(ast.NoNode, "d")
	b.SetType(dRead, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, dRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declA, declBCD, call)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_TupleDestructureThroughVariable(t *testing.T) {
	require.Equal(t, "7", runModule(t, buildTupleDestructure()))
}

// buildFibonacci builds a recursive fib(n) and calls fib(10), exercising
// self-recursion, if/else-as-expression, and caller-saved register
// preservation across the two recursive calls in fib(n-1) + fib(n-2).
//
//	fn fib(n: u64) -> u64 {
//	    if (n <= 2) { 1 } else { fib(n - 1) + fib(n - 2) }
//	}
//	print fib(10);
func buildFibonacci() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	boolT := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsBool: true})
	fibType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}, Results: []ast.TypeID{u64}})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	fn := b.Add(ast.Function, ast.NoNode, ast.Data{Name: "fib"})
	b.SetType(fn, fibType)

	param := b.Ident(fn, "n")
	b.SetType(param, u64)

	nLte := b.Ident(ast.NoNode, "n")
	b.SetType(nLte, u64)
	two := b.Number(ast.NoNode, 2, ast.UI64)
	b.SetType(two, u64)
	test := b.Add(ast.Lte, ast.NoNode, ast.Data{})
	b.SetChildren(test, nLte, two)
	b.SetType(test, boolT)

	one := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(one, u64)
	thenBlock := b.Add(ast.Block, ast.NoNode, ast.Data{})
	thenResult := b.Add(ast.BlockResult, thenBlock, ast.Data{})
	b.SetChildren(thenResult, one)
	b.SetChildren(thenBlock, thenResult)
	b.SetType(thenBlock, u64)

	fibCallee1 := b.Ident(ast.NoNode, "fib")
	b.SetType(fibCallee1, fibType)
	nMinus1LHS := b.Ident(ast.NoNode, "n")
	b.SetType(nMinus1LHS, u64)
	oneLit := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(oneLit, u64)
	nMinus1 := b.Add(ast.Sub, ast.NoNode, ast.Data{})
	b.SetChildren(nMinus1, nMinus1LHS, oneLit)
	b.SetType(nMinus1, u64)
	call1 := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call1, fibCallee1, nMinus1)
	b.SetType(call1, u64)

	fibCallee2 := b.Ident(ast.NoNode, "fib")
	b.SetType(fibCallee2, fibType)
	nMinus2LHS := b.Ident(ast.NoNode, "n")
	b.SetType(nMinus2LHS, u64)
	twoLit := b.Number(ast.NoNode, 2, ast.UI64)
	b.SetType(twoLit, u64)
	nMinus2 := b.Add(ast.Sub, ast.NoNode, ast.Data{})
	b.SetChildren(nMinus2, nMinus2LHS, twoLit)
	b.SetType(nMinus2, u64)
	call2 := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call2, fibCallee2, nMinus2)
	b.SetType(call2, u64)

	sum := b.Add(ast.Add, ast.NoNode, ast.Data{})
	b.SetChildren(sum, call1, call2)
	b.SetType(sum, u64)

	elseBlock := b.Add(ast.Block, ast.NoNode, ast.Data{})
	elseResult := b.Add(ast.BlockResult, elseBlock, ast.Data{})
	b.SetChildren(elseResult, sum)
	b.SetChildren(elseBlock, elseResult)
	b.SetType(elseBlock, u64)

	ifExpr := b.Add(ast.IfStatement, ast.NoNode, ast.Data{})
	b.SetChildren(ifExpr, test, thenBlock, elseBlock)

	body := b.Add(ast.Block, ast.NoNode, ast.Data{})
	bodyResult := b.Add(ast.BlockResult, body, ast.Data{})
	b.SetChildren(bodyResult, ifExpr)
	b.SetChildren(body, bodyResult)

	b.SetChildren(fn, param, body)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	fibCallee3 := b.Ident(ast.NoNode, "fib")
	b.SetType(fibCallee3, fibType)
	ten := b.Number(ast.NoNode, 10, ast.UI64)
	b.SetType(ten, u64)
	fibCall := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(fibCall, fibCallee3, ten)
	b.SetType(fibCall, u64)
	printCall := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(printCall, callee, fibCall)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, fn, printCall)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_RecursiveFibonacci(t *testing.T) {
	require.Equal(t, "55", runModule(t, buildFibonacci()))
}

// buildWhileCountUp builds:
//
//	let i: u64 = 0;
//	while (i < 5) { i = i + 1 };
//	print i;
func buildWhileCountUp() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	boolT := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsBool: true})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	iLHS := b.Ident(ast.NoNode, "i")
	b.SetType(iLHS, u64)
	zero := b.Number(ast.NoNode, 0, ast.UI64)
	b.SetType(zero, u64)
	declI := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declI, iLHS, zero)

	iTest := b.Ident(ast.NoNode, "i")
	b.SetType(iTest, u64)
	five := b.Number(ast.NoNode, 5, ast.UI64)
	b.SetType(five, u64)
	test := b.Add(ast.Lt, ast.NoNode, ast.Data{})
	b.SetChildren(test, iTest, five)
	b.SetType(test, boolT)

	iRead := b.Ident(ast.NoNode, "i")
	b.SetType(iRead, u64)
	one := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(one, u64)
	inc := b.Add(ast.Add, ast.NoNode, ast.Data{})
	b.SetChildren(inc, iRead, one)
	b.SetType(inc, u64)
	iTarget := b.Ident(ast.NoNode, "i")
	assign := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(assign, iTarget, inc)
	body := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(body, assign)

	loop := b.Add(ast.WhileLoop, ast.NoNode, ast.Data{})
	b.SetChildren(loop, test, body)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	iFinal := b.Ident(ast.NoNode, "i")
	b.SetType(iFinal, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, iFinal)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declI, loop, call)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_WhileCountUp(t *testing.T) {
	require.Equal(t, "5", runModule(t, buildWhileCountUp()))
}

// buildMatchTuplePattern builds:
//
//	let r: u64 = 0;
//	match (3, 7) {
//	    (3, d) => { r = d },
//	    w      => { },
//	};
//	print r;
//
// exercising the pattern-test tree (a literal test AND an identifier
// binding inside a tuple pattern), the per-branch false-label chain,
// a pattern-bound read through a RELATIVE_OFFSET, and the subject
// deallocation after the shared after-label.
func buildMatchTuplePattern() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	tupleT := b.AddType(ast.Type{Kind: ast.TypeKindTuple, Fields: []ast.TypeID{u64, u64}})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	rLHS := b.Ident(ast.NoNode, "r")
	b.SetType(rLHS, u64)
	zero := b.Number(ast.NoNode, 0, ast.UI64)
	b.SetType(zero, u64)
	declR := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declR, rLHS, zero)

	three := b.Number(ast.NoNode, 3, ast.UI64)
	b.SetType(three, u64)
	seven := b.Number(ast.NoNode, 7, ast.UI64)
	b.SetType(seven, u64)
	subject := b.Add(ast.Tuple, ast.NoNode, ast.Data{})
	b.SetChildren(subject, three, seven)
	b.SetType(subject, tupleT)

	dRead := b.Ident(ast.NoNode, "d")
	b.SetType(dRead, u64)
	rTarget := b.Ident(ast.NoNode, "r")
	assign := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(assign, rTarget, dRead)
	body1 := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(body1, assign)
	branch1 := b.Add(ast.MatchBranch, ast.NoNode, ast.Data{})
	b.SetChildren(branch1, body1)
	b.SetPattern(branch1, ast.Pattern{Kind: ast.PatternTuple, Elements: []ast.Pattern{
		{Kind: ast.PatternLiteralNumber, Number: 3, NumberType: ast.UI64},
		{Kind: ast.PatternIdentifier, Name: "d"},
	}})

	body2 := b.Add(ast.Block, ast.NoNode, ast.Data{})
	branch2 := b.Add(ast.MatchBranch, ast.NoNode, ast.Data{})
	b.SetChildren(branch2, body2)
	b.SetPattern(branch2, ast.Pattern{Kind: ast.PatternIdentifier, Name: "w"})

	match := b.Add(ast.Match, ast.NoNode, ast.Data{})
	b.SetChildren(match, subject, branch1, branch2)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	rRead := b.Ident(ast.NoNode, "r")
	b.SetType(rRead, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, rRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declR, match, call)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_MatchTuplePattern(t *testing.T) {
	require.Equal(t, "7", runModule(t, buildMatchTuplePattern()))
}

// buildCrossModuleCall builds:
//
//	let t: u64 = lib.get_ten();
//	print t;
//
// where lib.get_ten is not generated from the AST at all: it is
// hand-written bytecode appended at link time, the way an external
// module's prebuilt chunk joins a program.
func buildCrossModuleCall() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	getTenType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Results: []ast.TypeID{u64}})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	getTen := b.Ident(ast.NoNode, "lib.get_ten")
	b.SetType(getTen, getTenType)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, getTen)
	b.SetType(call, u64)

	tLHS := b.Ident(ast.NoNode, "t")
	b.SetType(tLHS, u64)
	declT := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declT, tLHS, call)

	callee := b.Ident(ast.NoNode, "print")
	b.SetType(callee, printType)
	tRead := b.Ident(ast.NoNode, "t")
	b.SetType(tRead, u64)
	printCall := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(printCall, callee, tRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declT, printCall)
	b.SetRoot(root)
	return b.Tree()
}

// buildArrayIndexing builds:
//
//	let a: [u64; 3] = [3, 5, 7];
//	let j: u64 = 1;
//	print a[j];
//	a[j] = 9;
//	print a[j];
//
// exercising the dynamic-address path in both directions: a read
// through DYNAMIC_VARIABLE and a write through a dynamic POP target.
func buildArrayIndexing() *ast.Tree {
	b := ast.NewBuilder()
	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	arrT := b.AddType(ast.Type{Kind: ast.TypeKindArray, Elem: u64, Length: 3})
	printType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	aLHS := b.Ident(ast.NoNode, "a")
	b.SetType(aLHS, arrT)
	three := b.Number(ast.NoNode, 3, ast.UI64)
	b.SetType(three, u64)
	five := b.Number(ast.NoNode, 5, ast.UI64)
	b.SetType(five, u64)
	seven := b.Number(ast.NoNode, 7, ast.UI64)
	b.SetType(seven, u64)
	arrLit := b.Add(ast.ArrayValue, ast.NoNode, ast.Data{})
	b.SetChildren(arrLit, three, five, seven)
	b.SetType(arrLit, arrT)
	declA := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declA, aLHS, arrLit)

	jLHS := b.Ident(ast.NoNode, "j")
	b.SetType(jLHS, u64)
	one := b.Number(ast.NoNode, 1, ast.UI64)
	b.SetType(one, u64)
	declJ := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(declJ, jLHS, one)

	index := func() ast.NodeID {
		aBase := b.Ident(ast.NoNode, "a")
		b.SetType(aBase, arrT)
		jRead := b.Ident(ast.NoNode, "j")
		b.SetType(jRead, u64)
		ref := b.Add(ast.Reference, ast.NoNode, ast.Data{})
		b.SetChildren(ref, aBase, jRead)
		b.SetType(ref, u64)
		return ref
	}

	printAt := func() ast.NodeID {
		callee := b.Ident(ast.NoNode, "print")
		b.SetType(callee, printType)
		call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
		b.SetChildren(call, callee, index())
		return call
	}

	print1 := printAt()

	nine := b.Number(ast.NoNode, 9, ast.UI64)
	b.SetType(nine, u64)
	store := b.Add(ast.Assignment, ast.NoNode, ast.Data{})
	b.SetChildren(store, index(), nine)

	print2 := printAt()

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, declA, declJ, print1, store, print2)
	b.SetRoot(root)
	return b.Tree()
}

func TestIntegration_ArrayIndexReadAndWrite(t *testing.T) {
	require.Equal(t, "59", runModule(t, buildArrayIndexing()))
}

func TestIntegration_CrossModuleHandWrittenBytecode(t *testing.T) {
	core, errs := lower.Lower(buildCrossModuleCall())
	require.Empty(t, errs)

	prog, errs := codegen.Generate(core, 100000)
	require.Empty(t, errs)

	// lib.get_ten: MV_REG_I64 ret, 10; RET_UI8 0.
	lib := vm.LinkFunction{Name: "lib.get_ten", Code: []byte{
		byte(vm.OpMV_REG_I64), vm.RetReg, 10, 0, 0, 0, 0, 0, 0, 0,
		byte(vm.OpRET_UI8), 0,
	}}

	exe, errs := vm.Link(append(prog.ToVM(), lib), "_main")
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(exe, vm.Options{Stdout: &out})
	machine.RunProgram()
	require.Equal(t, "10", out.String())
}
