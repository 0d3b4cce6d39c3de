package corevm_test

import (
	"bytes"
	"testing"

	"corevm/ast"
	"corevm/codegen"
	"corevm/lower"
	"corevm/vm"

	"github.com/stretchr/testify/require"
)

// buildPrintDeclaration builds the top-level module:
//
//	let a: u64 = 5;
//	println(a);
//
// exercising declaration lowering, identifier reads off a local slot,
// and a call to a native function end to end.
func buildPrintDeclaration() *ast.Tree {
	b := ast.NewBuilder()

	u64 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.UI64})
	printlnType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{u64}})

	aLHS := b.Ident(ast.NoNode, "a")
	b.SetType(aLHS, u64)
	lit := b.Number(ast.NoNode, 5, ast.UI64)
	b.SetType(lit, u64)
	decl := b.Add(ast.Declaration, ast.NoNode, ast.Data{})
	b.SetChildren(decl, aLHS, lit)

	callee := b.Ident(ast.NoNode, "println")
	b.SetType(callee, printlnType)
	aRead := b.Ident(ast.NoNode, "a")
	b.SetType(aRead, u64)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, aRead)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, decl, call)
	b.SetRoot(root)

	return b.Tree()
}

func TestIntegration_DeclareAndPrintln(t *testing.T) {
	tree := buildPrintDeclaration()

	core, errs := lower.Lower(tree)
	require.Empty(t, errs)

	prog, errs := codegen.Generate(core, 100000)
	require.Empty(t, errs)

	exe, errs := vm.Link(prog.ToVM(), "_main")
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(exe, vm.Options{Stdout: &out})
	machine.RunProgram()

	require.Equal(t, "5\n", out.String())
}
