package codegen_test

import (
	"testing"

	"corevm/ast"
	"corevm/codegen"
	"corevm/lower"
	"corevm/vm"

	"github.com/stretchr/testify/require"
)

// buildAddFunction builds: fn add(a: i32, b: i32) -> i32 { a + b }
// plus a top-level call `add(1, 2)` so Generate has both a user
// function and _main to compile.
func buildAddFunction(t *testing.T) *ast.Tree {
	t.Helper()
	b := ast.NewBuilder()

	i32 := b.AddType(ast.Type{Kind: ast.TypeKindAtom, IsNumber: true, NumberType: ast.I32})
	fnType := b.AddType(ast.Type{Kind: ast.TypeKindFunction, Params: []ast.TypeID{i32, i32}, Results: []ast.TypeID{i32}})

	fn := b.Add(ast.Function, ast.NoNode, ast.Data{Name: "add"})
	b.SetType(fn, fnType)

	pa := b.Ident(fn, "a")
	b.SetType(pa, i32)
	pb := b.Ident(fn, "b")
	b.SetType(pb, i32)

	bodyA := b.Ident(ast.NoNode, "a")
	b.SetType(bodyA, i32)
	bodyB := b.Ident(ast.NoNode, "b")
	b.SetType(bodyB, i32)
	addExpr := b.Add(ast.Add, ast.NoNode, ast.Data{})
	b.SetChildren(addExpr, bodyA, bodyB)
	b.SetType(addExpr, i32)

	body := b.Add(ast.Block, ast.NoNode, ast.Data{})
	blockResult := b.Add(ast.BlockResult, body, ast.Data{})
	b.SetChildren(blockResult, addExpr)
	b.SetChildren(body, blockResult)

	b.SetChildren(fn, pa, pb, body)

	callee := b.Ident(ast.NoNode, "add")
	b.SetType(callee, fnType)
	arg1 := b.Number(ast.NoNode, 1, ast.I32)
	b.SetType(arg1, i32)
	arg2 := b.Number(ast.NoNode, 2, ast.I32)
	b.SetType(arg2, i32)
	call := b.Add(ast.FunctionCall, ast.NoNode, ast.Data{})
	b.SetChildren(call, callee, arg1, arg2)

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, fn, call)
	b.SetRoot(root)

	return b.Tree()
}

func TestGenerate_EmitsFunctionAndMain(t *testing.T) {
	tree := buildAddFunction(t)
	core, errs := lower.Lower(tree)
	require.Empty(t, errs)

	prog, errs := codegen.Generate(core, 100000)
	require.Empty(t, errs)

	var add, main *codegen.Function
	nativeCount := 0
	for _, f := range prog.Functions {
		switch {
		case f.IsNative:
			nativeCount++
		case f.Name == "add":
			add = f
		case f.Name == "_main":
			main = f
		}
	}

	require.NotNil(t, add, "add function missing from generated program")
	require.NotNil(t, main, "_main function missing from generated program")
	// print/println/load_dll/load_fn, the fixed native registry.
	require.Equal(t, 4, nativeCount)

	require.NotEmpty(t, add.Code)
	require.Equal(t, vm.OpLBL, vm.Opcode(add.Code[0]), "function body must open with its entry label")
	require.Contains(t, add.Code, byte(vm.OpSALLOC_REG_UI8))
	require.Contains(t, add.Code, byte(vm.OpRET_UI8))

	// _main falls through to a raw EXIT rather than returning, since
	// nothing calls it.
	require.Equal(t, byte(vm.OpEXIT), main.Code[len(main.Code)-1])
}

func TestGenerate_LinksAndRunsAddCall(t *testing.T) {
	tree := buildAddFunction(t)
	core, errs := lower.Lower(tree)
	require.Empty(t, errs)

	prog, errs := codegen.Generate(core, 100000)
	require.Empty(t, errs)

	exe, errs := vm.Link(prog.ToVM(), "_main")
	require.Empty(t, errs)
	require.NotEmpty(t, exe.Code)

	machine := vm.New(exe, vm.Options{})
	machine.RunProgram()
}
