package lower

import (
	"testing"

	"corevm/ast"
	"corevm/coreir"

	"github.com/stretchr/testify/require"
)

// buildAddFunction builds: fn(a: i32, b: i32) -> i32 { a + b }
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

	root := b.Add(ast.Block, ast.NoNode, ast.Data{})
	b.SetChildren(root, fn)
	b.SetRoot(root)

	return b.Tree()
}

func TestLower_SimpleFunction(t *testing.T) {
	tree := buildAddFunction(t)
	core, errs := Lower(tree)
	require.Empty(t, errs)

	root := core.Node(core.Root)
	require.Len(t, root.Children, 1)

	fn := core.Node(root.Children[0])
	require.Equal(t, coreir.FUNCTION, fn.Kind)
	require.Equal(t, "add", fn.Data.Function.Name)
	require.Equal(t, uint32(8), fn.Data.Function.InSize)
	require.Equal(t, uint32(4), fn.Data.Function.OutSize)
}
