package coreir

import (
	"testing"

	"corevm/ast"

	"github.com/stretchr/testify/require"
)

// buildFn builds a minimal FUNCTION node with the given body built by fn,
// which receives the Tree and the id of an (empty) BLOCK it should
// populate with children via tree.SetChildren.
func buildFn(t *testing.T, inSize, localsSize uint32, fn func(tree *Tree, block NodeID)) (*Tree, NodeID) {
	t.Helper()
	tree := &Tree{}
	fnID := tree.Add(FUNCTION, NoNode, Data{Function: FunctionData{InSize: inSize, LocalsSize: localsSize}})
	block := tree.Add(BLOCK, fnID, Data{})
	tree.SetChildren(fnID, block)
	fn(tree, block)
	return tree, fnID
}

func TestStackAnalysis_NumberLiteralsAccumulate(t *testing.T) {
	tree, fnID := buildFn(t, 0, 0, func(tree *Tree, block NodeID) {
		a := tree.Add(NUMBER, block, Data{NumberType: ast.I32})
		b := tree.Add(NUMBER, block, Data{NumberType: ast.I64})
		tree.SetChildren(block, a, b)
	})

	res := AnalyzeFunction(tree, fnID)

	block := tree.Node(fnID).Children[0]
	a, b := tree.Node(block).Children[0], tree.Node(block).Children[1]

	require.Equal(t, uint32(0), res.Pre[a])
	require.Equal(t, uint32(4), res.Post[a])
	require.Equal(t, uint32(4), res.Pre[b])
	require.Equal(t, uint32(12), res.Post[b])
	require.Equal(t, uint32(12), res.Post[block])
}

func TestStackAnalysis_RetConsumesInSize(t *testing.T) {
	tree, fnID := buildFn(t, 0, 0, func(tree *Tree, block NodeID) {
		n := tree.Add(NUMBER, block, Data{NumberType: ast.I64})
		ret := tree.Add(RET, block, Data{Return: ReturnData{InSize: 8}})
		tree.SetChildren(ret, n)
		tree.SetChildren(block, ret)
	})

	res := AnalyzeFunction(tree, fnID)
	block := tree.Node(fnID).Children[0]
	ret := tree.Node(block).Children[0]

	require.Equal(t, uint32(8), res.Post[tree.Node(ret).Children[0]])
	require.Equal(t, uint32(0), res.Post[ret])
}

func TestStackAnalysis_LabelReconcilesAcrossJump(t *testing.T) {
	// block: [ JMP(label=1), LABEL(1) ]
	// The label's predecessor is the jump, so its own fallthrough rule
	// does not apply; it must pick up its depth from the jump instead.
	tree, fnID := buildFn(t, 0, 4, func(tree *Tree, block NodeID) {
		jmp := tree.Add(JMP, block, Data{LabelID: 1})
		lbl := tree.Add(LABEL, block, Data{LabelID: 1})
		tree.SetChildren(block, jmp, lbl)
	})

	res := AnalyzeFunction(tree, fnID)
	block := tree.Node(fnID).Children[0]
	jmp, lbl := tree.Node(block).Children[0], tree.Node(block).Children[1]

	require.Equal(t, uint32(4), res.Post[jmp])
	require.Equal(t, uint32(4), res.Post[lbl])
}

func TestStackAnalysis_PopUnderflowPanics(t *testing.T) {
	tree, fnID := buildFn(t, 0, 0, func(tree *Tree, block NodeID) {
		pop := tree.Add(POP, block, Data{Size: 8})
		tree.SetChildren(block, pop)
	})

	require.Panics(t, func() {
		AnalyzeFunction(tree, fnID)
	})
}
