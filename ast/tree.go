package ast

// Data holds the optional per-kind payload for a node. Only the field(s)
// relevant to Kind are populated; a single struct rather than an
// interface, so the lowerer can switch on Kind and read fields directly
// without a type assertion per node.
type Data struct {
	// Identifier: resolved name + binding info.
	Name string

	// StringLiteral.
	Str string

	// BooleanLiteral.
	Bool bool

	// NumberLiteral.
	Number     int64
	NumberType NumberType
}

// Node is one entry in a Tree. Children are ordered and addressed by
// index, not embedded pointers, matching the arena-of-indices convention
// the whole pipeline shares.
type Node struct {
	ID       NodeID
	Kind     Kind
	Parent   NodeID
	Children []NodeID

	// NameScope and TypeScope index into tables owned by the external
	// resolver/typechecker (out of scope here); the core only ever reads
	// TypeScope to look up a node's resolved Type.
	NameScope int
	TypeScope TypeID

	Data Data
}

// Tree is a fully resolved and typechecked external AST: the input to
// the lowerer. Node 0, when Nodes is non-empty, need not be the root —
// Root names it explicitly, since a tree under construction may append
// nodes in any order (see Builder).
type Tree struct {
	Nodes []Node
	Types []Type
	Root  NodeID

	// Patterns holds the pattern tree attached to each MatchBranch node.
	// Patterns are not themselves part of the value-producing AST (they
	// never appear as a child list), so they live in a side table rather
	// than forcing a Pattern-shaped Kind/Data encoding onto Node.
	Patterns map[NodeID]Pattern
}

func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

func (t *Tree) TypeOf(id NodeID) Type {
	return t.Types[t.Node(id).TypeScope]
}

// Children returns the child node ids of n, in order.
func (t *Tree) Children(n NodeID) []NodeID {
	return t.Node(n).Children
}
