package ast

// Builder constructs a Tree programmatically. It stands in for the
// lexer/parser/name-resolver/typechecker pipeline this module does not
// include: every Tree this package's consumers operate on is already
// fully resolved and typechecked, and Builder only offers a convenient
// way to produce one by hand (for tests and for embedders assembling
// modules directly).
type Builder struct {
	tree Tree
}

func NewBuilder() *Builder {
	return &Builder{tree: Tree{Patterns: map[NodeID]Pattern{}}}
}

// AddType appends a resolved type and returns its TypeID.
func (b *Builder) AddType(t Type) TypeID {
	b.tree.Types = append(b.tree.Types, t)
	return TypeID(len(b.tree.Types) - 1)
}

// Add appends a node with the given kind, parent, and data, returning
// its NodeID. Children are attached afterward via SetChildren (or by
// passing already-built child ids and calling SetChildren once all of
// a node's children exist), since many nodes (Block, Function) are
// naturally built child-first.
func (b *Builder) Add(kind Kind, parent NodeID, data Data) NodeID {
	id := NodeID(len(b.tree.Nodes))
	b.tree.Nodes = append(b.tree.Nodes, Node{
		ID:        id,
		Kind:      kind,
		Parent:    parent,
		TypeScope: NoType,
		Data:      data,
	})
	return id
}

// SetChildren records n's children and fixes up their Parent links.
func (b *Builder) SetChildren(n NodeID, children ...NodeID) {
	node := b.tree.Node(n)
	node.Children = children
	for _, c := range children {
		b.tree.Node(c).Parent = n
	}
}

// SetType records the resolved TypeID for a node.
func (b *Builder) SetType(n NodeID, t TypeID) {
	b.tree.Node(n).TypeScope = t
}

// SetPattern attaches a pattern tree to a MatchBranch node.
func (b *Builder) SetPattern(branch NodeID, p Pattern) {
	b.tree.Patterns[branch] = p
}

// SetRoot marks n as the tree's root (almost always a Block holding the
// top-level module statements).
func (b *Builder) SetRoot(n NodeID) {
	b.tree.Root = n
}

// Tree returns the built tree. The Builder remains usable afterward;
// callers that need a snapshot should not mutate further.
func (b *Builder) Tree() *Tree {
	return &b.tree
}

// Number appends a NumberLiteral leaf node.
func (b *Builder) Number(parent NodeID, value int64, nt NumberType) NodeID {
	return b.Add(NumberLiteral, parent, Data{Number: value, NumberType: nt})
}

// Boolean appends a BooleanLiteral leaf node.
func (b *Builder) Boolean(parent NodeID, value bool) NodeID {
	return b.Add(BooleanLiteral, parent, Data{Bool: value})
}

// String appends a StringLiteral leaf node.
func (b *Builder) String(parent NodeID, value string) NodeID {
	return b.Add(StringLiteral, parent, Data{Str: value})
}

// Ident appends an Identifier leaf node referring to name.
func (b *Builder) Ident(parent NodeID, name string) NodeID {
	return b.Add(Identifier, parent, Data{Name: name})
}
