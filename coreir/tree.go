package coreir

// Node is one entry in a Tree, addressed by index like corevm/ast.Node.
type Node struct {
	ID       NodeID
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Size     *uint32 // optional byte size, nil when not applicable to Kind
	Data     Data
}

// Tree is the core IR produced by the lowerer (corevm/lower) and
// consumed by the bytecode generator (corevm/codegen).
type Tree struct {
	Nodes []Node
	Root  NodeID

	// MainLocalsSize is the frame size top-level `let` declarations need,
	// computed by the lowerer's module-level funcContext — there is no
	// FUNCTION node for top-level code to carry it on directly.
	MainLocalsSize uint32
}

func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

func (t *Tree) Parent(id NodeID) *Node {
	return t.Node(t.Node(id).Parent)
}

// Add appends a new node to the tree and returns its id. Children, if
// any, should be attached via SetChildren once they themselves exist.
func (t *Tree) Add(kind Kind, parent NodeID, data Data) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{ID: id, Kind: kind, Parent: parent, Data: data})
	return id
}

func (t *Tree) SetChildren(n NodeID, children ...NodeID) {
	node := t.Node(n)
	node.Children = children
	for _, c := range children {
		t.Node(c).Parent = n
	}
}

func (t *Tree) SetSize(n NodeID, size uint32) {
	t.Node(n).Size = &size
}
