// Package lower transforms a resolved/typechecked corevm/ast.Tree into
// a corevm/coreir.Tree: control flow becomes explicit labels and jumps,
// variables are numbered within a function frame, and every
// expression's stack effect becomes representable by the bytecode
// generator.
package lower

// varSlot records where a named local or parameter lives in the current
// function's frame.
type varSlot struct {
	offset  uint32
	size    uint32
	isParam bool
}

// funcContext is the per-function lowering context: a variable-index
// counter, running parameter/local sizes, a name→slot map. Entering a
// Function node pushes a fresh one onto Lowerer.ctxStack and starts
// this context over; jump-label and stack-label counters stay
// program-global (ids must never collide across functions).
type funcContext struct {
	nextVarIndex int
	paramSize    uint32
	localsSize   uint32
	vars         map[string]varSlot
}

func newFuncContext() *funcContext {
	return &funcContext{vars: map[string]varSlot{}}
}

// addParam allocates a parameter slot, growing from the frame base.
func (c *funcContext) addParam(name string, size uint32) varSlot {
	slot := varSlot{offset: c.paramSize, size: size, isParam: true}
	c.paramSize += size
	c.vars[name] = slot
	c.nextVarIndex++
	return slot
}

// addLocal allocates a local slot, following params in the frame.
func (c *funcContext) addLocal(name string, size uint32) varSlot {
	slot := varSlot{offset: c.paramSize + c.localsSize, size: size}
	c.localsSize += size
	c.vars[name] = slot
	c.nextVarIndex++
	return slot
}
