package codegen

import (
	"corevm/coreir"
	"corevm/vm"
)

// registerBitmap tracks which of the 60 general-purpose registers
// (0..59; 60..63 are reserved) are currently allocated.
type registerBitmap struct {
	used [vm.CalleeSaveHi + 1]bool
}

// alloc returns the lowest free register index, scratch-pool first
// (0..31) since temporaries are overwhelmingly short-lived expression
// results; only falls into the callee-save range if every caller-save
// register is momentarily busy (nested expression evaluation).
func (b *registerBitmap) alloc(g *generator, node int) byte {
	for i := vm.CallerSaveLo; i <= vm.CalleeSaveHi; i++ {
		if !b.used[i] {
			b.used[i] = true
			return byte(i)
		}
	}
	g.fail(coreir.NodeID(node), "codegen: register pool exhausted")
	return 0
}

func (b *registerBitmap) free(r byte) {
	b.used[r] = false
}

// snapshotCallerSaved returns the set of currently-live caller-saved
// registers (0..31), used to save and restore temporaries across a
// CALL_UI64.
func (b *registerBitmap) snapshotCallerSaved() []byte {
	var live []byte
	for i := vm.CallerSaveLo; i <= vm.CallerSaveHi; i++ {
		if b.used[i] {
			live = append(live, byte(i))
		}
	}
	return live
}
