package vm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
)

// stackSize is the byte stack's capacity: main stack plus native-call
// scratch region, laid out as one contiguous slab with sp descending
// through both.
const stackSize = 2 * 8192

// VM is one bytecode interpreter instance: a flat 64-entry register
// file, a descending byte stack, the linked program, and the native
// function table.
type VM struct {
	registers [RegisterCount]uint64
	stack     [stackSize]byte
	program   []byte

	natives []NativeFunc

	stdout *bufio.Writer
	stdin  *bufio.Reader
	log    *slog.Logger

	errcode error

	debugSym map[int]string
}

type NativeFunc func(vm *VM) error

var (
	errProgramFinished   = errors.New("ran out of instructions")
	errSegmentationFault = errors.New("segmentation fault")
	errIllegalOperation  = errors.New("illegal operation")
	errUnknownOpcode     = errors.New("instruction not recognized")
	errStackOverflow     = errors.New("stack overflow")
	errDivideByZero      = errors.New("division by zero")
)

// Options configures a VM instance. There is no file or environment
// configuration anywhere in the pipeline, so this is the one
// constructor-option surface the machine owns. The zero value runs
// against the process's real stdin/stdout.
type Options struct {
	Stdout io.Writer
	Stdin  io.Reader

	// Logger receives diagnostic trace events (program start, halt
	// reason). Nil discards them.
	Logger *slog.Logger
}

// New builds a VM ready to execute a linked Executable. The stack
// pointer starts one past the last valid stack address, so a buggy
// program touching it faults immediately instead of reading garbage.
func New(exe *Executable, opts Options) *VM {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	vm := &VM{
		program:  exe.Code,
		natives:  exe.Natives,
		debugSym: exe.DebugSymbols,
		stdout:   bufio.NewWriter(stdout),
		stdin:    bufio.NewReader(stdin),
		log:      logger,
	}
	vm.registers[SpReg] = uint64(stackSize)
	vm.registers[FpReg] = uint64(stackSize)
	vm.registers[IpReg] = uint64(exe.EntryOffset)
	return vm
}

func (vm *VM) ip() uint64 { return vm.registers[IpReg] }
func (vm *VM) sp() uint64 { return vm.registers[SpReg] }

// Registers returns a snapshot of the register file, for embedders
// that need a program's result after RunProgram returns (the calling
// convention leaves return values in RetReg, but callers of
// raw/unlinked snippets may read any register directly).
func (vm *VM) Registers() [RegisterCount]uint64 {
	return vm.registers
}

func (vm *VM) fetchU8() byte {
	b := vm.program[vm.registers[IpReg]]
	vm.registers[IpReg]++
	return b
}

func (vm *VM) fetchU16() uint16 {
	v := binary.LittleEndian.Uint16(vm.program[vm.registers[IpReg]:])
	vm.registers[IpReg] += 2
	return v
}

func (vm *VM) fetchU32() uint32 {
	v := binary.LittleEndian.Uint32(vm.program[vm.registers[IpReg]:])
	vm.registers[IpReg] += 4
	return v
}

func (vm *VM) fetchU64() uint64 {
	v := binary.LittleEndian.Uint64(vm.program[vm.registers[IpReg]:])
	vm.registers[IpReg] += 8
	return v
}

func (vm *VM) fetchI32() int32 { return int32(vm.fetchU32()) }

// push/pop move the descending stack and bounds-check against both
// ends, raising errStackOverflow/errSegmentationFault before the slice
// index itself could go out of range.
func (vm *VM) pushBytes(size uint64, v uint64) {
	if vm.registers[SpReg] < size {
		vm.errcode = errStackOverflow
		panic(vm.errcode)
	}
	vm.registers[SpReg] -= size
	putUint(vm.stack[vm.registers[SpReg]:], size, v)
}

func (vm *VM) popBytes(size uint64) uint64 {
	if vm.registers[SpReg]+size > stackSize {
		vm.errcode = errSegmentationFault
		panic(vm.errcode)
	}
	v := getUint(vm.stack[vm.registers[SpReg]:], size)
	vm.registers[SpReg] += size
	return v
}

func putUint(b []byte, size uint64, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func getUint(b []byte, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}
