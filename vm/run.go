package vm

import (
	"bufio"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

func getDefaultRecoverFuncForVM(vm *VM) func() {
	return func() {
		if r := recover(); r != nil {
			err := errSegmentationFault
			ip := vm.registers[IpReg]
			if ip > 0 {
				ip--
			}
			if vm.errcode != nil {
				err = vm.errcode
			}
			fmt.Printf("%s at instruction offset %d\n", err, ip)
		}
	}
}

func (vm *VM) printCurrentState() {
	fmt.Printf("ip=%d sp=%d fp=%d\n", vm.registers[IpReg], vm.registers[SpReg], vm.registers[FpReg])
}

// RunProgramDebugMode drives the VM one instruction at a time from a
// small REPL, printing machine state after each step and supporting
// instruction-offset breakpoints.
func (vm *VM) RunProgramDebugMode() {
	defer getDefaultRecoverFuncForVM(vm)()

	fmt.Printf("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <offset>: break on instruction offset (or remove break)\n\n")

	vm.printCurrentState()

	reader := bufio.NewReader(os.Stdin)
	waitForInput := true
	breakAtOffsets := make(map[int]struct{})
	lastBreakOffset := -1
	for {
		line := ""
		if waitForInput {
			fmt.Print("\n->")
			line, _ = reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		} else {
			curr := int(vm.registers[IpReg])
			if _, ok := breakAtOffsets[curr]; lastBreakOffset != curr && ok {
				fmt.Println("breakpoint")
				vm.printCurrentState()
				waitForInput = true
				lastBreakOffset = curr
				continue
			}
		}

		if !waitForInput || line == "n" || line == "next" {
			lastBreakOffset = -1

			vm.execInstructions(true)
			if waitForInput {
				vm.printCurrentState()
			}

			if vm.errcode != nil {
				if vm.errcode != errProgramFinished {
					fmt.Println(vm.errcode.Error())
				}
				return
			}
		} else if line == "r" || line == "run" {
			waitForInput = false
		} else if strings.HasPrefix(line, "b") {
			arg := strings.Join(strings.Split(line, " ")[1:], " ")
			offset, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				fmt.Println("Unknown instruction offset:", err)
			} else if _, ok := breakAtOffsets[int(offset)]; ok {
				delete(breakAtOffsets, int(offset))
			} else {
				breakAtOffsets[int(offset)] = struct{}{}
			}
		}
	}
}

// RunProgram executes the VM's program to completion. The garbage
// collector is disabled for the duration: stack frames live in the
// VM's own byte array rather than the Go heap, so the only allocations
// in the hot loop would be GC bookkeeping itself.
func (vm *VM) RunProgram() {
	key, ok := os.LookupEnv("GOGC")
	if !ok {
		key = "100"
	}
	gcPercent, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		gcPercent = 100
	}

	defer getDefaultRecoverFuncForVM(vm)()
	defer func() {
		debug.SetGCPercent(int(gcPercent))
	}()
	debug.SetGCPercent(-1)

	vm.log.Debug("executing program", "bytes", len(vm.program), "entry", vm.registers[IpReg])
	vm.execInstructions(false)
	vm.log.Debug("program halted", "err", vm.errcode, "ip", vm.registers[IpReg], "sp", vm.registers[SpReg])
	if err := vm.errcode; err != nil && err != errProgramFinished {
		fmt.Println(err)
	}
}
