package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rv16/rv16/internal/asm"
	"github.com/rv16/rv16/internal/machine"
)

// newDebugCmd builds the interactive single-step REPL, grounded on the
// teacher's RunProgramDebugMode loop but re-expressed for this ISA's
// address-based breakpoints: there is no source-line concept once a
// program is loaded as bytes, only the PC.
func newDebugCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "debug <prog.bin>",
		Short: "Step a byte image interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch > 1 {
				return runBatch(args[0], batch)
			}
			cpu, mem, err := loadProgram(args[0], nil)
			if err != nil {
				return err
			}
			runDebugREPL(cpu, mem)
			return nil
		},
	}
	cmd.Flags().IntVarP(&batch, "batch", "n", 1, "run N independent VM instances on their own goroutines instead of the interactive REPL")
	return cmd
}

// runBatch runs n independent machine.CPU/Memory instances concurrently,
// one per goroutine, and reports each one's outcome. It exists to
// demonstrate that nothing in internal/machine is safe for concurrent use
// WITHIN one instance, while distinct instances share no state at all
// (SPEC_FULL.md §5).
func runBatch(path string, n int) error {
	var wg sync.WaitGroup
	results := make([]machine.RunResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cpu, _, err := loadProgram(path, nil)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = cpu.Run(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		fmt.Printf("instance %d: ", i)
		if errs[i] != nil {
			fmt.Println(errs[i])
			continue
		}
		printRunResult(results[i])
	}
	return nil
}

func runDebugREPL(cpu *machine.CPU, mem *machine.Memory) {
	fmt.Println("Commands: n/next, r/run, b <addr>, regs, mem <addr> [len], dis [addr], quit")
	printRunResult(machine.RunResult{Final: cpu.Reg.Snapshot()})

	breakpoints := make(map[uint16]struct{})
	reader := bufio.NewReader(os.Stdin)
	running := false

	for {
		if !running {
			fmt.Print("\n-> ")
			line, _ := reader.ReadString('\n')
			line = strings.TrimSpace(line)
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch strings.ToLower(fields[0]) {
			case "n", "next":
				if stepOnce(cpu) {
					return
				}
				printRegs(cpu)
			case "r", "run":
				running = true
			case "b", "break":
				if len(fields) < 2 {
					fmt.Println("usage: b <addr>")
					continue
				}
				addr, err := parseAddr(fields[1])
				if err != nil {
					fmt.Println(err)
					continue
				}
				if _, ok := breakpoints[addr]; ok {
					delete(breakpoints, addr)
					fmt.Printf("breakpoint cleared at 0x%04X\n", addr)
				} else {
					breakpoints[addr] = struct{}{}
					fmt.Printf("breakpoint set at 0x%04X\n", addr)
				}
			case "regs":
				printRegs(cpu)
			case "mem":
				if len(fields) < 2 {
					fmt.Println("usage: mem <addr> [len]")
					continue
				}
				addr, err := parseAddr(fields[1])
				if err != nil {
					fmt.Println(err)
					continue
				}
				n := 16
				if len(fields) >= 3 {
					if v, err := strconv.Atoi(fields[2]); err == nil {
						n = v
					}
				}
				dumpMem(mem, addr, n)
			case "dis":
				addr := cpu.Reg.PC
				if len(fields) >= 2 {
					a, err := parseAddr(fields[1])
					if err != nil {
						fmt.Println(err)
						continue
					}
					addr = a
				}
				dumpDisassembly(mem, addr)
			case "q", "quit", "exit":
				return
			default:
				fmt.Println("unknown command:", fields[0])
			}
			continue
		}

		// Running freely until halt, an error, or a breakpoint; no cycle cap
		// applies in this loop.
		if _, ok := breakpoints[cpu.Reg.PC]; ok {
			fmt.Printf("breakpoint hit at 0x%04X\n", cpu.Reg.PC)
			running = false
			printRegs(cpu)
			continue
		}
		if stepOnce(cpu) {
			return
		}
	}
}

// stepOnce steps the CPU once and reports whether the REPL should exit
// (the CPU halted or failed).
func stepOnce(cpu *machine.CPU) bool {
	if cpu.Reg.Halted {
		fmt.Println("halted")
		return true
	}
	if err := cpu.Step(); err != nil {
		fmt.Println("error:", err)
		return true
	}
	return false
}

func printRegs(cpu *machine.CPU) {
	s := cpu.Reg.Snapshot()
	fmt.Printf("PC=0x%04X SP=0x%04X flags=0x%X  R0=0x%04X R1=0x%04X R2=0x%04X R3=0x%04X\n",
		s.PC, s.SP, s.Flags, s.GPR[0], s.GPR[1], s.GPR[2], s.GPR[3])
}

func dumpMem(mem *machine.Memory, addr uint16, n int) {
	for i := 0; i < n; i++ {
		if i%8 == 0 {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("0x%04X:", addr+uint16(i))
		}
		fmt.Printf(" %02X", mem.ReadByte(addr+uint16(i)))
	}
	fmt.Println()
}

func dumpDisassembly(mem *machine.Memory, addr uint16) {
	const window = 32
	image := make([]byte, window)
	for i := range image {
		image[i] = mem.ReadByte(addr + uint16(i))
	}
	lines, err := asm.Disassemble(image, addr)
	if err != nil {
		fmt.Println("disassembly error:", err)
		return
	}
	for _, l := range lines {
		fmt.Println(l.String())
	}
}

func parseAddr(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}
