package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rv16/rv16/internal/machine"
	"github.com/rv16/rv16/internal/trace"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <prog.bin>",
		Short: "Load and run a byte image to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpu, _, err := loadProgram(args[0], nil)
			if err != nil {
				return err
			}
			return runAndReport(cpu)
		},
	}
}

func newRunTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-trace <prog.bin> <trace.out>",
		Short: "Run a byte image to completion, recording a JSON Lines cycle trace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpu, _, err := loadProgram(args[0], nil)
			if err != nil {
				return err
			}
			tf, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("rv16: creating %s: %w", args[1], err)
			}
			defer tf.Close()

			sink := trace.NewJSONWriter(tf)
			sink.OnError = func(err error) {
				if logger != nil {
					logger.Warn("trace sink write failed", "error", err)
				}
			}
			cpu.AttachTrace(sink)
			return runAndReport(cpu)
		},
	}
}

// loadProgram reads path, strips the optional CLI container header, and
// returns a freshly constructed CPU with the image loaded at the
// resolved base. output, if non-nil, receives bytes written to the
// console output port; a nil output writes to os.Stdout.
func loadProgram(path string, output *bytes.Buffer) (*machine.CPU, *machine.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("rv16: reading %s: %w", path, err)
	}
	image, base, err := decodeImage(data)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer
	if output != nil {
		out = output
	} else {
		out = os.Stdout
	}
	mem := machine.NewMemory(machine.MemoryConfig{Output: out})
	if err := mem.LoadImage(image, base); err != nil {
		return nil, nil, fmt.Errorf("rv16: %w", err)
	}
	cpu := machine.NewCPU(mem)
	return cpu, mem, nil
}

// runAndReport runs cpu to completion and prints its final state and
// termination reason.
func runAndReport(cpu *machine.CPU) error {
	result, err := cpu.Run(context.Background())
	printRunResult(result)
	if err != nil {
		if logger != nil {
			logger.Error("execution halted with error", "error", err)
		}
		return err
	}
	return nil
}

func printRunResult(result machine.RunResult) {
	s := result.Final
	fmt.Printf("cycles=%d halted=%v cap_hit=%v canceled=%v\n", result.Cycles, result.Halted, result.CapHit, result.Canceled)
	fmt.Printf("PC=0x%04X SP=0x%04X flags=0x%X\n", s.PC, s.SP, s.Flags)
	for i, v := range s.GPR {
		fmt.Printf("R%d=0x%04X ", i, v)
	}
	fmt.Println()
}
