package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rv16/rv16/internal/asm"
)

func newAssembleCmd() *cobra.Command {
	var container bool
	cmd := &cobra.Command{
		Use:   "assemble <in.asm> <out.bin>",
		Short: "Assemble a source file into a raw byte image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("rv16: reading %s: %w", args[0], err)
			}

			result, err := asm.Assemble(string(src))
			if err != nil {
				if logger != nil {
					logger.Error("assembly failed", "error", err)
				}
				fmt.Fprintln(os.Stderr, err)
				return fmt.Errorf("assembly failed")
			}

			out := result.Bytes
			if container {
				out = encodeContainer(result.Bytes, result.Base)
			}
			if err := os.WriteFile(args[1], out, 0o644); err != nil {
				return fmt.Errorf("rv16: writing %s: %w", args[1], err)
			}
			fmt.Printf("assembled %d bytes at 0x%04X -> %s\n", len(result.Bytes), result.Base, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&container, "container", false, "wrap output in the RV16 container header")
	return cmd
}
