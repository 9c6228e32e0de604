// Command rv16 is the assembler/emulator toolchain CLI: assemble source to
// a byte image, run it, trace it, or step it under an interactive
// debugger.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rv16/rv16/internal/rvlog"
)

var (
	logLevel string
	logFile  string
	logger   *slog.Logger
)

func main() {
	root := &cobra.Command{
		Use:   "rv16",
		Short: "Assembler and emulator for the rv16 16-bit instruction set",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var file io.Writer
			if logFile != "" {
				f, err := os.Create(logFile)
				if err != nil {
					return fmt.Errorf("rv16: creating log file %s: %w", logFile, err)
				}
				file = f
			}
			logger = rvlog.New(file, rvlog.ParseLevel(logLevel), slog.LevelWarn)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "write structured logs to this file in addition to stderr (warn and above only)")

	root.AddCommand(newAssembleCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newRunTraceCmd())
	root.AddCommand(newDebugCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
