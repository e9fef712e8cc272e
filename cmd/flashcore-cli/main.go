// cmd/flashcore-cli/main.go
// Reference CLI entry point (spec.md §6: "there is no CLI in the core;
// callers are expected to wrap it"). Grounded on the teacher's cmd/cli/
// main.go: a cobra root command wiring subcommands and delegating to
// Execute(), generalized from one hardcoded hasher-host command tree to
// flashcore's per-vendor surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "flashcore-cli",
		Short: "Reference CLI over the flashcore bootrom-flashing core",
		Long: "flashcore-cli drives Qualcomm Sahara/Firehose, MediaTek BROM/Preloader/\n" +
			"XFlash, and Unisoc BootROM/FDL sessions. Set FLASHCORE_LOG=debug|info|\n" +
			"warn|error to control log verbosity.",
	}
	root.AddCommand(newQualcommCommand())
	root.AddCommand(newMTKCommand())
	root.AddCommand(newUnisocCommand())
	root.AddCommand(newStatusCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
