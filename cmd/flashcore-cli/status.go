// cmd/flashcore-cli/status.go
// `status` subcommand: prints the built-in ChipConfig for --hw-code and
// offers to copy it to the clipboard. Grounded on the teacher's clipboard.WriteAll
// call sites in internal/cli/ui.go (copying a selected chat/log line to
// the system clipboard).
package main

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"flashcore/internal/chipdb"
)

func formatDeviceInfo(cfg chipdb.ChipConfig) string {
	return fmt.Sprintf("HWCode=0x%04x Name=%s Description=%s RecommendedExploit=%s",
		cfg.HWCode, cfg.Name, cfg.Description, cfg.RecommendedExploit)
}

func newStatusCommand() *cobra.Command {
	var hwCode uint16
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a built-in ChipConfig entry, optionally copying it to the clipboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ok := chipdb.Lookup(hwCode)
			if !ok {
				return fmt.Errorf("no built-in ChipConfig for hw-code 0x%04x", hwCode)
			}
			info := formatDeviceInfo(cfg)
			fmt.Println(info)
			if copyToClipboard {
				if err := clipboard.WriteAll(info); err != nil {
					return fmt.Errorf("copy device info: %w", err)
				}
				fmt.Println("(copied to clipboard)")
			}
			return nil
		},
	}
	cmd.Flags().Uint16Var(&hwCode, "hw-code", 0, "hw-code to look up (e.g. 0x0717)")
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "copy the device info line to the clipboard")
	return cmd
}
