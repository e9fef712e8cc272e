// cmd/flashcore-cli/common.go
// Shared flag plumbing and transport/session setup for every vendor
// subcommand. Grounded on the teacher's cmd/cli/main.go: a handful of
// package-level flag variables read by cobra.Command.RunE, generalized
// from one hardcoded hasher-host flow to three vendor flash flows sharing
// one --port/--loader/--partition/--file/--slot/--yes surface (spec.md
// §6's "CLI surface").
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"flashcore/internal/events"
	"flashcore/internal/flashlog"
	"flashcore/internal/session"
	"flashcore/internal/transport"
	"flashcore/internal/transport/serialtransport"
)

// commonFlags mirrors spec.md §6's CLI surface: every vendor subcommand
// accepts the same set, even though each uses only a subset.
type commonFlags struct {
	port        string
	loaderPath  string
	partition   string
	filePath    string
	slot        string
	yes         bool
	interactive bool
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags) {
	cmd.Flags().StringVar(&f.port, "port", "", "serial or USB port to open")
	cmd.Flags().StringVar(&f.loaderPath, "loader", "", "stage-1/stage-2 loader binary path")
	cmd.Flags().StringVar(&f.partition, "partition", "", "target partition name")
	cmd.Flags().StringVar(&f.filePath, "file", "", "payload file (read destination or write source)")
	cmd.Flags().StringVar(&f.slot, "slot", "", "A/B slot: a, b, or both")
	cmd.Flags().BoolVar(&f.yes, "yes", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&f.interactive, "interactive", false, "show a live TUI progress view")
}

// confirm asks the user to type the exact partition/port name before a
// destructive op runs, unless --yes was passed. Grounded on promptui's
// Prompt type, used nowhere in the teacher (which never destroys user
// data) but present in the broader example pack for exactly this
// confirm-before-destructive-action shape.
func confirm(f *commonFlags, action, target string) error {
	if f.yes {
		return nil
	}
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Type %q to confirm %s", target, action),
		Validate: func(input string) error {
			if input != target {
				return fmt.Errorf("does not match %q", target)
			}
			return nil
		},
	}
	_, err := prompt.Run()
	if err != nil {
		return fmt.Errorf("confirmation aborted: %w", err)
	}
	return nil
}

// openSerial opens f.port at the vendor-standard 115200-8N1 framing every
// bootrom/diag port in this core speaks.
func openSerial(f *commonFlags) (transport.Transport, error) {
	if f.port == "" {
		return nil, fmt.Errorf("--port is required")
	}
	return serialtransport.Open(f.port, transport.DefaultConfig())
}

// newLogger builds the ambient logger, honoring FLASHCORE_LOG per spec.md
// §6's "callers may set FLASHCORE_LOG=debug|info|warn|error".
func newLogger(prefix string) *flashlog.Logger {
	return flashlog.New(os.Stderr, flashlog.LevelFromEnv(), prefix)
}

// runWithProgress drains sink to stdout (or to a bubbletea view when
// f.interactive is set) while fn runs, returning fn's error.
func runWithProgress(ctx context.Context, f *commonFlags, sink events.Sink, fn func(ctx context.Context) error) error {
	if f.interactive {
		return runInteractive(ctx, sink, fn)
	}

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	for {
		select {
		case e := <-sink:
			fmt.Fprintln(os.Stdout, e.String())
		case err := <-done:
			drainSink(sink)
			return err
		case <-time.After(5 * time.Second):
			// idle tick; nothing to print, keeps the select alive between
			// events on a quiet long-running op.
		}
	}
}

func drainSink(sink events.Sink) {
	for {
		select {
		case e := <-sink:
			fmt.Fprintln(os.Stdout, e.String())
		default:
			return
		}
	}
}

// readFile loads a payload file in full. Sparse images are distinguished
// by the caller checking the magic (see partop.WriteSparse).
func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	return os.ReadFile(path)
}

// sparseImageMagic is the Android sparse format's little-endian header
// magic (internal/sparse's unexported sparseMagic, duplicated here since
// detecting the format is the CLI's job before picking Write vs
// WriteSparse).
const sparseImageMagic = 0xED26FF3A

func isSparseImage(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	return magic == sparseImageMagic
}

// newSessionWithSink constructs a Session together with the event sink it
// emits into, and returns both.
func newSessionWithSink(log *flashlog.Logger) (*session.Session, events.Sink) {
	sink := events.NewSink(64)
	return session.New(sink, log), sink
}
