// cmd/flashcore-cli/unisoc.go
// `unisoc {flash,backup}` subcommands. Grounded on internal/pipeline's
// UnisocDriver (one SprdBootROM machine) plus internal/partop.UnisocDevice
// for partition ops. Both commands load only the --loader image as FDL1 and
// pass no FDL2, so partition traffic is served by FDL1.
// Unisoc's partition table comes from a PAC archive's TOC rather than a
// device query (internal/storage.ParsePAC), so flash takes the PAC file
// directly as --file and slices each child's payload out of it.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashcore/internal/events"
	"flashcore/internal/partop"
	"flashcore/internal/pipeline"
	"flashcore/internal/protocol"
	"flashcore/internal/session"
	"flashcore/internal/storage"
)

// unisocStage1Addr/unisocStage2Addr are the FDL1/FDL2 SRAM load addresses
// every public Unisoc bring-up note documents for the BSL ROM's default
// loader slots.
const (
	unisocStage1Addr = 0x5500
	unisocStage2Addr = 0x9EFFFE00
	unisocChunkSize  = 4096
)

func unisocUp(ctx context.Context, f *commonFlags, fdl1, fdl2 []byte) (*session.Session, *protocol.SprdBootROM, events.Sink, error) {
	t, err := openSerial(f)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger("unisoc")
	sess, sink := newSessionWithSink(logger)
	if err := sess.Connect(ctx, t); err != nil {
		t.Close()
		return nil, nil, nil, err
	}

	bootROM := protocol.NewSprdBootROM(t, sink, logger)
	driver := pipeline.NewUnisocDriver(bootROM, unisocStage1Addr, unisocStage2Addr, unisocChunkSize)

	if _, err := pipeline.Run(ctx, driver, pipeline.Stage1{Payload: fdl1}, pipeline.Stage2{Payload: fdl2}, sink, logger); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}
	shutdown := func(ctx context.Context) error {
		return bootROM.Reset(ctx)
	}
	if err := sess.Authenticated(shutdown); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}
	if err := sess.Ready(); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}
	return sess, bootROM, sink, nil
}

func newUnisocCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "unisoc",
		Short: "Unisoc BootROM/FDL operations",
	}
	root.AddCommand(newUnisocFlashCommand())
	root.AddCommand(newUnisocBackupCommand())
	return root
}

// newUnisocFlashCommand flashes an entire PAC package (or a single child
// named by --partition) by slicing payload bytes straight out of the PAC
// archive at the offsets storage.ParsePAC recovered from its TOC.
func newUnisocFlashCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash a PAC package (or one of its partitions) over FDL1",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pac, err := readFile(f.filePath)
			if err != nil {
				return err
			}
			table, err := storage.ParsePAC(pac)
			if err != nil {
				return err
			}

			fdl1, err := readFile(f.loaderPath)
			if err != nil {
				return err
			}
			sess, bootROM, sink, err := unisocUp(ctx, f, fdl1, nil)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			targets := table.Partitions
			if f.partition != "" {
				part, err := table.Find(f.partition, f.slot)
				if err != nil {
					return err
				}
				targets = []storage.Partition{part}
			}

			if err := confirm(f, "flash", f.filePath); err != nil {
				return err
			}

			device := partop.UnisocDevice{BootROM: bootROM}
			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					for _, part := range targets {
						slice, err := pacSlice(pac, part)
						if err != nil {
							return err
						}
						if err := partop.Write(runCtx, device, part, bytes.NewReader(slice), int64(len(slice)), sink); err != nil {
							return fmt.Errorf("flash %s: %w", part.Name, err)
						}
					}
					return nil
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}

func newUnisocBackupCommand() *cobra.Command {
	f := &commonFlags{}
	var length uint64
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up a named partition to a file over FDL1",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if f.partition == "" {
				return fmt.Errorf("--partition is required")
			}
			if length == 0 {
				return fmt.Errorf("--length is required (bytes to read)")
			}
			if f.filePath == "" {
				return fmt.Errorf("--file is required")
			}

			fdl1, err := readFile(f.loaderPath)
			if err != nil {
				return err
			}
			sess, bootROM, sink, err := unisocUp(ctx, f, fdl1, nil)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			out, err := os.Create(f.filePath)
			if err != nil {
				return err
			}
			defer out.Close()

			part := storage.Partition{Name: f.partition, SectorSize: 512, SectorCount: (length + 511) / 512}
			device := partop.UnisocDevice{BootROM: bootROM}
			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					return partop.Read(runCtx, device, part, out, sink)
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().Uint64Var(&length, "length", 0, "bytes to read back from the partition")
	return cmd
}

// pacSlice recovers the raw payload bytes for part from the PAC archive,
// using the byte extent storage.ParsePAC folded into StartSector/
// SectorCount (spec.md §4.5: "the payload bytes for each partition live at
// DataOffset in the same archive").
func pacSlice(pac []byte, part storage.Partition) ([]byte, error) {
	start := part.StartSector * uint64(part.SectorSize)
	end := start + part.SectorCount*uint64(part.SectorSize)
	if end > uint64(len(pac)) {
		end = uint64(len(pac))
	}
	if start > end {
		return nil, fmt.Errorf("pac: %s extent out of range", part.Name)
	}
	return pac[start:end], nil
}
