// cmd/flashcore-cli/qualcomm.go
// `qualcomm {flash,read,erase}` subcommands. Grounded on internal/pipeline's
// existing QualcommDriver (Sahara streams the programmer, Firehose takes
// over) plus internal/partop.QualcommDevice for the partition-level ops
// spec.md §6 asks the CLI to expose.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashcore/internal/auth"
	"flashcore/internal/events"
	"flashcore/internal/partop"
	"flashcore/internal/pipeline"
	"flashcore/internal/protocol"
	"flashcore/internal/session"
	"flashcore/internal/storage"
)

const qualcommGPTProbeSectors = 34 // protective MBR + primary GPT header + 32 entry sectors, spec.md §4.5

// qualcommUp negotiates Sahara+Firehose over an opened serial port and
// authenticates, returning a ready session plus the live Firehose to drive
// partition ops through.
func qualcommUp(ctx context.Context, f *commonFlags) (*session.Session, *protocol.Firehose, events.Sink, error) {
	t, err := openSerial(f)
	if err != nil {
		return nil, nil, nil, err
	}
	loader, err := readFile(f.loaderPath)
	if err != nil {
		t.Close()
		return nil, nil, nil, err
	}

	logger := newLogger("qualcomm")
	sess, sink := newSessionWithSink(logger)
	if err := sess.Connect(ctx, t); err != nil {
		t.Close()
		return nil, nil, nil, err
	}

	sahara := protocol.NewSahara(t, bytes.NewReader(loader), sink, logger)
	firehose := protocol.NewFirehose(t, sink, logger)
	driver := pipeline.NewQualcommDriver(sahara, firehose, 0)

	if _, err := pipeline.Run(ctx, driver, pipeline.Stage1{Payload: loader}, pipeline.Stage2{}, sink, logger); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}

	ok, err := session.AuthenticateQualcomm(ctx, sess, firehose, auth.Standard{}, f.loaderPath)
	if err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}
	if !ok {
		sess.Disconnect(ctx)
		return nil, nil, nil, fmt.Errorf("qualcomm: authentication rejected")
	}
	if err := sess.Ready(); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, nil, err
	}
	return sess, firehose, sink, nil
}

// qualcommTable reads the GPT from LUN 0 and parses it via storage.ParseGPT
// (spec.md §4.5: GPT is the primary Qualcomm partition-table format).
func qualcommTable(ctx context.Context, fh *protocol.Firehose) (storage.Table, error) {
	const sectorSize = 512
	raw, err := fh.ReadChunk(ctx, 0, 0, qualcommGPTProbeSectors, sectorSize)
	if err != nil {
		return storage.Table{}, fmt.Errorf("read GPT: %w", err)
	}
	table, _, err := storage.ParseGPT(raw)
	if err != nil {
		return storage.Table{}, fmt.Errorf("parse GPT: %w", err)
	}
	return table, nil
}

func newQualcommCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "qualcomm",
		Short: "Qualcomm Sahara/Firehose EDL operations",
	}
	root.AddCommand(newQualcommFlashCommand())
	root.AddCommand(newQualcommReadCommand())
	root.AddCommand(newQualcommEraseCommand())
	return root
}

func newQualcommFlashCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash a partition over Firehose",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, fh, sink, err := qualcommUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := qualcommTable(ctx, fh)
			if err != nil {
				return err
			}
			part, err := table.Find(f.partition, f.slot)
			if err != nil {
				return err
			}
			payload, err := readFile(f.filePath)
			if err != nil {
				return err
			}
			if err := confirm(f, "flash", f.partition); err != nil {
				return err
			}
			device := partop.QualcommDevice{Firehose: fh}
			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					if isSparseImage(payload) {
						_, err := partop.WriteSparse(runCtx, device, part, bytes.NewReader(payload), false, sink)
						return err
					}
					return partop.Write(runCtx, device, part, bytes.NewReader(payload), int64(len(payload)), sink)
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}

func newQualcommReadCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a partition into a file over Firehose",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, fh, sink, err := qualcommUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := qualcommTable(ctx, fh)
			if err != nil {
				return err
			}
			part, err := table.Find(f.partition, f.slot)
			if err != nil {
				return err
			}
			if f.filePath == "" {
				return fmt.Errorf("--file is required")
			}
			out, err := os.Create(f.filePath)
			if err != nil {
				return err
			}
			defer out.Close()

			device := partop.QualcommDevice{Firehose: fh}
			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					return partop.Read(runCtx, device, part, out, sink)
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}

func newQualcommEraseCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a partition over Firehose",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, fh, sink, err := qualcommUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := qualcommTable(ctx, fh)
			if err != nil {
				return err
			}
			part, err := table.Find(f.partition, f.slot)
			if err != nil {
				return err
			}
			if err := confirm(f, "erase", f.partition); err != nil {
				return err
			}
			device := partop.QualcommDevice{Firehose: fh}
			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					return partop.Erase(runCtx, device, part, sink)
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}
