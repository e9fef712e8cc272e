// cmd/flashcore-cli/mtk.go
// `mtk {flash,read,erase,dump-brom}` subcommands. Grounded on
// internal/pipeline's MTKDriver (Preloader negotiates and sends/jumps
// stage-1, XFlash syncs; these commands send no stage-2) plus internal/partop.MTKDevice
// for the partition-level ops spec.md §6 asks the CLI to expose.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/partop"
	"flashcore/internal/pipeline"
	"flashcore/internal/protocol"
	"flashcore/internal/session"
	"flashcore/internal/storage"
)

// mtkDASigLen is the trailing RSA signature length MediaTek's DA loaders
// carry (spec.md §4.3's MTK callout); every Legacy/XFlash-era DA in the
// wild uses this length.
const mtkDASigLen = 256

// mtkUp performs a lightweight Preloader handshake to learn the chip's
// DA load address before constructing the real driver, then runs the full
// eight-step pipeline (spec.md §4.4) with an empty Stage2, so no stage-2
// payload is sent. Preloader.Handshake is idempotent across repeated calls
// on the same just-reset BROM/Preloader session, so re-running it inside
// pipeline.Run's own Negotiate step is safe.
func mtkUp(ctx context.Context, f *commonFlags) (*session.Session, *protocol.XFlash, chipdb.ChipConfig, events.Sink, error) {
	t, err := openSerial(f)
	if err != nil {
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}
	stage1, err := readFile(f.loaderPath)
	if err != nil {
		t.Close()
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}

	logger := newLogger("mtk")
	sess, sink := newSessionWithSink(logger)
	if err := sess.Connect(ctx, t); err != nil {
		t.Close()
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}

	preloader := protocol.NewPreloader(t, sink, logger)
	xflash := protocol.NewXFlash(t, sink, logger)

	if err := preloader.Handshake(ctx); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}
	cfg, err := preloader.GetHWCode(ctx)
	if err != nil {
		sess.Disconnect(ctx)
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}

	driver := pipeline.NewMTKDriver(preloader, xflash, cfg.DAPayloadAddr, mtkDASigLen, cfg.DAPayloadAddr)
	driver.SetStage2Target(cfg.DAPayloadAddr)

	if _, err := pipeline.Run(ctx, driver, pipeline.Stage1{Payload: stage1}, pipeline.Stage2{}, sink, logger); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}
	shutdown := func(ctx context.Context) error {
		return xflash.Shutdown(ctx, 0)
	}
	if err := sess.Authenticated(shutdown); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}
	if err := sess.Ready(); err != nil {
		sess.Disconnect(ctx)
		return nil, nil, chipdb.ChipConfig{}, nil, err
	}
	return sess, xflash, cfg, sink, nil
}

// mtkTable reads the GPT over the user-data region's first sectors via
// XFlash (spec.md §4.5: GPT is the primary MTK partition-table format on
// every XFlash-era chip).
func mtkTable(ctx context.Context, xflash *protocol.XFlash) (storage.Table, error) {
	const sectorSize = 512
	raw, err := xflash.ReadFlash(ctx, 0, qualcommGPTProbeSectors*sectorSize, 0)
	if err != nil {
		return storage.Table{}, fmt.Errorf("read GPT: %w", err)
	}
	table, _, err := storage.ParseGPT(raw)
	if err != nil {
		return storage.Table{}, fmt.Errorf("parse GPT: %w", err)
	}
	return table, nil
}

func newMTKCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mtk",
		Short: "MediaTek BROM/Preloader/XFlash operations",
	}
	root.AddCommand(newMTKFlashCommand())
	root.AddCommand(newMTKReadCommand())
	root.AddCommand(newMTKEraseCommand())
	root.AddCommand(newMTKDumpBromCommand())
	return root
}

func newMTKFlashCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash a partition over XFlash",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, xflash, _, sink, err := mtkUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := mtkTable(ctx, xflash)
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
			device := partop.MTKDevice{XFlash: xflash}
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

func newMTKReadCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a partition into a file over XFlash",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, xflash, _, sink, err := mtkUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := mtkTable(ctx, xflash)
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

			device := partop.MTKDevice{XFlash: xflash}
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

func newMTKEraseCommand() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a partition over XFlash",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, xflash, _, sink, err := mtkUp(ctx, f)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			table, err := mtkTable(ctx, xflash)
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
			device := partop.MTKDevice{XFlash: xflash}
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

// mtkBromDumpWords is how many 32-bit words newMTKDumpBromCommand reads
// from BROM's base address; enough to cover the SRAM window every public
// MTK BROM dump tool starts from.
const mtkBromDumpWords = 0x4000

// newMTKDumpBromCommand talks to the Preloader/BROM stage directly (no DA
// upload), word-reading a fixed SRAM window via Preloader.Read32 — the one
// primitive available before any stage is uploaded.
func newMTKDumpBromCommand() *cobra.Command {
	f := &commonFlags{}
	var baseAddr uint32
	cmd := &cobra.Command{
		Use:   "dump-brom",
		Short: "Dump a BROM/Preloader SRAM window by word-reading over the handshake connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := openSerial(f)
			if err != nil {
				return err
			}
			defer t.Close()
			if f.filePath == "" {
				return fmt.Errorf("--file is required")
			}

			logger := newLogger("mtk")
			sess, sink := newSessionWithSink(logger)
			if err := sess.Connect(ctx, t); err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			preloader := protocol.NewPreloader(t, sink, logger)
			if err := preloader.Handshake(ctx); err != nil {
				return err
			}
			if err := sess.Authenticated(nil); err != nil {
				return err
			}
			if err := sess.Ready(); err != nil {
				return err
			}

			out, err := os.Create(f.filePath)
			if err != nil {
				return err
			}
			defer out.Close()

			return runWithProgress(ctx, f, sink, func(opCtx context.Context) error {
				return sess.Run(opCtx, func(runCtx context.Context) error {
					buf := make([]byte, 4)
					for i := 0; i < mtkBromDumpWords; i++ {
						if err := runCtx.Err(); err != nil {
							return err
						}
						word, err := preloader.Read32(runCtx, baseAddr+uint32(i*4))
						if err != nil {
							return err
						}
						binary.LittleEndian.PutUint32(buf, word)
						if _, err := out.Write(buf); err != nil {
							return err
						}
						sink.Emit(events.Progress(int64((i+1)*4), int64(mtkBromDumpWords*4)))
					}
					return nil
				})
			})
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().Uint32Var(&baseAddr, "base-addr", 0, "SRAM base address to start reading from")
	return cmd
}
