// internal/hwcrypto/cqdma.go
// CQDMA (Crypto Queue DMA) arbitrary-memory primitive (spec.md §4.7): a
// chip-specific DMA engine whose source/destination/length registers are
// not blacklist-checked, letting it copy to or from any address in the
// 32-bit space including BROM-protected regions. Grounded on the poll-with-
// timeout register pattern in ioctl.go's IOCTLDevice, generalized to
// CQDMA's stop-reset-clear init plus program-then-poll op sequence.
package hwcrypto

import (
	"context"
	"time"

	"flashcore/internal/flasherr"
)

// CQDMA register offsets relative to a chip's CQDMABase (spec.md §4.7).
const (
	cqdmaOffSrc     = 0x00
	cqdmaOffDst     = 0x04
	cqdmaOffLen     = 0x08
	cqdmaOffControl = 0x0C
	cqdmaOffEnable  = 0x10
	cqdmaOffIntFlag = 0x14

	cqdmaControlReset     = 0x1
	cqdmaControlBurst16   = 0x2 << 4 // burst size = 16 bytes, word size = 4 bytes
	cqdmaEnableGo         = 0x1
	cqdmaIntFlagClear     = 0x1
	cqdmaIntFlagDoneMask  = 0x1
	cqdmaChunkSize        = 16
	cqdmaPollInterval     = 5 * time.Millisecond
	cqdmaPollTimeout      = 1 * time.Second
)

// CQDMA drives a chip's CQDMA base register block.
type CQDMA struct {
	IO   RegisterIO
	Base uint32
}

// NewCQDMA constructs a CQDMA engine bound to base.
func NewCQDMA(io RegisterIO, base uint32) *CQDMA {
	return &CQDMA{IO: io, Base: base}
}

// Init performs stop+reset+clear-ints (spec.md §4.7).
func (c *CQDMA) Init(ctx context.Context) error {
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffEnable, 0); err != nil {
		return err
	}
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffControl, cqdmaControlReset); err != nil {
		return err
	}
	return c.IO.Write32(ctx, c.Base+cqdmaOffIntFlag, cqdmaIntFlagClear)
}

// MemRead copies length bytes from the arbitrary address src into a
// caller-owned scratch buffer at a normally-addressable scratch address,
// then reads the scratch bytes back via the chip's ordinary register read
// (spec.md §4.7: "MEM_READ is DMA(src=target, dst=scratch); then read
// scratch via the preloader's normal read32"). The copy runs in
// cqdmaChunkSize chunks; a final chunk shorter than that is copied as is.
func (c *CQDMA) MemRead(ctx context.Context, src, scratch uint32, length uint32) ([]byte, error) {
	out := make([]byte, 0, length)
	for off := uint32(0); off < length; off += cqdmaChunkSize {
		n := cqdmaChunkSize
		if remaining := length - off; remaining < cqdmaChunkSize {
			n = int(remaining)
		}
		if err := c.transfer(ctx, src+off, scratch, uint32(n)); err != nil {
			return nil, err
		}
		chunk, err := readWords(ctx, c.IO, scratch, (n+3)/4)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk[:n]...)
	}
	return out, nil
}

// MemWrite is the converse of MemRead: stage data into scratch via the
// chip's ordinary register write, then DMA scratch into the arbitrary
// destination dst.
func (c *CQDMA) MemWrite(ctx context.Context, dst, scratch uint32, data []byte) error {
	for off := 0; off < len(data); off += cqdmaChunkSize {
		end := off + cqdmaChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		if err := writeWords(ctx, c.IO, scratch, chunk); err != nil {
			return err
		}
		if err := c.transfer(ctx, scratch, dst+uint32(off), uint32(len(chunk))); err != nil {
			return err
		}
	}
	return nil
}

func (c *CQDMA) transfer(ctx context.Context, src, dst, length uint32) error {
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffSrc, src); err != nil {
		return err
	}
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffDst, dst); err != nil {
		return err
	}
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffLen, length); err != nil {
		return err
	}
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffControl, cqdmaControlBurst16); err != nil {
		return err
	}
	if err := c.IO.Write32(ctx, c.Base+cqdmaOffEnable, cqdmaEnableGo); err != nil {
		return err
	}
	return c.pollDone(ctx)
}

func (c *CQDMA) pollDone(ctx context.Context) error {
	deadline := time.Now().Add(cqdmaPollTimeout)
	for {
		flag, err := c.IO.Read32(ctx, c.Base+cqdmaOffIntFlag)
		if err != nil {
			return err
		}
		if flag&cqdmaIntFlagDoneMask != 0 {
			return c.IO.Write32(ctx, c.Base+cqdmaOffIntFlag, cqdmaIntFlagClear)
		}
		if time.Now().After(deadline) {
			return flasherr.NewTimeoutError("cqdma_poll")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cqdmaPollInterval):
		}
	}
}

// DisableBlacklistEntry overwrites the blacklist entry at entryAddr
// (spec.md §4.7: `{flags:u32, _:u32, start:u32, end:u32}`) so start=end=0.
// It writes the two words with the plain RegisterIO.Write32, not through
// a CQDMA transfer, so it only succeeds where entryAddr is already
// writable by an ordinary register write.
func (c *CQDMA) DisableBlacklistEntry(ctx context.Context, entryAddr uint32) error {
	if err := c.IO.Write32(ctx, entryAddr+8, 0); err != nil { // start
		return err
	}
	return c.IO.Write32(ctx, entryAddr+12, 0) // end
}
