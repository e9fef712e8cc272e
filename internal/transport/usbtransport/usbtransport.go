// internal/transport/usbtransport/usbtransport.go
// Real bulk-USB Transport backend. Grounded directly on the teacher's
// internal/driver/device/usb_device.go: OpenUSBDevice's
// ctx->device->config->interface->endpoint acquisition chain, the
// claimInterface/releaseInterface pair, and epIn.ReadContext's
// context.WithTimeout wrapping — generalized from one hardcoded
// vendor/product ID and one fixed pair of bulk endpoints to whatever VID:PID
// and endpoint numbers a caller's vendor protocol needs (Sahara/Firehose at
// USB PID 9008, MTK Preloader/DA, Unisoc BootROM/FDL are all bulk or CDC-ACM
// style endpoints underneath).
package usbtransport

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"flashcore/internal/flasherr"
)

// Endpoints names the bulk OUT/IN endpoint addresses to claim, since unlike
// the teacher's single ASIC these vary per vendor mode.
type Endpoints struct {
	Out uint8
	In  uint8
}

// USBTransport is a bulk-USB flashcore Transport.
type USBTransport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	pending bytes.Buffer // bytes read from the device but not yet consumed
}

// Open claims configuration 1 / interface 0 alt-setting 0 of the first
// device matching vid:pid and opens the requested bulk endpoints. Matches
// the teacher's OpenUSBDevice shape exactly except the VID/PID and endpoint
// numbers are parameters instead of package constants.
func Open(vid, pid uint16, ep Endpoints) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportIO,
			fmt.Errorf("open usb device %04x:%04x: %w", vid, pid, err))
	}
	if dev == nil {
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportDisconnected,
			fmt.Errorf("usb device not found (VID:0x%04x PID:0x%04x)", vid, pid))
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("set usb config: %w", err))
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("claim usb interface: %w", err))
	}

	epOut, err := intf.OutEndpoint(int(ep.Out))
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("open out endpoint 0x%02x: %w", ep.Out, err))
	}

	epIn, err := intf.InEndpoint(int(ep.In))
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("open in endpoint 0x%02x: %w", ep.In, err))
	}

	return &USBTransport{
		ctx:    ctx,
		device: dev,
		config: cfg,
		intf:   intf,
		epOut:  epOut,
		epIn:   epIn,
	}, nil
}

// Close releases the interface, configuration, device and context, mirroring
// the teacher's Close's ordered teardown.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}

func (t *USBTransport) fill(ctx context.Context, timeout time.Duration) error {
	buf := make([]byte, 16384)
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := t.epIn.ReadContext(rctx, buf)
	if err != nil {
		if rctx.Err() != nil {
			return flasherr.NewTransportError(flasherr.TransportTimeout, err)
		}
		return flasherr.NewTransportError(flasherr.TransportDisconnected, err)
	}
	t.pending.Write(buf[:n])
	return nil
}

// ReadExact reads bytes into t.pending until n are available, or times out.
func (t *USBTransport) ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for t.pending.Len() < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, flasherr.NewTransportError(flasherr.TransportTimeout, fmt.Errorf("wanted %d bytes, have %d", n, t.pending.Len()))
		}
		if err := t.fill(ctx, remaining); err != nil {
			return nil, err
		}
	}
	out := make([]byte, n)
	copy(out, t.pending.Bytes()[:n])
	t.pending.Next(n)
	return out, nil
}

// ReadUntil reads until terminator trails the accumulated buffer.
func (t *USBTransport) ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.Index(t.pending.Bytes(), terminator); i >= 0 {
			end := i + len(terminator)
			out := make([]byte, end)
			copy(out, t.pending.Bytes()[:end])
			t.pending.Next(end)
			return out, nil
		}
		if t.pending.Len() > max {
			return nil, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("read_until: %d bytes without terminator", t.pending.Len()))
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, flasherr.NewTransportError(flasherr.TransportTimeout, fmt.Errorf("read_until: terminator not seen"))
		}
		if err := t.fill(ctx, remaining); err != nil {
			return nil, err
		}
	}
}

// WriteAll writes p to the OUT endpoint in one call, matching the teacher's
// SendPacket (a single epOut.Write).
func (t *USBTransport) WriteAll(ctx context.Context, p []byte) error {
	_, err := t.epOut.WriteContext(ctx, p)
	if err != nil {
		return flasherr.NewTransportError(flasherr.TransportDisconnected, fmt.Errorf("usb write: %w", err))
	}
	return nil
}

// Flush is a no-op for bulk USB: there is no intermediate buffering beyond
// what the OS driver already flushes on WriteContext return.
func (t *USBTransport) Flush() error { return nil }

// DrainInput discards whatever is already buffered locally and makes one
// best-effort non-blocking-ish short read to pull in anything the device
// already queued, used to resynchronize after a NAK (spec.md §4.3).
func (t *USBTransport) DrainInput() error {
	t.pending.Reset()
	_ = t.fill(context.Background(), 20*time.Millisecond)
	return nil
}

// ControlTransfer issues a raw USB control transfer on the device's
// default endpoint, satisfying transport.ControlTransport. gousb's
// Device.Control has no context parameter; ctx is honored only as a
// pre-flight cancellation check, matching gousb's own synchronous API.
func (t *USBTransport) ControlTransfer(ctx context.Context, requestType, request byte, value, index uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.device.Control(requestType, request, value, index, data)
	if err != nil {
		return 0, flasherr.NewTransportError(flasherr.TransportIO, fmt.Errorf("usb control transfer: %w", err))
	}
	return n, nil
}
