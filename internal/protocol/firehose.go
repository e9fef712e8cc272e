// internal/protocol/firehose.go
// Firehose state machine (spec.md §4.3, Qualcomm stage-2): XML
// request/response over the same transport Sahara handed off. Grounded on
// the teacher's checkDeviceHealth request/verify-response pattern in
// controller.go, generalized from a fixed RxStatus packet to an arbitrary
// XML command whose completion is an ACK/NAK response rather than a fixed
// byte layout.
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
	"flashcore/internal/framer"
	"flashcore/internal/transport"
)

// Firehose drives the Qualcomm stage-2 XML protocol over t.
type Firehose struct {
	Transport transport.Transport
	Sink      events.Sink
	Log       *flashlog.Logger

	state          State
	maxPayloadSize uint32
}

// NewFirehose constructs a Firehose machine already in StateReady (the
// handoff from Sahara leaves the device ready for `configure`).
func NewFirehose(t transport.Transport, sink events.Sink, log *flashlog.Logger) *Firehose {
	return &Firehose{Transport: t, Sink: sink, Log: log, state: StateReady, maxPayloadSize: 1048576}
}

// State reports the machine's current lifecycle node.
func (f *Firehose) State() State { return f.state }

// Configure negotiates MaxPayloadSize and verbosity (spec.md §4.3's
// `configure` op). SkipWrite and AckRawData are carried per the spec but
// fixed at the conservative defaults (0, true) — nothing in this codebase
// needs the unsafe SkipWrite=1 fast path.
func (f *Firehose) Configure(ctx context.Context, maxPayloadSize uint32, verbose bool) error {
	body := fmt.Sprintf(
		`<configure MemoryName="UFS" MaxPayloadSizeToTargetInBytes="%d" SkipWrite="0" SkipStorageInit="0" Verbose="%s" AckRawData="1"/>`,
		maxPayloadSize, boolAttr(verbose))
	_, responses, err := f.exchange(ctx, body, HandshakeTimeout)
	if err != nil {
		return err
	}
	if err := requireAck(responses); err != nil {
		return err
	}
	f.maxPayloadSize = maxPayloadSize
	return nil
}

// Nop issues a no-op round-trip, used both as a keepalive and as the
// post-auth confirmation several §4.9 strategies require.
func (f *Firehose) Nop(ctx context.Context) error {
	_, responses, err := f.exchange(ctx, `<nop/>`, FrameTimeout)
	if err != nil {
		return err
	}
	return requireAck(responses)
}

// Power issues a power command (spec.md §4.3): mode is e.g. "reset" or
// "off".
func (f *Firehose) Power(ctx context.Context, mode string) error {
	body := fmt.Sprintf(`<power value="%s"/>`, mode)
	_, responses, err := f.exchange(ctx, body, FrameTimeout)
	if err != nil {
		return err
	}
	return requireAck(responses)
}

// GetStorageInfo requests the device's storage geometry, returning the raw
// response attribute set for the caller (internal/storage, internal/
// session) to interpret.
func (f *Firehose) GetStorageInfo(ctx context.Context, physicalPartition int) (map[string]string, error) {
	body := fmt.Sprintf(`<getstorageinfo physical_partition_number="%d"/>`, physicalPartition)
	_, responses, err := f.exchange(ctx, body, FrameTimeout)
	if err != nil {
		return nil, err
	}
	if err := requireAck(responses); err != nil {
		return nil, err
	}
	return responses[len(responses)-1].Attrs, nil
}

// Erase issues an erase command covering [startSector, startSector+
// numSectors) on physicalPartition (spec.md §4.10).
func (f *Firehose) Erase(ctx context.Context, physicalPartition int, startSector, numSectors uint64) error {
	body := fmt.Sprintf(
		`<erase physical_partition_number="%d" start_sector="%d" num_partition_sectors="%d"/>`,
		physicalPartition, startSector, numSectors)
	_, responses, err := f.exchange(ctx, body, EraseTimeout)
	if err != nil {
		return err
	}
	return requireAck(responses)
}

// ProgramChunk issues one `program` command for [startSector,
// startSector+numSectors) and streams data immediately after the device
// ACKs the command, per spec.md §4.3's Firehose contract.
func (f *Firehose) ProgramChunk(ctx context.Context, physicalPartition int, startSector, numSectors uint64, sectorSize int, data []byte) error {
	if len(data) != int(numSectors)*sectorSize {
		return flasherr.NewStorageError(flasherr.StorageSizeMismatch, "")
	}
	body := fmt.Sprintf(
		`<program physical_partition_number="%d" start_sector="%d" num_partition_sectors="%d" SECTOR_SIZE_IN_BYTES="%d"/>`,
		physicalPartition, startSector, numSectors, sectorSize)
	if err := f.Transport.WriteAll(ctx, framer.EncodeFirehoseCommand(body)); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := f.Transport.WriteAll(ctx, data); err != nil {
			return err
		}
		if pad := len(data) % 512; pad != 0 {
			if err := f.Transport.WriteAll(ctx, make([]byte, 512-pad)); err != nil {
				return err
			}
		}
	}
	responses, err := f.readResponses(ctx, FrameTimeout)
	if err != nil {
		return err
	}
	return requireAck(responses)
}

// ReadChunk issues one `read` command and returns the raw sector bytes that
// follow the device's ACK (spec.md §4.10's read-partition streaming).
func (f *Firehose) ReadChunk(ctx context.Context, physicalPartition int, startSector, numSectors uint64, sectorSize int) ([]byte, error) {
	body := fmt.Sprintf(
		`<read physical_partition_number="%d" start_sector="%d" num_partition_sectors="%d" SECTOR_SIZE_IN_BYTES="%d"/>`,
		physicalPartition, startSector, numSectors, sectorSize)
	if err := f.Transport.WriteAll(ctx, framer.EncodeFirehoseCommand(body)); err != nil {
		return nil, err
	}
	want := int(numSectors) * sectorSize
	data, err := f.Transport.ReadExact(ctx, want, FrameTimeout)
	if err != nil {
		return nil, err
	}
	if pad := want % 512; pad != 0 {
		if _, err := f.Transport.ReadExact(ctx, 512-pad, FrameTimeout); err != nil {
			return nil, err
		}
	}
	responses, err := f.readResponses(ctx, FrameTimeout)
	if err != nil {
		return nil, err
	}
	if err := requireAck(responses); err != nil {
		return nil, err
	}
	return data, nil
}

// RawCommand sends an arbitrary Firehose XML command body and returns the
// device's response elements, for callers outside this package that speak
// Firehose's command surface directly — internal/auth's VIP/Xiaomi/Nothing
// Phone/OnePlus strategies send vendor-specific elements (`<digest>`,
// `<sig>`, `<ntprojectverify>`, ...) this package has no fixed op for.
func (f *Firehose) RawCommand(ctx context.Context, body string, timeout time.Duration) ([]framer.FirehoseResponse, error) {
	_, responses, err := f.exchange(ctx, body, timeout)
	return responses, err
}

// SendRawData writes a raw byte blob (a digest or signature file) padded to
// the 512-byte boundary Firehose's framing requires, without wrapping it in
// an XML command — used immediately after a RawCommand that told the
// device to expect a binary upload next.
func (f *Firehose) SendRawData(ctx context.Context, data []byte) error {
	if err := f.Transport.WriteAll(ctx, data); err != nil {
		return err
	}
	if pad := len(data) % 512; pad != 0 {
		return f.Transport.WriteAll(ctx, make([]byte, 512-pad))
	}
	return nil
}

// ReadResponses drains response/log elements without sending a command
// first, for callers that already wrote a raw data blob and now need to
// read the device's follow-up ACK/NAK.
func (f *Firehose) ReadResponses(ctx context.Context, timeout time.Duration) ([]framer.FirehoseResponse, error) {
	return f.readResponses(ctx, timeout)
}

func boolAttr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func requireAck(responses []framer.FirehoseResponse) error {
	if len(responses) == 0 {
		return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, 0, "no response")
	}
	last := responses[len(responses)-1]
	if last.Value != "ACK" {
		code, _ := strconv.Atoi(last.Attrs["rawmodeerrcode"])
		return flasherr.NewProtocolError(flasherr.ProtocolNak, code, last.Value)
	}
	return nil
}

// exchange sends one Firehose command and reads back every <log>/
// <response> element in the reply, buffering logs for observability
// (spec.md §4.3: "the state machine buffers interleaved <log> entries...
// but they never satisfy a response wait").
func (f *Firehose) exchange(ctx context.Context, body string, timeout time.Duration) ([]framer.FirehoseLog, []framer.FirehoseResponse, error) {
	if err := f.Transport.WriteAll(ctx, framer.EncodeFirehoseCommand(body)); err != nil {
		return nil, nil, err
	}
	responses, err := f.readResponses(ctx, timeout)
	return nil, responses, err
}

// readResponses pulls one or more 512-byte-padded XML documents off the
// transport until a terminal <response/> element arrives, logging any
// interleaved <log> elements as it goes.
func (f *Firehose) readResponses(ctx context.Context, timeout time.Duration) ([]framer.FirehoseResponse, error) {
	var all []framer.FirehoseResponse
	for {
		raw, err := f.Transport.ReadExact(ctx, 512, timeout)
		if err != nil {
			return nil, err
		}
		logs, responses, err := framer.DecodeFirehoseFrame(raw)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			f.Sink.Emit(events.Log("firehose: %s", l.Value))
		}
		all = append(all, responses...)
		if len(responses) > 0 {
			return all, nil
		}
	}
}
