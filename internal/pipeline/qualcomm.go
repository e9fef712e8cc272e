// internal/pipeline/qualcomm.go
// Qualcomm Driver adapter: Sahara is both the negotiate and the
// send-stage1/jump/sync machinery in one TLV exchange (spec.md §4.3's
// Sahara description), so most steps here are no-ops or thin wrappers —
// Sahara.Run already performs negotiate through sync in a single pass.
// Firehose.Configure covers "disable watchdog" (spec.md §4.4 step 2: "set
// via configure") and stage-2 send/init-device-info.
package pipeline

import (
	"bytes"
	"context"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/protocol"
)

// QualcommDriver drives the EDL pipeline: Sahara streams the programmer,
// then Firehose takes over on the same transport.
type QualcommDriver struct {
	Sahara   *protocol.Sahara
	Firehose *protocol.Firehose
	HWCode   uint16

	storageInfo map[string]string
}

// NewQualcommDriver wires a Sahara+Firehose pair sharing one transport.
func NewQualcommDriver(sahara *protocol.Sahara, firehose *protocol.Firehose, hwCode uint16) *QualcommDriver {
	return &QualcommDriver{Sahara: sahara, Firehose: firehose, HWCode: hwCode}
}

// Negotiate runs the full Sahara handshake: the programmer it streams IS
// the loader selection (chosen by the caller before construction, per
// §4.4 step 1's "select correct loader binary by HW-code").
func (q *QualcommDriver) Negotiate(ctx context.Context) (chipdb.ChipConfig, error) {
	if err := q.Sahara.Run(ctx); err != nil {
		return chipdb.ChipConfig{}, err
	}
	cfg, ok := chipdb.Lookup(q.HWCode)
	if !ok {
		// Qualcomm chips are not all represented in the MTK-oriented
		// built-in table; an empty config with the HW-code set is still
		// useful to the caller for logging.
		cfg = chipdb.ChipConfig{HWCode: q.HWCode, Name: "unknown-qualcomm"}
	}
	return cfg, nil
}

// DisableWatchdog is folded into Firehose's configure exchange on
// Qualcomm (spec.md §4.4 step 2).
func (q *QualcommDriver) DisableWatchdog(ctx context.Context, cfg chipdb.ChipConfig) error {
	return q.Firehose.Configure(ctx, 1048576, false)
}

// SendStage is a no-op: Sahara already streamed the entire programmer
// during Negotiate, and Firehose has no second "send a blob" phase of its
// own — callers program partitions afterward through normal partop calls.
func (q *QualcommDriver) SendStage(ctx context.Context, payload []byte, sink events.Sink) error {
	return nil
}

// Jump is a no-op: Sahara's DONE/DONE_RESP exchange already transitioned
// control to the programmer.
func (q *QualcommDriver) Jump(ctx context.Context) error { return nil }

// Sync issues a Firehose nop as the liveness probe.
func (q *QualcommDriver) Sync(ctx context.Context) error {
	return q.Firehose.Nop(ctx)
}

// InitDRAM is a no-op on Qualcomm: the EDL programmer manages its own
// memory bring-up.
func (q *QualcommDriver) InitDRAM(ctx context.Context, emi []byte) error { return nil }

// InitDeviceInfo requests storage geometry via Firehose.
func (q *QualcommDriver) InitDeviceInfo(ctx context.Context) error {
	info, err := q.Firehose.GetStorageInfo(ctx, 0)
	if err != nil {
		return err
	}
	q.storageInfo = info
	return nil
}

// StorageInfo returns the attributes collected at InitDeviceInfo.
func (q *QualcommDriver) StorageInfo() map[string]string { return q.storageInfo }

// ProgrammerFromELF is a convenience for callers building a Sahara machine:
// the bare bytes.Reader satisfies io.ReaderAt, matching protocol.Sahara's
// Programmer field.
func ProgrammerFromELF(data []byte) *bytes.Reader { return bytes.NewReader(data) }
