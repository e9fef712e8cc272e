// internal/exploit/exploit.go
// Exploit bridges (spec.md §4.8): each composes a §4.3 protocol state
// machine (which already has a limited write primitive) with a §4.7
// hardware crypto engine (a stronger one) to escalate privilege before the
// code-upload pipeline runs. Grounded on controller.go's multi-backend
// composition (useUSB + useIOCTL cooperating through the same Device),
// generalized here to "compose a protocol state machine with a crypto
// engine" behind one shared two-call contract.
package exploit

import "context"

// PayloadResult reports what a bridge's RunPayload actually did, so a
// caller can log or verify before handing control to the pipeline.
type PayloadResult struct {
	BytesSent int
	JumpAddr  uint32
}

// Bridge is the shared contract every exploit implements (spec.md §4.8):
// Prepare escalates privilege (corrupt validation state, disable a
// blacklist, forge a signature) and RunPayload uploads the unsigned or
// forged stage-1 loader through whatever primitive Prepare unlocked.
// internal/session does not track bridges: its state machine does not
// check whether a bridge's RunPayload has completed before partition
// operations run.
type Bridge interface {
	Prepare(ctx context.Context) error
	RunPayload(ctx context.Context, payload []byte) (PayloadResult, error)
}
