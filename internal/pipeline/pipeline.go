// internal/pipeline/pipeline.go
// Code-upload pipeline (spec.md §4.4): the eight-step contract every vendor
// stack follows — negotiate, disable watchdog, send stage-1 in chunks,
// jump, sync, init DRAM, send stage-2, init device info. Grounded on the
// teacher's initializeASIC (query -> configure -> delay -> verify) ordered
// sequence in controller.go, generalized from one fixed four-step sequence
// to a parameterized eight-step one driven by whichever vendor Driver
// backs the current session.
package pipeline

import (
	"context"
	"fmt"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
	"flashcore/internal/flasherr"
	"flashcore/internal/flashlog"
)

// Step names the eight stages of spec.md §4.4, in order. Step failures are
// reported tagged with the step that failed (§4.4: "the core surfaces which
// step failed in the error payload").
type Step int

const (
	StepNegotiate Step = iota
	StepDisableWatchdog
	StepSendStage1
	StepJump
	StepSync
	StepInitDRAM
	StepSendStage2
	StepInitDeviceInfo
)

func (s Step) String() string {
	switch s {
	case StepNegotiate:
		return "negotiate"
	case StepDisableWatchdog:
		return "disable-watchdog"
	case StepSendStage1:
		return "send-stage1"
	case StepJump:
		return "jump"
	case StepSync:
		return "sync"
	case StepInitDRAM:
		return "init-dram"
	case StepSendStage2:
		return "send-stage2"
	case StepInitDeviceInfo:
		return "init-device-info"
	default:
		return "unknown"
	}
}

// StepError tags which step of the pipeline failed, per spec.md §4.4's
// "the core surfaces which step failed in the error payload".
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("pipeline step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Recoverable reports whether a failure at this step can be retried after a
// simple power cycle (spec.md §4.4: "any failure at or before step 5 is
// recoverable by power-cycling the device; after step 6 a failure often
// leaves storage intact but requires reboot").
func (e *StepError) Recoverable() bool { return e.Step <= StepSync }

// Driver is the vendor-specific glue the pipeline calls at each stage. Each
// vendor's stage-1/stage-2 driver (internal/protocol's Preloader+XFlash,
// Sahara+Firehose, or SprdBootROM run twice) implements this.
type Driver interface {
	// Negotiate reads device identity and selects the correct loader by
	// HW-code/HW-version/SW-version (§4.4 step 1).
	Negotiate(ctx context.Context) (chipdb.ChipConfig, error)

	// DisableWatchdog performs the vendor-specific watchdog disable
	// (§4.4 step 2).
	DisableWatchdog(ctx context.Context, cfg chipdb.ChipConfig) error

	// SendStage sends payload in the peer's preferred chunk size,
	// validating echo/ACK after each chunk (§4.4 step 3, reused for
	// step 7's stage-2 send).
	SendStage(ctx context.Context, payload []byte, sink events.Sink) error

	// Jump transfers control to the just-sent stage's entry point
	// (§4.4 step 4).
	Jump(ctx context.Context) error

	// Sync performs the vendor-specific handshake proving the stage is
	// live (§4.4 step 5, reused for step 7's stage-2 sync).
	Sync(ctx context.Context) error

	// InitDRAM initializes DRAM when stage-1 reports it boots from
	// BootROM (§4.4 step 6), using emi as the EMI blob extracted from the
	// preloader image. emi is nil when no DRAM-init is needed (Qualcomm,
	// or MTK entering from Preloader rather than BROM); implementations
	// that don't need this return nil without doing anything.
	InitDRAM(ctx context.Context, emi []byte) error

	// InitDeviceInfo requests storage type, sizes, and partition table,
	// caching them in session state (§4.4 step 8).
	InitDeviceInfo(ctx context.Context) error
}

// Stage1 and Stage2 carry the loader payloads, plus an optional EMI blob
// used for MTK's DRAM-init step (nil for Qualcomm/Unisoc).
type Stage1 struct {
	Payload []byte
	EMI     []byte // non-nil only when InitDRAM is needed
}

type Stage2 struct {
	Payload []byte
}

// Run drives all eight steps in order against driver, emitting a
// StateChanged event per step via sink. It returns *StepError on
// any failure, so callers can decide whether power-cycling is safe
// (StepError.Recoverable).
func Run(ctx context.Context, driver Driver, stage1 Stage1, stage2 Stage2, sink events.Sink, log *flashlog.Logger) (chipdb.ChipConfig, error) {
	announce := func(step Step) {
		sink.Emit(events.StateChanged(step.String()))
		if log != nil {
			log.Infof("pipeline: %s", step)
		}
	}

	announce(StepNegotiate)
	cfg, err := driver.Negotiate(ctx)
	if err != nil {
		return cfg, &StepError{Step: StepNegotiate, Err: err}
	}

	announce(StepDisableWatchdog)
	if err := driver.DisableWatchdog(ctx, cfg); err != nil {
		return cfg, &StepError{Step: StepDisableWatchdog, Err: err}
	}

	announce(StepSendStage1)
	if err := driver.SendStage(ctx, stage1.Payload, sink); err != nil {
		return cfg, &StepError{Step: StepSendStage1, Err: err}
	}

	announce(StepJump)
	if err := driver.Jump(ctx); err != nil {
		return cfg, &StepError{Step: StepJump, Err: err}
	}

	announce(StepSync)
	if err := driver.Sync(ctx); err != nil {
		return cfg, &StepError{Step: StepSync, Err: err}
	}

	announce(StepInitDRAM)
	if err := driver.InitDRAM(ctx, stage1.EMI); err != nil {
		return cfg, &StepError{Step: StepInitDRAM, Err: err}
	}

	if len(stage2.Payload) > 0 {
		announce(StepSendStage2)
		if err := driver.SendStage(ctx, stage2.Payload, sink); err != nil {
			return cfg, &StepError{Step: StepSendStage2, Err: err}
		}
		if err := driver.Jump(ctx); err != nil {
			return cfg, &StepError{Step: StepJump, Err: err}
		}
		if err := driver.Sync(ctx); err != nil {
			return cfg, &StepError{Step: StepSync, Err: err}
		}
	}

	announce(StepInitDeviceInfo)
	if err := driver.InitDeviceInfo(ctx); err != nil {
		return cfg, &StepError{Step: StepInitDeviceInfo, Err: err}
	}

	sink.Emit(events.Completed(cfg))
	return cfg, nil
}

// ValidatePipelineOrder is a defensive check used by tests: a pipeline must
// never report success while leaving any step unaccounted for. Only the
// package's tests call it.
func ValidatePipelineOrder(completed []Step) error {
	for i, want := range []Step{
		StepNegotiate, StepDisableWatchdog, StepSendStage1, StepJump,
		StepSync, StepInitDRAM, StepSendStage2, StepInitDeviceInfo,
	} {
		if i >= len(completed) {
			return nil
		}
		if completed[i] != want {
			return flasherr.NewProtocolError(flasherr.ProtocolUnexpectedState, i, "pipeline steps out of order")
		}
	}
	return nil
}
