package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flashcore/internal/chipdb"
	"flashcore/internal/events"
)

// fakeDriver records which steps ran (in order) and fails at failAt, if set.
type fakeDriver struct {
	failAt       Step
	failed       bool
	calls        []Step
	sendStageHit int
}

func (d *fakeDriver) maybeFail(step Step) error {
	d.calls = append(d.calls, step)
	if d.failed {
		return nil
	}
	if step == d.failAt {
		d.failed = true
		return errors.New("boom")
	}
	return nil
}

func (d *fakeDriver) Negotiate(ctx context.Context) (chipdb.ChipConfig, error) {
	if err := d.maybeFail(StepNegotiate); err != nil {
		return chipdb.ChipConfig{}, err
	}
	return chipdb.ChipConfig{HWCode: 0x1234, Name: "fake"}, nil
}

func (d *fakeDriver) DisableWatchdog(ctx context.Context, cfg chipdb.ChipConfig) error {
	return d.maybeFail(StepDisableWatchdog)
}

func (d *fakeDriver) SendStage(ctx context.Context, payload []byte, sink events.Sink) error {
	d.sendStageHit++
	if d.sendStageHit == 1 {
		return d.maybeFail(StepSendStage1)
	}
	return d.maybeFail(StepSendStage2)
}

func (d *fakeDriver) Jump(ctx context.Context) error { return d.maybeFail(StepJump) }
func (d *fakeDriver) Sync(ctx context.Context) error { return d.maybeFail(StepSync) }
func (d *fakeDriver) InitDRAM(ctx context.Context, emi []byte) error {
	return d.maybeFail(StepInitDRAM)
}
func (d *fakeDriver) InitDeviceInfo(ctx context.Context) error {
	return d.maybeFail(StepInitDeviceInfo)
}

func TestRunHappyPathSingleStage(t *testing.T) {
	d := &fakeDriver{failAt: -1}
	sink := events.NewSink(64)
	cfg, err := Run(context.Background(), d, Stage1{Payload: []byte("loader")}, Stage2{}, sink, nil)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), cfg.HWCode)

	want := []Step{
		StepNegotiate, StepDisableWatchdog, StepSendStage1, StepJump,
		StepSync, StepInitDRAM, StepInitDeviceInfo,
	}
	require.Equal(t, want, d.calls)
}

func TestRunHappyPathTwoStages(t *testing.T) {
	d := &fakeDriver{failAt: -1}
	sink := events.NewSink(64)
	_, err := Run(context.Background(), d, Stage1{Payload: []byte("loader")}, Stage2{Payload: []byte("da")}, sink, nil)
	require.NoError(t, err)

	want := []Step{
		StepNegotiate, StepDisableWatchdog, StepSendStage1, StepJump,
		StepSync, StepInitDRAM, StepSendStage2, StepJump, StepSync,
		StepInitDeviceInfo,
	}
	require.Equal(t, want, d.calls)
}

func TestRunReportsFailingStepTagged(t *testing.T) {
	d := &fakeDriver{failAt: StepJump}
	sink := events.NewSink(64)
	_, err := Run(context.Background(), d, Stage1{Payload: []byte("loader")}, Stage2{}, sink, nil)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepJump, stepErr.Step)
}

func TestStepErrorRecoverability(t *testing.T) {
	require.True(t, (&StepError{Step: StepSync}).Recoverable())
	require.True(t, (&StepError{Step: StepNegotiate}).Recoverable())
	require.False(t, (&StepError{Step: StepInitDRAM}).Recoverable())
	require.False(t, (&StepError{Step: StepInitDeviceInfo}).Recoverable())
}

func TestValidatePipelineOrderAcceptsPrefix(t *testing.T) {
	require.NoError(t, ValidatePipelineOrder([]Step{StepNegotiate, StepDisableWatchdog, StepSendStage1}))
}

func TestValidatePipelineOrderRejectsOutOfOrder(t *testing.T) {
	err := ValidatePipelineOrder([]Step{StepNegotiate, StepSendStage1, StepDisableWatchdog})
	require.Error(t, err)
}
