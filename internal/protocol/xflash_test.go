package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"flashcore/internal/events"
)

func TestXFlashGetConnectionAgentReportsBrom(t *testing.T) {
	tr := newFakeTransport([]byte{0x00})
	x := NewXFlash(tr, events.NewSink(32), nil)
	agent, err := x.GetConnectionAgent(context.Background())
	require.NoError(t, err)
	require.Equal(t, "brom", agent)
	require.Equal(t, [][]byte{{0xB0}}, tr.writes)
}

func TestXFlashGetConnectionAgentReportsPreloader(t *testing.T) {
	tr := newFakeTransport([]byte{0x01})
	x := NewXFlash(tr, events.NewSink(32), nil)
	agent, err := x.GetConnectionAgent(context.Background())
	require.NoError(t, err)
	require.Equal(t, "preloader", agent)
}

func TestXFlashBootToHappyPath(t *testing.T) {
	tr := newFakeTransport([]byte{xflashAck})
	x := NewXFlash(tr, events.NewSink(32), nil)
	require.NoError(t, x.BootTo(context.Background(), 0x40000000, []byte("stage2")))
	require.Equal(t, StateReady, x.State())
	require.Len(t, tr.writes, 2) // header, then DA-framed payload
	require.Equal(t, byte(0xB2), tr.writes[0][0])
}

func TestXFlashBootToFailsOnNack(t *testing.T) {
	tr := newFakeTransport([]byte{0xFF})
	x := NewXFlash(tr, events.NewSink(32), nil)
	err := x.BootTo(context.Background(), 0x40000000, []byte("stage2"))
	require.Error(t, err)
	require.Equal(t, StateError, x.State())
}

func TestXFlashGetSLAStatus(t *testing.T) {
	tr := newFakeTransport([]byte{0x01})
	x := NewXFlash(tr, events.NewSink(32), nil)
	required, err := x.GetSLAStatus(context.Background())
	require.NoError(t, err)
	require.True(t, required)
}
