package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"flashcore/internal/events"
)

func TestPreloaderHandshakeHappyPath(t *testing.T) {
	tr := newFakeTransport(preloaderHandshakeWant)
	p := NewPreloader(tr, events.NewSink(32), nil)
	require.NoError(t, p.Handshake(context.Background()))
	require.Equal(t, StateReady, p.State())
	require.Len(t, tr.writes, 4)
	for i, w := range tr.writes {
		require.Equal(t, []byte{preloaderHandshakeSend[i]}, w)
	}
}

func TestPreloaderHandshakeFailsOnBadEcho(t *testing.T) {
	tr := newFakeTransport([]byte{0x00, 0x00, 0x00, 0x00})
	p := NewPreloader(tr, events.NewSink(32), nil)
	err := p.Handshake(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, p.State())
}

func TestPreloaderGetHWCodeResolvesKnownChip(t *testing.T) {
	// readWords(0xFD, 1): echoCmd consumes one byte (the echoed command),
	// then one big-endian word is read. The word's high 16 bits carry the
	// HW-code (0x0321 = MT6735).
	device := append([]byte{0xFD}, 0x03, 0x21, 0x00, 0x00)
	tr := newFakeTransport(device)
	p := NewPreloader(tr, events.NewSink(32), nil)
	cfg, err := p.GetHWCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "MT6735", cfg.Name)
}

func TestPreloaderGetHWCodeRejectsUnknownChip(t *testing.T) {
	device := append([]byte{0xFD}, 0xFF, 0xFF, 0x00, 0x00)
	tr := newFakeTransport(device)
	p := NewPreloader(tr, events.NewSink(32), nil)
	_, err := p.GetHWCode(context.Background())
	require.Error(t, err)
}

func TestPreloaderRead32HappyPath(t *testing.T) {
	// echoCmd(0xD1), echoU32(addr), echoU32(count=1), then one data word.
	device := append([]byte{0xD1}, 0x10, 0x00, 0x70, 0x00)
	device = append(device, 0x00, 0x00, 0x00, 0x01)
	device = append(device, 0xDE, 0xAD, 0xBE, 0xEF)
	tr := newFakeTransport(device)
	p := NewPreloader(tr, events.NewSink(32), nil)
	v, err := p.Read32(context.Background(), 0x10007000)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)
}
