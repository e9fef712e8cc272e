package protocol

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flashcore/internal/events"
	"flashcore/internal/framer"
)

// fakeTransport is an in-memory transport.Transport: reads are served from a
// fixed byte buffer (what the "device" sent), writes are recorded for
// assertions (what the host sent).
type fakeTransport struct {
	in     *bytes.Buffer
	writes [][]byte
	closed bool
}

func newFakeTransport(deviceBytes []byte) *fakeTransport {
	return &fakeTransport{in: bytes.NewBuffer(deviceBytes)}
}

func (f *fakeTransport) ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, n)
	if _, err := f.in.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeTransport) ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error) {
	return nil, nil
}

func (f *fakeTransport) WriteAll(ctx context.Context, p []byte) error {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeTransport) Flush() error      { return nil }
func (f *fakeTransport) DrainInput() error { return nil }
func (f *fakeTransport) Close() error      { f.closed = true; return nil }

func saharaHelloFrame(version, versionCompat, maxCmd, mode uint32) []byte {
	payload := append(append(append(putLE32(version), putLE32(versionCompat)...), putLE32(maxCmd)...), putLE32(mode)...)
	return framer.EncodeSahara(framer.SaharaHello, payload)
}

func TestSaharaRunHappyPath(t *testing.T) {
	programmer := bytes.NewReader([]byte("programmer-elf-bytes"))

	readData := framer.EncodeSahara(framer.SaharaReadData, append(append(putLE32(SaharaImageID), putLE32(0)...), putLE32(4)...))
	endTransfer := framer.EncodeSahara(framer.SaharaEndTransfer, putLE32(0))
	doneResp := framer.EncodeSahara(framer.SaharaDoneResp, nil)

	device := append(append(append(saharaHelloFrame(2, 1, 0x1000, 0), readData...), endTransfer...), doneResp...)
	tr := newFakeTransport(device)

	s := NewSahara(tr, programmer, events.NewSink(32), nil)
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, StateReady, s.State())

	// First write is HELLO_RESP, second is the raw 4-byte programmer
	// slice (serveReadData writes the slice directly, unframed), third
	// is the DONE command.
	require.Len(t, tr.writes, 3)
	require.Equal(t, []byte("prog"), tr.writes[1])
	gotDone, err := framer.DecodeSahara(tr.writes[2])
	require.NoError(t, err)
	require.Equal(t, framer.SaharaDone, gotDone.Command)
}

func TestSaharaRunRejectsVendorEndTransferError(t *testing.T) {
	programmer := bytes.NewReader([]byte("x"))
	endTransfer := framer.EncodeSahara(framer.SaharaEndTransfer, putLE32(7))
	device := append(saharaHelloFrame(1, 1, 0x1000, 0), endTransfer...)
	tr := newFakeTransport(device)

	s := NewSahara(tr, programmer, events.NewSink(32), nil)
	err := s.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, s.State())
}

func TestSaharaRunRejectsUnknownImageID(t *testing.T) {
	programmer := bytes.NewReader([]byte("x"))
	readData := framer.EncodeSahara(framer.SaharaReadData, append(append(putLE32(99), putLE32(0)...), putLE32(1)...))
	device := append(saharaHelloFrame(1, 1, 0x1000, 0), readData...)
	tr := newFakeTransport(device)

	s := NewSahara(tr, programmer, events.NewSink(32), nil)
	err := s.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, s.State())
}
