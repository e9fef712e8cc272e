package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"flashcore/internal/framer"
)

// scriptedConn is a fake Conn that answers each RawCommand/ReadResponses
// call with a pre-scripted response, recording every command body it
// received for assertions.
type scriptedConn struct {
	responses [][]framer.FirehoseResponse
	step      int
	sent      []string
	rawData   [][]byte
}

func ack(attrs map[string]string) []framer.FirehoseResponse {
	return []framer.FirehoseResponse{{Value: "ACK", Attrs: attrs}}
}

func nak() []framer.FirehoseResponse {
	return []framer.FirehoseResponse{{Value: "NAK"}}
}

func (s *scriptedConn) next() []framer.FirehoseResponse {
	if s.step >= len(s.responses) {
		return nak()
	}
	r := s.responses[s.step]
	s.step++
	return r
}

func (s *scriptedConn) RawCommand(ctx context.Context, body string, timeout time.Duration) ([]framer.FirehoseResponse, error) {
	s.sent = append(s.sent, body)
	return s.next(), nil
}

func (s *scriptedConn) SendRawData(ctx context.Context, data []byte) error {
	s.rawData = append(s.rawData, data)
	return nil
}

func (s *scriptedConn) ReadResponses(ctx context.Context, timeout time.Duration) ([]framer.FirehoseResponse, error) {
	return s.next(), nil
}

func TestStandardAlwaysSucceeds(t *testing.T) {
	ok, err := Standard{}.Authenticate(context.Background(), &scriptedConn{}, "")
	if err != nil || !ok {
		t.Fatalf("standard strategy must always succeed: ok=%v err=%v", ok, err)
	}
}

func TestVIPHappyPath(t *testing.T) {
	digest := bytesRepeat(0x11, vipDigestSize)
	sig := bytesRepeat(0x22, vipDigestSize)
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(nil), // digest command ack
		ack(nil), // digest data ack
		ack(nil), // signature command ack
		ack(nil), // signature data ack
	}}
	v := VIP{Digest: digest, Signature: sig}
	ok, err := v.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
	if len(conn.rawData) != 2 || string(conn.rawData[0]) != string(digest) || string(conn.rawData[1]) != string(sig) {
		t.Fatalf("unexpected raw uploads: %v", conn.rawData)
	}
}

func TestVIPRejectsWrongSize(t *testing.T) {
	v := VIP{Digest: []byte("too short"), Signature: bytesRepeat(0, vipDigestSize)}
	if _, err := v.Authenticate(context.Background(), &scriptedConn{}, ""); err == nil {
		t.Fatalf("expected size validation error")
	}
}

func TestMiAuthSucceedsWithFirstKnownGoodBlob(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(nil), // sig command ack
		ack(nil), // first blob upload ack
	}}
	nopCalled := false
	m := MiAuth{Nop: func(ctx context.Context) error { nopCalled = true; return nil }}
	ok, err := m.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok || !nopCalled {
		t.Fatalf("expected success with nop confirmation: ok=%v nopCalled=%v", ok, nopCalled)
	}
}

func TestMiAuthFallsBackToManualSignature(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(nil), // sig command ack
		nak(),    // first known-good blob rejected
		nak(),    // second known-good blob rejected
		ack(nil), // manual signature ack
	}}
	m := MiAuth{ManualSignature: bytesRepeat(0x33, miAuthSigSize)}
	ok, err := m.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok {
		t.Fatalf("expected manual signature fallback to succeed")
	}
}

func TestNothingPhoneRejectsUnknownDeviceCode(t *testing.T) {
	n := NothingPhone{DeviceCode: "99999"}
	if _, err := n.Authenticate(context.Background(), &scriptedConn{}, ""); err == nil {
		t.Fatalf("expected error for unknown device code")
	}
}

func TestNothingPhoneHappyPath(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(nil), // checkntfeature
		ack(nil), // ntprojectverify
	}}
	n := NothingPhone{DeviceCode: "20111", SerialHex: "deadbeef"}
	ok, err := n.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
	if !strings.Contains(conn.sent[1], "token3=\""+nothingPhoneHashVerify+"\"") {
		t.Fatalf("expected fixed hashverify constant in request: %s", conn.sent[1])
	}
}

func TestOnePlusDemaciaSuccess(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(map[string]string{"projid": "OP1234"}), // getprjversion
		ack(nil),                                    // demacia command ack
		ack(nil),                                    // blob upload ack
		ack(map[string]string{"model_check": "0", "auth_token_verify": "0"}), // setprojmodel
	}}
	o := OnePlus{Version: OnePlusV1, RandomPK: "abc123"}
	ok, err := o.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
}

func TestDemaciaKeyWithTimestampMatchesScenario6(t *testing.T) {
	key := demaciaKeyWithTimestamp(1700000000)
	want := []byte{
		0x46, 0xA5, 0x97, 0x30, 0xBB, 0x0D, 0x41, 0xE8, // fixed prefix
		'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', // fixed middle
		0x00, 0x00, 0x00, 0x00, 0x65, 0x53, 0xF1, 0x00, // BE64(1700000000)
	}
	if len(key) != 32 {
		t.Fatalf("expected a 32-byte AES-256 key, got %d bytes", len(key))
	}
	if string(key) != string(want) {
		t.Fatalf("key mismatch:\n got  % X\n want % X", key, want)
	}
}

func TestOnePlusV3FallsBackThroughAlternates(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(map[string]string{"device_timestamp": "1700000000"}),             // getdevicetimestamp
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}), // 20886 rejected
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}), // 20885 rejected
		ack(map[string]string{"model_check": "0", "auth_token_verify": "0"}), // 20888 accepted
	}}
	o := OnePlus{Version: OnePlusV3, ProjID: "20886"}
	ok, err := o.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !ok {
		t.Fatalf("expected the 20888 fallback attempt to succeed")
	}
	wantOrder := []string{
		`<setswprojmodel projid="20886"/>`,
		`<setswprojmodel projid="20885"/>`,
		`<setswprojmodel projid="20888"/>`,
	}
	if len(conn.sent) != 1+len(wantOrder) {
		t.Fatalf("expected getdevicetimestamp plus %d setswprojmodel attempts, got %v", len(wantOrder), conn.sent)
	}
	for i, want := range wantOrder {
		if got := conn.sent[i+1]; got != want {
			t.Fatalf("attempt %d: got %q want %q", i, got, want)
		}
	}
}

func TestOnePlusV3ExhaustsAllAlternatesAndFails(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(map[string]string{"device_timestamp": "1700000000"}),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "1"}),
	}}
	o := OnePlus{Version: OnePlusV3, ProjID: "20886"}
	ok, err := o.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ok {
		t.Fatalf("expected failure once every alternate is exhausted")
	}
}

func TestOnePlusDemaciaFailsOnModelCheckMismatch(t *testing.T) {
	conn := &scriptedConn{responses: [][]framer.FirehoseResponse{
		ack(map[string]string{"projid": "OP1234"}),
		ack(nil),
		ack(nil),
		ack(map[string]string{"model_check": "1", "auth_token_verify": "0"}),
	}}
	o := OnePlus{Version: OnePlusV2, RandomPK: "abc123"}
	ok, err := o.Authenticate(context.Background(), conn, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ok {
		t.Fatalf("expected failure on model_check mismatch")
	}
}
