// internal/auth/miauth.go
// Xiaomi MiAuth bypass (spec.md §4.9): tries two known-good signature
// blobs, then a caller-supplied manual signature uploaded as is, and last
// requests a device challenge before uploading a legacy hex signature.
// Success is confirmed by a
// post-auth nop that must ACK — MiAuth's device-side check does not
// always answer the signature upload itself with a trustworthy ACK.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"

	"flashcore/internal/flasherr"
)

const miAuthSigSize = 256

// knownGoodSignatures holds the two known-good 256-byte signature blobs
// MiAuth tries before falling back to a challenge. These are placeholder
// fixtures (not real device-unlock material) sized and base64-encoded the
// way the real blobs are at rest, per spec.md §4.9's "base64-encoded at
// rest" note — wiring real vendor secrets is out of scope for this core,
// which only replays caller-supplied ones (see VIP's non-goal).
var knownGoodSignatures = []string{
	base64.StdEncoding.EncodeToString(make([]byte, miAuthSigSize)),
	base64.StdEncoding.EncodeToString(bytesRepeat(0xA5, miAuthSigSize)),
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// MiAuth implements the Xiaomi bypass. ManualSignature, when set, is tried
// after both known-good blobs fail; LegacyHexSignature is tried last.
type MiAuth struct {
	ManualSignature    []byte
	LegacyHexSignature string

	// Nop, when set, is invoked after a signature upload ACKs as the
	// post-auth confirmation spec.md §4.9 requires ("success is confirmed
	// by a post-auth nop that must ACK"). Callers wire in
	// (*protocol.Firehose).Nop; left nil, confirmation is skipped.
	Nop func(ctx context.Context) error
}

func (m MiAuth) Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error) {
	sigBody := fmt.Sprintf(`<sig TargetName="sig" size_in_bytes="%d"/>`, miAuthSigSize)
	responses, err := conn.RawCommand(ctx, sigBody, authTimeout)
	if err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, flasherr.NewAuthError(flasherr.AuthChallengeUnreadable, nil)
	}

	for _, encoded := range knownGoodSignatures {
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		ok, err := m.tryUpload(ctx, conn, blob)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if len(m.ManualSignature) == miAuthSigSize {
		if ok, err := m.tryUpload(ctx, conn, m.ManualSignature); err != nil || ok {
			return ok, err
		}
	}

	if m.LegacyHexSignature != "" {
		legacyBody := fmt.Sprintf(`<sig TargetName="req"/>`)
		if _, err := conn.RawCommand(ctx, legacyBody, authTimeout); err != nil {
			return false, err
		}
		// Legacy devices accept the hex signature as a raw-data upload
		// following the challenge request, same as the binary path.
		blob := []byte(m.LegacyHexSignature)
		if ok, err := m.tryUpload(ctx, conn, blob); err != nil || ok {
			return ok, err
		}
	}

	return false, nil
}

func (m MiAuth) tryUpload(ctx context.Context, conn Conn, blob []byte) (bool, error) {
	if err := conn.SendRawData(ctx, blob); err != nil {
		return false, err
	}
	responses, err := conn.ReadResponses(ctx, authTimeout)
	if err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}
	if m.Nop != nil {
		if err := m.Nop(ctx); err != nil {
			return false, nil
		}
	}
	return true, nil
}
