// internal/auth/vip.go
// VIP authentication (OPPO/Realme/OnePlus subset, spec.md §4.9): uploads a
// caller-supplied digest, then its paired signature; the device performs
// RSA verification against an embedded public key this core never sees or
// needs. Generating the signature is explicitly out of scope (spec.md's
// non-goals: "does not implement signature generation for VIP
// authentication — it replays caller-supplied digest+signature pairs").
package auth

import (
	"context"
	"fmt"

	"flashcore/internal/flasherr"
)

const vipDigestSize = 256

// VIP replays a caller-supplied 256-byte digest and its paired signature.
type VIP struct {
	Digest    []byte
	Signature []byte
}

func (v VIP) Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error) {
	if len(v.Digest) != vipDigestSize || len(v.Signature) != vipDigestSize {
		return false, flasherr.NewAuthError(flasherr.AuthChallengeUnreadable, fmt.Errorf("vip digest/signature must each be %d bytes", vipDigestSize))
	}

	digestBody := fmt.Sprintf(`<?xml version="1.0" ?><digest TargetName="digest" size_in_bytes="%d"/>`, vipDigestSize)
	responses, err := conn.RawCommand(ctx, digestBody, authTimeout)
	if err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}
	if err := conn.SendRawData(ctx, v.Digest); err != nil {
		return false, err
	}
	if responses, err = conn.ReadResponses(ctx, authTimeout); err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}

	sigBody := fmt.Sprintf(`<?xml version="1.0" ?><signature TargetName="signature" size_in_bytes="%d"/>`, vipDigestSize)
	if responses, err = conn.RawCommand(ctx, sigBody, authTimeout); err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}
	if err := conn.SendRawData(ctx, v.Signature); err != nil {
		return false, err
	}
	responses, err = conn.ReadResponses(ctx, authTimeout)
	if err != nil {
		return false, err
	}
	return lastIsACK(responses), nil
}
