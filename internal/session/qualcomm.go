// internal/session/qualcomm.go
// Qualcomm-specific session wiring: composes internal/pipeline,
// internal/auth, and internal/partop against a live Sahara+Firehose pair,
// demonstrating the one piece of glue spec.md leaves to the caller —
// internal/auth.MiAuth needs a live Nop to confirm a signature upload, and
// only a session holding the Firehose instance can provide one.
package session

import (
	"context"

	"flashcore/internal/auth"
	"flashcore/internal/protocol"
)

// BindMiAuthNop returns a MiAuth confirmation hook backed by fh's Nop
// command (spec.md §4.9: "success is confirmed by a post-auth nop that
// must ACK"). Pass the result as auth.MiAuth.Nop.
func BindMiAuthNop(fh *protocol.Firehose) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return fh.Nop(ctx)
	}
}

// AuthenticateQualcomm runs strategy against fh (which already satisfies
// auth.Conn via its RawCommand/SendRawData/ReadResponses methods) and, on
// success, advances s from Connecting to Authenticated, recording fh.Power
// as the best-effort Disconnect shutdown spec.md §4.11 requires.
func AuthenticateQualcomm(ctx context.Context, s *Session, fh *protocol.Firehose, strategy auth.Strategy, loaderPath string) (bool, error) {
	ok, err := strategy.Authenticate(ctx, fh, loaderPath)
	if err != nil || !ok {
		return ok, err
	}
	shutdown := func(ctx context.Context) error {
		return fh.Power(ctx, "reset")
	}
	if err := s.Authenticated(shutdown); err != nil {
		return false, err
	}
	return true, nil
}
