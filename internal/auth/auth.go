// internal/auth/auth.go
// Vendor authentication strategies (spec.md §4.9): challenge/response
// exchanges that ride the same Firehose XML wire Qualcomm devices already
// speak post-handoff. Grounded on cgminer_client.go's request/response-
// over-socket retry-bounded pattern, generalized from one mining-pool RPC
// shape to several vendor-specific XML exchanges sharing one retry policy.
package auth

import (
	"context"
	"time"

	"flashcore/internal/framer"
)

// Conn is the wire capability every strategy needs: send a raw Firehose
// command, upload a raw data blob immediately after one, and read back
// whatever response/log elements follow. *protocol.Firehose satisfies this
// with no adapter via its RawCommand/SendRawData/ReadResponses methods.
type Conn interface {
	RawCommand(ctx context.Context, body string, timeout time.Duration) ([]framer.FirehoseResponse, error)
	SendRawData(ctx context.Context, data []byte) error
	ReadResponses(ctx context.Context, timeout time.Duration) ([]framer.FirehoseResponse, error)
}

// Strategy is the shared contract spec.md §4.9 names:
// authenticate(session, loader_path) -> bool. Each strategy "strictly
// bounds its retry count; it never loops forever" per the same section.
type Strategy interface {
	Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error)
}

const authTimeout = 5 * time.Second

func lastIsACK(responses []framer.FirehoseResponse) bool {
	if len(responses) == 0 {
		return false
	}
	return responses[len(responses)-1].Value == "ACK"
}

func lastAttrs(responses []framer.FirehoseResponse) map[string]string {
	if len(responses) == 0 {
		return nil
	}
	return responses[len(responses)-1].Attrs
}

// Standard is the no-op strategy (spec.md §4.9): returns true immediately,
// for devices that need no authentication before flashing.
type Standard struct{}

func (Standard) Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error) {
	return true, nil
}
