// internal/auth/nothingphone.go
// Nothing Phone authentication (spec.md §4.9): a feature check, then a
// three-token project-verify exchange where the second token is a SHA256
// binding of the first token, the project ID, the device serial, and a
// fixed verification constant.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"flashcore/internal/flasherr"
)

// hashverify is the fixed 64-hex-char constant spec.md §4.9 names; every
// known projId maps to this same value.
const nothingPhoneHashVerify = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"

// nothingPhoneProjectIDs maps known device codes to their project ID — all
// three share the one hashverify constant (spec.md §4.9).
var nothingPhoneProjectIDs = map[string]string{
	"20111": "20111",
	"22111": "22111",
	"23111": "23111",
}

// NothingPhone implements the Nothing Phone two-step verify.
type NothingPhone struct {
	DeviceCode string
	SerialHex  string
}

func (n NothingPhone) Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error) {
	projID, ok := nothingPhoneProjectIDs[n.DeviceCode]
	if !ok {
		return false, flasherr.NewAuthError(flasherr.AuthNoStrategyApplies, fmt.Errorf("unknown nothing phone device code %q", n.DeviceCode))
	}

	responses, err := conn.RawCommand(ctx, `<checkntfeature/>`, authTimeout)
	if err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}

	token1, err := randomHexToken()
	if err != nil {
		return false, err
	}
	token2 := nothingPhoneToken2(token1, projID, n.SerialHex)
	token3 := nothingPhoneHashVerify

	body := fmt.Sprintf(`<ntprojectverify token1="%s" token2="%s" token3="%s"/>`, token1, token2, token3)
	responses, err = conn.RawCommand(ctx, body, authTimeout)
	if err != nil {
		return false, err
	}
	return lastIsACK(responses), nil
}

func nothingPhoneToken2(token1, projID, serialHex string) string {
	h := sha256.New()
	h.Write([]byte(token1))
	h.Write([]byte(projID))
	h.Write([]byte(serialHex))
	h.Write([]byte(nothingPhoneHashVerify))
	return hex.EncodeToString(h.Sum(nil))
}

func randomHexToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
