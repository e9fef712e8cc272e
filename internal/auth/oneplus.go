// internal/auth/oneplus.go
// OnePlus Demacia/SetProjModel authentication (spec.md §4.9): reads or
// guesses a project ID, then encrypts a fixed-size blob carrying that
// project ID under an AES-CBC key built from random_pk, and uploads it via
// setprojmodel (V1/V2) or setswprojmodel (V3, whose key folds in a device
// timestamp instead).
package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"strconv"

	"flashcore/internal/flasherr"
)

// OnePlusVersion selects which Demacia/SetProjModel generation to speak.
type OnePlusVersion int

const (
	OnePlusV1 OnePlusVersion = iota
	OnePlusV2
	OnePlusV3
)

const (
	demaciaBlobSize   = 256
	setSWProjBlobSize = 512
	demaciaKeyPrefix  = "OP_DEMACIA_KEY_"
	demaciaKeySuffix  = "_END"

	// demaciaV3KeyMiddle is the fixed 16-byte ASCII span spec.md §8
	// scenario 6 folds into the V3 SetSwProjModel key between the fixed
	// prefix and the device-timestamp tail.
	demaciaV3KeyMiddle = "abcdefghijklmnop"
)

// demaciaV3KeyPrefix is the fixed 8-byte span spec.md §8 scenario 6 names
// for the V3 SetSwProjModel key (`46 A5 97 30 BB 0D 41 E8`).
var demaciaV3KeyPrefix = []byte{0x46, 0xA5, 0x97, 0x30, 0xBB, 0x0D, 0x41, 0xE8}

// oneplusV3Alternates is the fallback projId list spec.md §8 scenario 6
// names: on any SetSwProjModel failure, retry with the next entry before
// giving up.
var oneplusV3Alternates = []string{"20885", "20888", "20880", "20881"}

// OnePlus implements the Demacia/SetProjModel flow.
type OnePlus struct {
	Version OnePlusVersion

	// ProjID, when non-empty, is used as-is; otherwise it is read with
	// <getprjversion/>, and guessed from PKHash only when that read fails.
	ProjID string
	PKHash []byte

	// RandomPK is the "random_pk" ASCII value spec.md §4.9 folds into the
	// V1/V2 key; DeviceTimestamp is the additional tail material V3 folds
	// in.
	RandomPK        string
	DeviceTimestamp uint64
}

func (o OnePlus) Authenticate(ctx context.Context, conn Conn, loaderPath string) (bool, error) {
	projID := o.ProjID
	if projID == "" {
		responses, err := conn.RawCommand(ctx, `<getprjversion/>`, authTimeout)
		if err == nil && lastIsACK(responses) {
			projID = lastAttrs(responses)["projid"]
		}
	}
	if projID == "" {
		projID = guessProjIDFromPKHash(o.PKHash)
	}
	if projID == "" {
		return false, flasherr.NewAuthError(flasherr.AuthChallengeUnreadable, fmt.Errorf("oneplus: could not determine projid"))
	}

	switch o.Version {
	case OnePlusV1, OnePlusV2:
		return o.authenticateDemacia(ctx, conn, projID)
	case OnePlusV3:
		return o.authenticateSetSWProjModel(ctx, conn, projID)
	default:
		return false, flasherr.NewAuthError(flasherr.AuthNoStrategyApplies, fmt.Errorf("oneplus: unknown version %d", o.Version))
	}
}

func (o OnePlus) authenticateDemacia(ctx context.Context, conn Conn, projID string) (bool, error) {
	key := demaciaKey(o.RandomPK)
	blob := make([]byte, demaciaBlobSize)
	copy(blob, []byte(projID))
	encrypted, err := encryptCBCZeroIV(key, blob)
	if err != nil {
		return false, err
	}

	if _, err := conn.RawCommand(ctx, `<demacia/>`, authTimeout); err != nil {
		return false, err
	}
	if err := conn.SendRawData(ctx, encrypted); err != nil {
		return false, err
	}
	responses, err := conn.ReadResponses(ctx, authTimeout)
	if err != nil {
		return false, err
	}
	if !lastIsACK(responses) {
		return false, nil
	}

	body := fmt.Sprintf(`<setprojmodel projid="%s"/>`, projID)
	responses, err = conn.RawCommand(ctx, body, authTimeout)
	if err != nil {
		return false, err
	}
	return demaciaSuccess(lastAttrs(responses)), nil
}

// authenticateSetSWProjModel drives the V3 SetSwProjModel flow (spec.md §8
// scenario 6): one device-timestamp read produces one key, then the
// encrypted blob is retried under projID and, on failure, each of
// oneplusV3Alternates in order until one succeeds or the list is
// exhausted.
func (o OnePlus) authenticateSetSWProjModel(ctx context.Context, conn Conn, projID string) (bool, error) {
	responses, err := conn.RawCommand(ctx, `<getdevicetimestamp/>`, authTimeout)
	if err != nil {
		return false, err
	}
	timestamp := o.DeviceTimestamp
	if lastIsACK(responses) {
		if raw := lastAttrs(responses)["device_timestamp"]; raw != "" {
			if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
				timestamp = v
			}
		}
	}
	key := demaciaKeyWithTimestamp(timestamp)

	candidates := append([]string{projID}, oneplusV3Alternates...)
	for _, candidate := range candidates {
		ok, err := o.trySetSWProjModel(ctx, conn, candidate, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (o OnePlus) trySetSWProjModel(ctx context.Context, conn Conn, projID string, key []byte) (bool, error) {
	blob := make([]byte, setSWProjBlobSize)
	copy(blob, []byte(projID))
	encrypted, err := encryptCBCZeroIV(key, blob)
	if err != nil {
		return false, err
	}
	if err := conn.SendRawData(ctx, encrypted); err != nil {
		return false, err
	}
	body := fmt.Sprintf(`<setswprojmodel projid="%s"/>`, projID)
	responses, err := conn.RawCommand(ctx, body, authTimeout)
	if err != nil {
		return false, err
	}
	return demaciaSuccess(lastAttrs(responses)), nil
}

// demaciaSuccess implements spec.md §4.9's "success = both model_check="0"
// and auth_token_verify="0" in reply".
func demaciaSuccess(attrs map[string]string) bool {
	return attrs["model_check"] == "0" && attrs["auth_token_verify"] == "0"
}

func guessProjIDFromPKHash(pkHash []byte) string {
	if len(pkHash) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pkHash[:min(4, len(pkHash))])
}

// demaciaKey derives the 16-byte AES key spec.md §4.9 describes: prefix ||
// ASCII(random_pk) || suffix, truncated/padded to the AES-128 block size.
func demaciaKey(randomPK string) []byte {
	raw := demaciaKeyPrefix + randomPK + demaciaKeySuffix
	return fitKey(raw)
}

// demaciaKeyWithTimestamp builds the 32-byte AES-256 key spec.md §8
// scenario 6 requires byte-for-byte: the fixed 8-byte prefix, the fixed
// 16-byte ASCII middle span, then the big-endian device timestamp.
func demaciaKeyWithTimestamp(timestamp uint64) []byte {
	key := make([]byte, 0, len(demaciaV3KeyPrefix)+len(demaciaV3KeyMiddle)+8)
	key = append(key, demaciaV3KeyPrefix...)
	key = append(key, []byte(demaciaV3KeyMiddle)...)
	var tail [8]byte
	binary.BigEndian.PutUint64(tail[:], timestamp)
	return append(key, tail[:]...)
}

func fitKey(raw string) []byte {
	key := make([]byte, 16)
	copy(key, raw)
	return key
}

func encryptCBCZeroIV(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var iv [16]byte
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, plaintext)
	return out, nil
}
