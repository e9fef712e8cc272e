// internal/flasherr/flasherr.go
// Closed error taxonomy (spec.md §7). Every core operation returns one of
// these wrapped in the usual fmt.Errorf("...: %w", err) style the rest of
// flashcore uses, so errors.As/errors.Is compose the way callers expect.
package flasherr

import "fmt"

// TransportKind distinguishes physical-layer failures.
type TransportKind int

const (
	TransportDisconnected TransportKind = iota
	TransportTimeout
	TransportIO
)

func (k TransportKind) String() string {
	switch k {
	case TransportDisconnected:
		return "Disconnected"
	case TransportTimeout:
		return "Timeout"
	case TransportIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// TransportError wraps a physical-layer failure.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(kind TransportKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

// FrameKind distinguishes framing-layer failures.
type FrameKind int

const (
	FrameBadCrc FrameKind = iota
	FrameOverflow
	FrameUnexpectedFlag
	FrameEchoMismatch
)

func (k FrameKind) String() string {
	switch k {
	case FrameBadCrc:
		return "BadCrc"
	case FrameOverflow:
		return "Overflow"
	case FrameUnexpectedFlag:
		return "UnexpectedFlag"
	case FrameEchoMismatch:
		return "EchoMismatch"
	default:
		return "Unknown"
	}
}

// FrameError wraps a framing-layer failure.
type FrameError struct {
	Kind FrameKind
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("frame: %s", e.Kind)
}

func (e *FrameError) Unwrap() error { return e.Err }

func NewFrameError(kind FrameKind, err error) *FrameError {
	return &FrameError{Kind: kind, Err: err}
}

// ProtocolKind distinguishes state-machine contract violations.
type ProtocolKind int

const (
	ProtocolUnexpectedState ProtocolKind = iota
	ProtocolNak
	ProtocolAbort
	ProtocolSignatureRejected
)

func (k ProtocolKind) String() string {
	switch k {
	case ProtocolUnexpectedState:
		return "UnexpectedState"
	case ProtocolNak:
		return "Nak"
	case ProtocolAbort:
		return "ProtocolAbort"
	case ProtocolSignatureRejected:
		return "SignatureRejected"
	default:
		return "Unknown"
	}
}

// ProtocolError wraps a state-machine-layer failure.
type ProtocolError struct {
	Kind    ProtocolKind
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ProtocolNak:
		return fmt.Sprintf("protocol: Nak(%d, %q)", e.Code, e.Message)
	case ProtocolAbort:
		return fmt.Sprintf("protocol: ProtocolAbort(%d)", e.Code)
	default:
		if e.Message != "" {
			return fmt.Sprintf("protocol: %s: %s", e.Kind, e.Message)
		}
		return fmt.Sprintf("protocol: %s", e.Kind)
	}
}

func NewProtocolError(kind ProtocolKind, code int, message string) *ProtocolError {
	return &ProtocolError{Kind: kind, Code: code, Message: message}
}

// AuthKind distinguishes authentication failures.
type AuthKind int

const (
	AuthNoStrategyApplies AuthKind = iota
	AuthAllAttemptsFailed
	AuthChallengeUnreadable
)

func (k AuthKind) String() string {
	switch k {
	case AuthNoStrategyApplies:
		return "NoStrategyApplies"
	case AuthAllAttemptsFailed:
		return "AllAttemptsFailed"
	case AuthChallengeUnreadable:
		return "ChallengeUnreadable"
	default:
		return "Unknown"
	}
}

// AuthError wraps an authentication-strategy failure.
type AuthError struct {
	Kind AuthKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

func NewAuthError(kind AuthKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// StorageKind distinguishes partition-addressing failures.
type StorageKind int

const (
	StoragePartitionNotFound StorageKind = iota
	StorageOutOfRange
	StorageSizeMismatch
	StorageUnsupportedLayout
	StorageAmbiguous
)

func (k StorageKind) String() string {
	switch k {
	case StoragePartitionNotFound:
		return "PartitionNotFound"
	case StorageOutOfRange:
		return "OutOfRange"
	case StorageSizeMismatch:
		return "SizeMismatch"
	case StorageUnsupportedLayout:
		return "UnsupportedLayout"
	case StorageAmbiguous:
		return "Ambiguous"
	default:
		return "Unknown"
	}
}

// StorageError wraps a partition-addressing failure.
type StorageError struct {
	Kind StorageKind
	Name string
}

func (e *StorageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("storage: %s(%q)", e.Kind, e.Name)
	}
	return fmt.Sprintf("storage: %s", e.Kind)
}

func NewStorageError(kind StorageKind, name string) *StorageError {
	return &StorageError{Kind: kind, Name: name}
}

// ExploitKind distinguishes exploit-bridge failures.
type ExploitKind int

const (
	ExploitUnsupportedChip ExploitKind = iota
	ExploitBlacklistActive
	ExploitPayloadRejected
)

func (k ExploitKind) String() string {
	switch k {
	case ExploitUnsupportedChip:
		return "UnsupportedChip"
	case ExploitBlacklistActive:
		return "BlacklistActive"
	case ExploitPayloadRejected:
		return "PayloadRejected"
	default:
		return "Unknown"
	}
}

// ExploitError wraps an exploit-bridge failure.
type ExploitError struct {
	Kind ExploitKind
	Err  error
}

func (e *ExploitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exploit: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("exploit: %s", e.Kind)
}

func (e *ExploitError) Unwrap() error { return e.Err }

func NewExploitError(kind ExploitKind, err error) *ExploitError {
	return &ExploitError{Kind: kind, Err: err}
}

// CancelledError reports cancellation with the byte offset reached (§5, §7).
type CancelledError struct {
	AtByte int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled at byte %d", e.AtByte)
}

func NewCancelledError(atByte int64) *CancelledError {
	return &CancelledError{AtByte: atByte}
}

// TimeoutError reports a deadline expiry tagged with the stage that missed
// it (§5's "Timeout(stage)").
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout at stage %q", e.Stage)
}

func NewTimeoutError(stage string) *TimeoutError {
	return &TimeoutError{Stage: stage}
}

// BusyError is returned when a second operation is requested while a session is
// already running one (§4.11).
type BusyError struct{}

func (e *BusyError) Error() string { return "session busy" }
