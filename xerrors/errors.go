// Package xerrors defines the single error taxonomy surfaced by numi-core
// to its callers (spec.md §7): Malformed, CryptoFailure, ConsensusViolation,
// UnsupportedKind, StateError, ResourceError, NotFound. The consensus and
// Store APIs report failures as these kinds; the mempool reports admission
// outcomes as mempool.ValidationResult, and the raw database backends
// (NewBadgerDB, NewLDBDatabase, the Database interface) return their
// drivers' errors.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	// KindMalformed: decoding failure, size over limit, bad merkle root.
	KindMalformed Kind = iota
	// KindCryptoFailure: bad signature, invalid PoW, invalid key, entropy failure.
	KindCryptoFailure
	// KindConsensusViolation: wrong difficulty, bad timestamp, coinbase overpay, etc.
	KindConsensusViolation
	// KindUnsupportedKind: an encountered transaction kind the engine refuses.
	KindUnsupportedKind
	// KindStateError: store I/O, batch commit failure, corruption detected.
	KindStateError
	// KindResourceError: pool full, rate limited, deadline exceeded.
	KindResourceError
	// KindNotFound: block, transaction, or account absent.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "Malformed"
	case KindCryptoFailure:
		return "CryptoFailure"
	case KindConsensusViolation:
		return "ConsensusViolation"
	case KindUnsupportedKind:
		return "UnsupportedKind"
	case KindStateError:
		return "StateError"
	case KindResourceError:
		return "ResourceError"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried across package boundaries.
type Error struct {
	Kind   Kind
	Reason string // machine-readable reason code, e.g. "coinbase_overpay"
	Err    error  // wrapped cause, may be nil
	// Misbehavior marks errors that indicate the remote peer sent
	// deliberately or negligently invalid data (spec.md §7 "Propagation") —
	// the P2P collaborator uses this to apply reputation penalties.
	Misbehavior bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match err against another *Error with the same Kind and
// Reason; to test the Kind alone, use Of below.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return e.Kind == o.Kind && e.Reason == o.Reason
	}
	return false
}

func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Misbehaving(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err, Misbehavior: true}
}

// Of reports whether err (or any error it wraps) carries the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsMisbehavior reports whether err indicates peer misbehavior.
func IsMisbehavior(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Misbehavior
	}
	return false
}

func Malformed(reason string, err error) *Error           { return New(KindMalformed, reason, err) }
func CryptoFailure(reason string, err error) *Error       { return Misbehaving(KindCryptoFailure, reason, err) }
func ConsensusViolation(reason string, err error) *Error  { return Misbehaving(KindConsensusViolation, reason, err) }
func UnsupportedKind(reason string) *Error                { return New(KindUnsupportedKind, reason, nil) }
func StateError(reason string, err error) *Error          { return New(KindStateError, reason, err) }
func ResourceError(reason string, err error) *Error       { return New(KindResourceError, reason, err) }
func NotFound(reason string) *Error                       { return New(KindNotFound, reason, nil) }
