// Package adberr defines the kind-tagged error type shared across the
// protocol engine. It mirrors the internal/errors convention used by the
// ADB client forks this module descends from: a small Kind enum plus two
// constructors, rather than a family of sentinel errors or exported types
// per failure mode.
package adberr

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol-level failure.
type Kind int

const (
	// TransportError means the connector failed to dial or the stream
	// broke outside of the framing protocol itself.
	TransportError Kind = iota
	// ProtocolFailure means the server answered with FAIL and a reason.
	ProtocolFailure
	// UnexpectedResponse means an ack frame was neither OKAY nor FAIL.
	UnexpectedResponse
	// UnexpectedEnd means the stream closed before a read completed.
	UnexpectedEnd
	// DecodeError means a UTF-8 or hex parse failed.
	DecodeError
	// InvalidSelector means a DeviceSelector's Kind is not one of the
	// recognised variants.
	InvalidSelector
	// MissingTransportID means a devices-l line lacked transport_id:.
	MissingTransportID
	// VersionMismatch means validate-version found server != client.
	VersionMismatch
	// Aborted means a supplied context was canceled.
	Aborted
	// Internal guards invariants that should never be reachable from
	// caller input; it is not part of the protocol's error taxonomy.
	Internal
)

func (k Kind) String() string {
	switch k {
	case TransportError:
		return "TransportError"
	case ProtocolFailure:
		return "ProtocolFailure"
	case UnexpectedResponse:
		return "UnexpectedResponse"
	case UnexpectedEnd:
		return "UnexpectedEnd"
	case DecodeError:
		return "DecodeError"
	case InvalidSelector:
		return "InvalidSelector"
	case MissingTransportID:
		return "MissingTransportID"
	case VersionMismatch:
		return "VersionMismatch"
	case Aborted:
		return "Aborted"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the single error type raised by the protocol engine. Every
// field beyond Kind and a message is optional and populated only by the
// kinds that need it.
type Error struct {
	Kind   Kind
	Reason string
	Serial string // MissingTransportID
	Server uint32 // VersionMismatch
	Client uint32 // VersionMismatch
	Err    error  // wrapped cause, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingTransportID:
		return fmt.Sprintf("adbhost: %s: device %q has no transport_id", e.Kind, e.Serial)
	case VersionMismatch:
		return fmt.Sprintf("adbhost: %s: server=%d client=%d", e.Kind, e.Server, e.Client)
	default:
		if e.Err != nil {
			return fmt.Sprintf("adbhost: %s: %s: %v", e.Kind, e.Reason, e.Err)
		}
		return fmt.Sprintf("adbhost: %s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a new Error of the given kind with a formatted reason.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds a new Error of the given kind, wrapping an existing cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// MissingTransportIDFor builds the MissingTransportID error for serial.
func MissingTransportIDFor(serial string) *Error {
	return &Error{Kind: MissingTransportID, Serial: serial}
}

// VersionMismatchFor builds the VersionMismatch error for server vs client.
func VersionMismatchFor(server, client uint32) *Error {
	return &Error{Kind: VersionMismatch, Server: server, Client: client}
}

// AbortedBy builds the Aborted error for a canceled context.
func AbortedBy(reason error) *Error {
	return &Error{Kind: Aborted, Reason: reason.Error(), Err: reason}
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
