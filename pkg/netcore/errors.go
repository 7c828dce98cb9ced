package netcore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by decode/validation paths. Connection-fatal
// conditions are represented by DisconnectReason instead, since the
// reactor never panics or bubbles an error out of an entry point.
var (
	// ErrFrameTooLarge is returned by the codec when a length prefix
	// exceeds maxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrMalformedEnvelope is returned when a frame's bytes do not parse
	// as a valid Envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnknownMessageType is returned when an envelope's msg.type
	// discriminator does not match any known Message variant.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrProjectNotTracked is returned by Fetch when the tracking policy
	// forbids the requested project.
	ErrProjectNotTracked = errors.New("project not tracked")

	// ErrNoPeerForProject is returned by Fetch when routing has no peer
	// advertising the requested project.
	ErrNoPeerForProject = errors.New("no peer advertises project")

	// ErrUnknownPeer is returned when a command references a peer address
	// with no live PeerManager entry.
	ErrUnknownPeer = errors.New("unknown peer")
)

// DisconnectReason explains why a connection was, or is about to be,
// torn down. It is carried on the Io.Disconnect intent and is never
// itself an error returned from an entry point — the reactor always
// reports disconnects through the outbox, never through a return value.
type DisconnectReason struct {
	kind string
	// ts is set only for KindInvalidTimestamp; it is the offending
	// message timestamp, seconds since the Unix epoch.
	ts uint64
	// err carries the underlying I/O error for KindDialError and
	// KindConnectionError, used to distinguish user-initiated closes
	// from transient I/O failures (see decideReconnect).
	err error
}

const (
	kindWrongMagic         = "wrong-magic"
	kindWrongVersion       = "wrong-protocol-version"
	kindInvalidTimestamp   = "invalid-timestamp"
	kindSignatureFailed    = "signature-failed"
	kindMalformedMessage   = "malformed-message"
	kindKeepAlive          = "keep-alive"
	kindPeerRequested      = "peer-requested"
	kindDialError          = "dial-error"
	kindConnectionError    = "connection-error"
	kindBanned             = "banned"
)

func ReasonWrongMagic() DisconnectReason       { return DisconnectReason{kind: kindWrongMagic} }
func ReasonWrongVersion() DisconnectReason     { return DisconnectReason{kind: kindWrongVersion} }
func ReasonSignatureFailed() DisconnectReason  { return DisconnectReason{kind: kindSignatureFailed} }
func ReasonMalformedMessage() DisconnectReason { return DisconnectReason{kind: kindMalformedMessage} }
func ReasonKeepAlive() DisconnectReason        { return DisconnectReason{kind: kindKeepAlive} }
func ReasonPeerRequested() DisconnectReason    { return DisconnectReason{kind: kindPeerRequested} }
func ReasonBanned() DisconnectReason           { return DisconnectReason{kind: kindBanned} }

// ReasonInvalidTimestamp carries the offending message timestamp for
// diagnostics; ts is seconds since the Unix epoch.
func ReasonInvalidTimestamp(ts uint64) DisconnectReason {
	return DisconnectReason{kind: kindInvalidTimestamp, ts: ts}
}

// ReasonDialError wraps a dial failure. err may be nil, which spec §4.4
// treats as user-initiated (e.g. the host rejected the dial locally) and
// therefore never triggers a reconnect.
func ReasonDialError(err error) DisconnectReason {
	return DisconnectReason{kind: kindDialError, err: err}
}

// ReasonConnectionError wraps a transient I/O failure on an established
// connection; for persistent peers these trigger an immediate reconnect,
// up to maxConnectionAttempts consecutive attempts.
func ReasonConnectionError(err error) DisconnectReason {
	return DisconnectReason{kind: kindConnectionError, err: err}
}

// UserInitiated reports whether this reason should never trigger an
// automatic reconnect: a locally-issued Disconnect command, or a
// DialError with no underlying OS error (the dial was refused before it
// ever reached the network).
func (r DisconnectReason) UserInitiated() bool {
	return r.kind == kindPeerRequested || (r.kind == kindDialError && r.err == nil)
}

// Transient reports whether this reason is eligible for decideReconnect's
// immediate-reconnect policy (spec §4.4): a connection error or a
// keep-alive timeout on an otherwise-negotiated persistent peer.
func (r DisconnectReason) Transient() bool {
	return r.kind == kindConnectionError || r.kind == kindKeepAlive
}

func (r DisconnectReason) Error() string {
	switch r.kind {
	case kindInvalidTimestamp:
		return fmt.Sprintf("invalid timestamp: %d", r.ts)
	case kindDialError:
		if r.err != nil {
			return fmt.Sprintf("dial error: %v", r.err)
		}
		return "dial error"
	case kindConnectionError:
		if r.err != nil {
			return fmt.Sprintf("connection error: %v", r.err)
		}
		return "connection error"
	default:
		return r.kind
	}
}

func (r DisconnectReason) Unwrap() error { return r.err }

// Kind returns a stable machine-readable label for logging and metrics.
func (r DisconnectReason) Kind() string { return r.kind }

// Timestamp returns the offending timestamp for KindInvalidTimestamp
// reasons; zero otherwise.
func (r DisconnectReason) Timestamp() uint64 { return r.ts }
