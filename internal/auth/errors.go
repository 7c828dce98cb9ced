package auth

import "errors"

var (
	// ErrInvalidPeerID is returned when a string fails to parse as a
	// netcore.PeerId.
	ErrInvalidPeerID = errors.New("invalid peer id")

	// ErrPeerNotFound is returned by RemovePeer/SetPeerAttr when the
	// target peer has no entry in the authorized_keys file.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrPeerAlreadyAuthorized is returned by AddPeer when the peer is
	// already present in the authorized_keys file.
	ErrPeerAlreadyAuthorized = errors.New("peer already authorized")
)
