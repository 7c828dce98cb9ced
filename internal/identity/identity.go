// Package identity loads or creates the Ed25519 keypair a meshnode
// process signs Hello and Refs messages with, and adapts it to
// pkg/netcore.Signer.
package identity

import (
	"fmt"
	"os"
	"runtime"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// CheckKeyFilePermissions verifies that a key file is not readable by
// group or others.
func CheckKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Identity wraps an Ed25519 keypair as a pkg/netcore.Signer: Id returns
// the raw public key as a PeerId, Sign produces a detached signature
// over the exact bytes it's given (Hello and Refs sign bytes assembled
// by the caller, not this package — the core never hands identity a
// Message, only the bytes spec §6 says to sign).
type Identity struct {
	priv crypto.PrivKey
	pub  netcore.PeerId
}

// LoadOrCreate loads an existing identity from path or generates and
// persists a new Ed25519 keypair there.
func LoadOrCreate(path string) (*Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		if err := CheckKeyFilePermissions(path); err != nil {
			return nil, err
		}
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal key from %s: %w", path, err)
		}
		return newIdentity(priv)
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
	}

	return newIdentity(priv)
}

func newIdentity(priv crypto.PrivKey) (*Identity, error) {
	if priv.Type() != crypto.Ed25519 {
		return nil, fmt.Errorf("identity key must be Ed25519, got %s", priv.Type())
	}
	rawPub, err := priv.GetPublic().Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}
	var id netcore.PeerId
	if len(rawPub) != len(id) {
		return nil, fmt.Errorf("unexpected public key length %d, want %d", len(rawPub), len(id))
	}
	copy(id[:], rawPub)
	return &Identity{priv: priv, pub: id}, nil
}

// Id returns this node's PeerId, satisfying netcore.Signer.
func (i *Identity) Id() netcore.PeerId { return i.pub }

// Sign signs msg with the node's private key, satisfying netcore.Signer.
func (i *Identity) Sign(msg []byte) []byte {
	sig, err := i.priv.Sign(msg)
	if err != nil {
		// go-libp2p's Ed25519 Sign only errors on a corrupt key; a loaded
		// or freshly generated Ed25519 key never hits this path.
		panic(fmt.Sprintf("identity: sign failed: %v", err))
	}
	return sig
}
