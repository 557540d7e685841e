// Package crypto provides key handles, base58 codecs, and at-rest encryption
// for custodial signing keys. Key generation and custody policy are external;
// this package only loads, protects, and uses keys that already exist.
package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/polygens/wagerd/internal/domain"
)

// Handle wraps an ed25519 signing key and implements domain.KeyHandle. The
// private key never leaves the handle.
type Handle struct {
	priv ed25519.PrivateKey
	addr string
}

// NewHandle builds a Handle from a base58-encoded secret key. Both the
// 64-byte expanded form (seed || public key) and the 32-byte seed form are
// accepted.
func NewHandle(secretBase58 string) (*Handle, error) {
	raw, err := Base58Decode(secretBase58)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode secret key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("crypto: secret key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	return &Handle{
		priv: priv,
		addr: Base58Encode(pub),
	}, nil
}

// Address returns the base58-encoded public key.
func (h *Handle) Address() string {
	return h.addr
}

// Sign signs the given message with the handle's private key.
func (h *Handle) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(h.priv, message), nil
}

// Compile-time interface check.
var _ domain.KeyHandle = (*Handle)(nil)

// ValidAddress reports whether s decodes to a 32-byte public key.
func ValidAddress(s string) bool {
	raw, err := Base58Decode(s)
	return err == nil && len(raw) == ed25519.PublicKeySize
}
