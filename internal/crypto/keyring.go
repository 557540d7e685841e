package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// Keyring encrypts and decrypts custodial user keys with a single
// service-wide secret. Ciphertexts are stored alongside the user record;
// the secret never leaves configuration.
type Keyring struct {
	aead cipher.AEAD
}

// NewKeyring builds a Keyring from the service secret. The secret is hashed
// with SHA-256 to produce the AES-256 key, so any non-empty string works.
func NewKeyring(secret string) (*Keyring, error) {
	if secret == "" {
		return nil, errors.New("crypto: keyring secret must not be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: creating keyring cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating keyring GCM: %w", err)
	}
	return &Keyring{aead: aead}, nil
}

// Encrypt seals a base58-encoded secret key. The returned string is
// base64(nonce || ciphertext).
func (k *Keyring) Encrypt(secretBase58 string) (string, error) {
	if _, err := NewHandle(secretBase58); err != nil {
		return "", err
	}
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}
	sealed := k.aead.Seal(nonce, nonce, []byte(secretBase58), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt, returning the base58-encoded secret key.
func (k *Keyring) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}
	ns := k.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("crypto: ciphertext too short")
	}
	plaintext, err := k.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: keyring decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// HandleFromEncrypted decrypts a stored user key and returns a signing
// handle for it.
func (k *Keyring) HandleFromEncrypted(ciphertext string) (*Handle, error) {
	secret, err := k.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	return NewHandle(secret)
}
