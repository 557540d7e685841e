package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

func newTestSecret(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return Base58Encode(priv)
}

func TestBase58RoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0},
		{0, 0, 1, 2, 3},
		{255, 254, 253},
		bytes.Repeat([]byte{0xab}, 64),
	}
	for _, c := range cases {
		enc := Base58Encode(c)
		dec, err := Base58Decode(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if !bytes.Equal(dec, c) {
			t.Errorf("round trip %v: got %v via %q", c, dec, enc)
		}
	}
}

func TestBase58KnownVector(t *testing.T) {
	// "abc" in the Bitcoin alphabet.
	enc := Base58Encode([]byte("abc"))
	if enc != "ZiCa" {
		t.Errorf("encode(abc) = %q, want ZiCa", enc)
	}
}

func TestBase58DecodeRejectsInvalid(t *testing.T) {
	if _, err := Base58Decode("0OIl"); err == nil {
		t.Error("expected error for invalid characters")
	}
}

func TestHandleSignVerify(t *testing.T) {
	secret := newTestSecret(t)
	h, err := NewHandle(secret)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}

	if !ValidAddress(h.Address()) {
		t.Errorf("address %q should be valid", h.Address())
	}

	msg := []byte("transfer 1.5 to treasury")
	sig, err := h.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	pub, err := Base58Decode(h.Address())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		t.Error("signature did not verify against handle address")
	}
}

func TestHandleFromSeed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	expanded, err := NewHandle(Base58Encode(priv))
	if err != nil {
		t.Fatalf("NewHandle(expanded): %v", err)
	}
	seeded, err := NewHandle(Base58Encode(priv.Seed()))
	if err != nil {
		t.Fatalf("NewHandle(seed): %v", err)
	}
	if expanded.Address() != seeded.Address() {
		t.Errorf("seed form address %q != expanded form address %q",
			seeded.Address(), expanded.Address())
	}
}

func TestHandleRejectsBadLength(t *testing.T) {
	if _, err := NewHandle(Base58Encode([]byte("short"))); err == nil {
		t.Error("expected error for wrong key length")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	secret := newTestSecret(t)

	blob, err := EncryptKeyFile(secret, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKeyFile: %v", err)
	}

	got, err := DecryptKeyFile(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKeyFile: %v", err)
	}
	if got != secret {
		t.Error("decrypted secret does not match original")
	}

	if _, err := DecryptKeyFile(blob, "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestLoadTreasuryKey(t *testing.T) {
	secret := newTestSecret(t)
	want, err := NewHandle(secret)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}

	t.Run("raw key wins", func(t *testing.T) {
		h, err := LoadTreasuryKey(KeyConfig{RawPrivateKey: secret})
		if err != nil {
			t.Fatalf("LoadTreasuryKey: %v", err)
		}
		if h.Address() != want.Address() {
			t.Errorf("address = %q, want %q", h.Address(), want.Address())
		}
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKeyFile(secret, "pw")
		if err != nil {
			t.Fatalf("EncryptKeyFile: %v", err)
		}
		path := filepath.Join(t.TempDir(), "treasury.json")
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			t.Fatalf("writing key file: %v", err)
		}

		h, err := LoadTreasuryKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		if err != nil {
			t.Fatalf("LoadTreasuryKey: %v", err)
		}
		if h.Address() != want.Address() {
			t.Errorf("address = %q, want %q", h.Address(), want.Address())
		}
	})

	t.Run("no source", func(t *testing.T) {
		if _, err := LoadTreasuryKey(KeyConfig{}); err == nil {
			t.Error("expected error when no key source is configured")
		}
	})
}

func TestKeyringRoundTrip(t *testing.T) {
	kr, err := NewKeyring("service-secret")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	secret := newTestSecret(t)

	ct, err := kr.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	h, err := kr.HandleFromEncrypted(ct)
	if err != nil {
		t.Fatalf("HandleFromEncrypted: %v", err)
	}
	want, _ := NewHandle(secret)
	if h.Address() != want.Address() {
		t.Errorf("address = %q, want %q", h.Address(), want.Address())
	}

	other, err := NewKeyring("different-secret")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if _, err := other.Decrypt(ct); err == nil {
		t.Error("expected decryption to fail with the wrong keyring secret")
	}
}
