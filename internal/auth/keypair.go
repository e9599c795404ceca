package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Memory      = 64 * 1024
	argon2Iterations  = 3
	argon2Parallelism = 4

	// Prevent DoS from massive passwords consuming CPU/memory during hashing.
	maxPasswordLength = 1024

	saltDomain = "openbay/identity/v1:"
)

// KeyPair is an identity's signing key. The public half, encoded with
// EncodePublicKey, is the identity's stable identifier.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// PublicKeyString returns the encoded public key.
func (k KeyPair) PublicKeyString() string {
	return EncodePublicKey(k.Public)
}

// DeriveKeyPair deterministically derives the key pair for alias and
// password: argon2id stretches the password, salted by the alias, into an
// ed25519 seed. The same credentials always produce the same identity.
func DeriveKeyPair(alias, password string) (KeyPair, error) {
	if alias == "" {
		return KeyPair{}, errors.New("alias cannot be empty")
	}
	if password == "" {
		return KeyPair{}, errors.New("password cannot be empty")
	}
	if len(password) > maxPasswordLength {
		return KeyPair{}, errors.New("password exceeds maximum length")
	}

	salt := sha256.Sum256([]byte(saltDomain + alias))
	seed := argon2.IDKey(
		[]byte(password),
		salt[:16],
		argon2Iterations,
		argon2Memory,
		argon2Parallelism,
		ed25519.SeedSize,
	)

	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return KeyPair{}, errors.New("unexpected public key type")
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// EncodePublicKey encodes a public key as unpadded base64url.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pub)
}

// DecodePublicKey parses a key produced by EncodePublicKey.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// VerifySignature reports whether sig is pub's signature over message.
func VerifySignature(pub ed25519.PublicKey, message, sig []byte) bool {
	return len(sig) == ed25519.SignatureSize && ed25519.Verify(pub, message, sig)
}
