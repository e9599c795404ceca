package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openbay/openbay-node/internal/id"
)

// Challenge errors.
var (
	ErrChallengeNotFound = errors.New("challenge not found or already used")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrBadSignature      = errors.New("signature does not verify")
)

const nonceSize = 32

// Challenge is a single-use nonce a key holder must sign to log in.
type Challenge struct {
	ID        string
	Nonce     string
	Alias     string
	PublicKey string
	ExpiresAt time.Time
}

// ChallengeStore keeps outstanding login challenges in memory.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	ttl        time.Duration
	now        func() time.Time
}

// NewChallengeStore creates a store whose challenges live for ttl.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[string]Challenge),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue creates a challenge for the identity alias/publicKey.
func (s *ChallengeStore) Issue(alias, publicKey string) (Challenge, error) {
	raw := make([]byte, nonceSize)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, fmt.Errorf("generate nonce: %w", err)
	}
	challengeID, err := id.Generate("challenge")
	if err != nil {
		return Challenge{}, err
	}

	c := Challenge{
		ID:        challengeID,
		Nonce:     base64.RawURLEncoding.EncodeToString(raw),
		Alias:     alias,
		PublicKey: publicKey,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.challenges[c.ID] = c
	return c, nil
}

// Redeem consumes the challenge and checks signature over its nonce.
// A challenge can be redeemed once, whether or not the signature verifies.
func (s *ChallengeStore) Redeem(challengeID string, signature []byte) (Challenge, error) {
	s.mu.Lock()
	c, ok := s.challenges[challengeID]
	delete(s.challenges, challengeID)
	s.mu.Unlock()

	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	if s.now().After(c.ExpiresAt) {
		return Challenge{}, ErrChallengeExpired
	}

	pub, err := DecodePublicKey(c.PublicKey)
	if err != nil {
		return Challenge{}, err
	}
	if !VerifySignature(pub, []byte(c.Nonce), signature) {
		return Challenge{}, ErrBadSignature
	}
	return c, nil
}

// Sign signs a challenge nonce. Used by clients holding a KeyPair.
func Sign(priv ed25519.PrivateKey, nonce string) []byte {
	return ed25519.Sign(priv, []byte(nonce))
}

func (s *ChallengeStore) pruneLocked() {
	now := s.now()
	for k, c := range s.challenges {
		if now.After(c.ExpiresAt) {
			delete(s.challenges, k)
		}
	}
}
