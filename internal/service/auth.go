// Package service holds the node's account logic: alias registration,
// password and key logins, and the node's own persisted session, which feeds
// the catalog's IdentityContext.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openbay/openbay-node/internal/auth"
	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/stream"
	"github.com/openbay/openbay-node/internal/validation"
)

// directorySegment is the shared alias directory: alias -> {pub, createdAt}.
const directorySegment = "~@"

const profileKey = "profile"

// RegisterRequest creates a new alias.
type RegisterRequest struct {
	Alias    string `json:"alias" validate:"notblank,max=64"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// LoginRequest contains alias credentials.
type LoginRequest struct {
	Alias    string `json:"alias" validate:"notblank,max=64"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Session is the result of a successful login.
type Session struct {
	Identity  domain.Identity `json:"identity"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type directoryEntry struct {
	publicKey string
	createdAt time.Time
}

// AuthService registers aliases and issues sessions. It also owns the node's
// own session, the only thing that sets the IdentityContext.
type AuthService struct {
	adapter    stream.Adapter
	identity   *catalog.IdentityContext
	tokens     *auth.TokenService
	challenges *auth.ChallengeStore
	sessions   *SessionFile
	validator  *validation.Validator
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	directory map[string]directoryEntry
	sub       stream.Subscription

	// Serializes the check-then-write of Register.
	registerMu sync.Mutex
}

// NewAuthService creates an auth service. Call Start before use so the alias
// directory is loaded.
func NewAuthService(
	adapter stream.Adapter,
	identity *catalog.IdentityContext,
	tokens *auth.TokenService,
	challenges *auth.ChallengeStore,
	sessions *SessionFile,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if sessions == nil {
		sessions = NewSessionFile("")
	}
	return &AuthService{
		adapter:    adapter,
		identity:   identity,
		tokens:     tokens,
		challenges: challenges,
		sessions:   sessions,
		validator:  validation.New(),
		logger:     logger.With("component", "auth"),
		now:        time.Now,
		directory:  make(map[string]directoryEntry),
	}
}

// Start subscribes to the alias directory.
func (s *AuthService) Start(ctx context.Context) error {
	sub, err := s.adapter.Subscribe(ctx, stream.NewPath(directorySegment), s.handleDirectory)
	if err != nil {
		return fmt.Errorf("subscribe alias directory: %w", err)
	}
	s.sub = sub
	return nil
}

// Stop ends the directory subscription.
func (s *AuthService) Stop() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

func (s *AuthService) handleDirectory(ev stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Kind == stream.Retracted {
		delete(s.directory, ev.Key)
		return
	}
	fields, ok := ev.Value.(map[string]any)
	if !ok {
		return
	}
	pub, _ := fields["pub"].(string)
	if pub == "" {
		s.logger.Debug("skipping directory entry without key", "alias", ev.Key)
		return
	}
	entry := directoryEntry{publicKey: pub}
	if ms, ok := fields["createdAt"].(float64); ok {
		entry.createdAt = time.UnixMilli(int64(ms))
	}
	s.directory[ev.Key] = entry
}

// Lookup returns the identity registered under alias.
func (s *AuthService) Lookup(alias string) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.directory[alias]
	if !ok {
		return domain.Identity{}, false
	}
	return domain.Identity{Alias: alias, PublicKey: entry.publicKey}, true
}

// Register claims alias for the key pair derived from the password, writes
// the directory entry and the private profile, and issues a session for the
// new identity. The node's own identity is left alone; see Adopt.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Alias = strings.TrimSpace(req.Alias)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if _, taken := s.Lookup(req.Alias); taken {
		return nil, errors.InvalidInputf("alias %q is already registered", req.Alias)
	}

	kp, err := auth.DeriveKeyPair(req.Alias, req.Password)
	if err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	pub := kp.PublicKeyString()
	createdAt := s.now()

	if err := s.writeAndWait(ctx, stream.NewPath(directorySegment), req.Alias, map[string]any{
		"pub":       pub,
		"createdAt": createdAt.UnixMilli(),
	}); err != nil {
		return nil, err
	}
	if err := s.writeAndWait(ctx, stream.NewPath("~"+pub), profileKey, map[string]any{
		"alias":     req.Alias,
		"pub":       pub,
		"createdAt": createdAt.UnixMilli(),
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.directory[req.Alias] = directoryEntry{publicKey: pub, createdAt: createdAt}
	s.mu.Unlock()

	s.logger.Info("alias registered", "alias", req.Alias, "pub", pub)
	return s.issueSession(domain.Identity{Alias: req.Alias, PublicKey: pub})
}

// Login derives the key pair for the credentials, checks it against the
// directory and issues a session.
func (s *AuthService) Login(_ context.Context, req LoginRequest) (*Session, error) {
	req.Alias = strings.TrimSpace(req.Alias)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	registered, ok := s.Lookup(req.Alias)
	if !ok {
		return nil, errors.InvalidCredentials("invalid alias or password")
	}
	kp, err := auth.DeriveKeyPair(req.Alias, req.Password)
	if err != nil {
		return nil, errors.InvalidCredentials("invalid alias or password")
	}
	if kp.PublicKeyString() != registered.PublicKey {
		s.logger.Info("login rejected", "alias", req.Alias)
		return nil, errors.InvalidCredentials("invalid alias or password")
	}

	return s.issueSession(registered)
}

// Challenge issues a nonce the holder of alias's key must sign.
func (s *AuthService) Challenge(_ context.Context, alias string) (auth.Challenge, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return auth.Challenge{}, errors.InvalidInput("alias is required")
	}
	registered, ok := s.Lookup(alias)
	if !ok {
		return auth.Challenge{}, errors.NotFoundf("alias %q is not registered", alias)
	}
	c, err := s.challenges.Issue(registered.Alias, registered.PublicKey)
	if err != nil {
		return auth.Challenge{}, errors.Wrap(err, errors.CodeInternal, "issue challenge")
	}
	return c, nil
}

// LoginWithKey redeems a challenge signed with the identity's private key.
func (s *AuthService) LoginWithKey(_ context.Context, challengeID string, signature []byte) (*Session, error) {
	c, err := s.challenges.Redeem(challengeID, signature)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidCredentials, "key login failed")
	}

	// The alias may have been re-bound while the challenge was outstanding.
	registered, ok := s.Lookup(c.Alias)
	if !ok || registered.PublicKey != c.PublicKey {
		return nil, errors.InvalidCredentials("key login failed")
	}
	return s.issueSession(registered)
}

// Adopt makes session the node's own: it becomes the identity in-process
// callers act as and is persisted for Resume.
func (s *AuthService) Adopt(session *Session) error {
	if session == nil || session.Identity.IsZero() {
		return errors.InvalidInput("session has no identity")
	}
	if err := s.sessions.Save(session.Token); err != nil {
		// The session still works for this process.
		s.logger.Warn("failed to persist session", "error", err)
	}
	s.identity.Set(session.Identity)
	s.logger.Info("node session adopted", "alias", session.Identity.Alias)
	return nil
}

// Logout ends the node's own session if it belongs to ident. Sessions of
// other identities are stateless tokens and are left to expire.
func (s *AuthService) Logout(_ context.Context, ident domain.Identity) error {
	current, ok := s.identity.Current()
	if !ok || current.PublicKey != ident.PublicKey {
		return nil
	}

	s.identity.Clear()
	if err := s.sessions.Clear(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "clear session")
	}
	s.logger.Info("node session ended", "alias", ident.Alias)
	return nil
}

// Authenticate verifies a session token and returns its identity.
func (s *AuthService) Authenticate(token string) (domain.Identity, error) {
	claims, err := s.tokens.VerifySessionToken(token)
	if err != nil {
		return domain.Identity{}, errors.Wrap(err, errors.CodeInvalidCredentials, "invalid session token")
	}
	return claims.Identity(), nil
}

// Resume restores the identity from the persisted session, if it is still
// valid. Stale sessions are discarded.
func (s *AuthService) Resume(_ context.Context) (domain.Identity, bool) {
	token, err := s.sessions.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.logger.Warn("failed to load session", "error", err)
		}
		return domain.Identity{}, false
	}

	ident, err := s.Authenticate(token)
	if err != nil {
		s.logger.Info("discarding stale session", "error", err)
		if clearErr := s.sessions.Clear(); clearErr != nil {
			s.logger.Warn("failed to clear session", "error", clearErr)
		}
		return domain.Identity{}, false
	}

	s.identity.Set(ident)
	s.logger.Info("session resumed", "alias", ident.Alias)
	return ident, true
}

func (s *AuthService) issueSession(ident domain.Identity) (*Session, error) {
	token, expires, err := s.tokens.GenerateSessionToken(ident)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate session token")
	}
	return &Session{Identity: ident, Token: token, ExpiresAt: expires}, nil
}

// writeAndWait writes through the adapter and blocks for its ack.
func (s *AuthService) writeAndWait(ctx context.Context, path stream.Path, key string, value any) error {
	done := make(chan error, 1)
	s.adapter.Write(path, key, value, func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			return errors.AdapterFailure(err, "write "+path.Child(key).String())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
