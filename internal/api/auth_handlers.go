package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openbay/openbay-node/internal/domain"
	domainerrors "github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register alias",
		Description: "Claims an alias for the key pair derived from the password and returns a session token",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.limitLogins},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Login",
		Description: "Logs in with alias and password and returns a session token",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.limitLogins},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChallenge",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/challenge",
		Summary:     "Get login challenge",
		Description: "Issues a single-use nonce to sign with the alias's private key",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.limitLogins},
	}, s.handleChallenge)

	huma.Register(s.api, huma.Operation{
		OperationID: "loginWithKey",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login/key",
		Summary:     "Login with key",
		Description: "Redeems a challenge signed with the alias's private key",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.limitLogins},
	}, s.handleLoginWithKey)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Ends the caller's session; requires a bearer token",
		Tags:        []string{"Auth"},
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "getIdentity",
		Method:      http.MethodGet,
		Path:        "/api/v1/identity",
		Summary:     "Current identity",
		Description: "Returns the identity named by the bearer token, if any",
		Tags:        []string{"Auth"},
	}, s.handleGetIdentity)
}

// === DTOs ===

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Alias    string `json:"alias" doc:"Public alias"`
	Password string `json:"password" doc:"Password, at least 8 characters"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Alias    string `json:"alias" doc:"Public alias"`
	Password string `json:"password" doc:"Password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// SessionResponse contains a session token and its identity.
type SessionResponse struct {
	Alias     string    `json:"alias" doc:"Alias"`
	PublicKey string    `json:"public_key" doc:"Identity public key"`
	Token     string    `json:"token" doc:"PASETO session token"`
	ExpiresAt time.Time `json:"expires_at" doc:"Token expiry"`
}

// SessionOutput wraps a session for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// ChallengeInput names the alias to challenge.
type ChallengeInput struct {
	Alias string `query:"alias" required:"true" doc:"Alias to log in as"`
}

// ChallengeResponse is an outstanding key login challenge.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id" doc:"Challenge ID"`
	Nonce       string    `json:"nonce" doc:"Nonce to sign, as sent"`
	ExpiresAt   time.Time `json:"expires_at" doc:"Challenge expiry"`
}

// ChallengeOutput wraps a challenge for Huma.
type ChallengeOutput struct {
	Body ChallengeResponse
}

// KeyLoginRequest is the request body for key login.
type KeyLoginRequest struct {
	ChallengeID string `json:"challenge_id" doc:"Challenge ID"`
	Signature   string `json:"signature" doc:"Ed25519 signature over the nonce, unpadded base64url"`
}

// KeyLoginInput wraps the key login request for Huma.
type KeyLoginInput struct {
	Body KeyLoginRequest
}

// LogoutInput carries the bearer token of the session being ended.
type LogoutInput struct {
	Authorization string `header:"Authorization"`
}

// IdentityInput carries the optional bearer token.
type IdentityInput struct {
	Authorization string `header:"Authorization"`
}

// IdentityResponse describes who requests act as.
type IdentityResponse struct {
	LoggedIn  bool   `json:"logged_in" doc:"Whether an identity is set"`
	Alias     string `json:"alias,omitempty" doc:"Alias"`
	PublicKey string `json:"public_key,omitempty" doc:"Identity public key"`
}

// IdentityOutput wraps the identity for Huma.
type IdentityOutput struct {
	Body IdentityResponse
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message" doc:"Result message"`
}

// MessageOutput wraps a message for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
	session, err := s.auth.Register(ctx, service.RegisterRequest{
		Alias:    input.Body.Alias,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(session), nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
	session, err := s.auth.Login(ctx, service.LoginRequest{
		Alias:    input.Body.Alias,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(session), nil
}

func (s *Server) handleChallenge(ctx context.Context, input *ChallengeInput) (*ChallengeOutput, error) {
	c, err := s.auth.Challenge(ctx, input.Alias)
	if err != nil {
		return nil, apiError(err)
	}
	return &ChallengeOutput{Body: ChallengeResponse{
		ChallengeID: c.ID,
		Nonce:       c.Nonce,
		ExpiresAt:   c.ExpiresAt,
	}}, nil
}

func (s *Server) handleLoginWithKey(ctx context.Context, input *KeyLoginInput) (*SessionOutput, error) {
	sig, err := base64.RawURLEncoding.DecodeString(input.Body.Signature)
	if err != nil {
		return nil, apiError(domainerrors.InvalidInput("signature must be unpadded base64url"))
	}

	session, err := s.auth.LoginWithKey(ctx, input.Body.ChallengeID, sig)
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(session), nil
}

func (s *Server) handleLogout(ctx context.Context, input *LogoutInput) (*MessageOutput, error) {
	if input.Authorization == "" {
		return nil, apiError(domainerrors.InvalidCredentials("bearer token required"))
	}
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	ident, _ := s.catalog.CurrentIdentity(ctx)
	if err := s.auth.Logout(ctx, ident); err != nil {
		return nil, apiError(err)
	}
	return &MessageOutput{Body: MessageResponse{Message: "logged out"}}, nil
}

func (s *Server) handleGetIdentity(ctx context.Context, input *IdentityInput) (*IdentityOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	ident, ok := s.catalog.CurrentIdentity(ctx)
	return &IdentityOutput{Body: identityResponse(ident, ok)}, nil
}

func sessionOutput(session *service.Session) *SessionOutput {
	return &SessionOutput{Body: SessionResponse{
		Alias:     session.Identity.Alias,
		PublicKey: session.Identity.PublicKey,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	}}
}

func identityResponse(ident domain.Identity, ok bool) IdentityResponse {
	if !ok {
		return IdentityResponse{}
	}
	return IdentityResponse{LoggedIn: true, Alias: ident.Alias, PublicKey: ident.PublicKey}
}
