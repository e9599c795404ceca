package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/auth"
	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/service"
)

// AuthKey wraps the session token key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the session token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("auth")

	if len(cfg.Auth.TokenKey) > 0 {
		return AuthKey(cfg.Auth.TokenKey), nil
	}

	key, err := auth.LoadOrGenerateKey(cfg.Auth.KeyPath)
	if err != nil {
		return nil, err
	}
	cfg.Auth.TokenKey = key

	log.Info("Authentication key loaded",
		"key_path", cfg.Auth.KeyPath,
		"session_duration", cfg.Auth.SessionDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO session token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.SessionDuration)
}

// ProvideChallengeStore provides the key login challenge store.
func ProvideChallengeStore(i do.Injector) (*auth.ChallengeStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return auth.NewChallengeStore(cfg.Auth.ChallengeTTL), nil
}

// AuthServiceHandle wraps the auth service so its directory subscription is
// released on shutdown.
type AuthServiceHandle struct {
	*service.AuthService
}

// Shutdown implements do.Shutdownable.
func (h *AuthServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideAuthService provides the account service and resumes the persisted
// session, if any.
func ProvideAuthService(i do.Injector) (*AuthServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("auth")
	storeHandle := do.MustInvoke[*StoreHandle](i)
	catalogHandle := do.MustInvoke[*CatalogServiceHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	challenges := do.MustInvoke[*auth.ChallengeStore](i)

	svc := service.NewAuthService(
		storeHandle.Store,
		catalogHandle.Identity(),
		tokens,
		challenges,
		service.NewSessionFile(cfg.Auth.SessionPath),
		log.Logger,
	)

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}

	if ident, ok := svc.Resume(ctx); ok {
		log.Info("Session resumed", "alias", ident.Alias)
	} else {
		log.Info("No session to resume, browsing anonymously")
	}

	return &AuthServiceHandle{AuthService: svc}, nil
}
