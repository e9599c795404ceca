// Package di provides dependency injection configuration for the node.
package di

import (
	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/auth"
	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/di/providers"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/metrics"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage and notifications
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideChallengeStore)

	// Services
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideAuthService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Providers run lazily, so this is what
// opens the store, replays the catalog and starts listening.
func Bootstrap(injector do.Injector) error {
	steps := []func(do.Injector) error{
		invoke[*config.Config],
		invoke[*logger.Logger],
		invoke[*metrics.Metrics],
		invoke[providers.AuthKey],
		invoke[*providers.SSEManagerHandle],
		invoke[*providers.StoreHandle],
		invoke[*auth.TokenService],
		invoke[*providers.CatalogServiceHandle],
		invoke[*providers.AuthServiceHandle],
		invoke[*providers.HTTPServerHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
