package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/metrics"
)

// CatalogServiceHandle wraps the catalog so its subscriptions are released on
// shutdown.
type CatalogServiceHandle struct {
	*catalog.Service
}

// Shutdown implements do.Shutdownable.
func (h *CatalogServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideCatalogService provides the catalog, subscribed and replayed.
func ProvideCatalogService(i do.Injector) (*CatalogServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("catalog")
	m := do.MustInvoke[*metrics.Metrics](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	identity := catalog.NewIdentityContext(sseHandle.Manager)
	svc := catalog.NewService(storeHandle.Store, identity, sseHandle.Manager, catalog.Options{
		Root:    cfg.Catalog.Root,
		Logger:  log.Logger,
		Metrics: m,
	})

	if err := svc.Start(context.Background()); err != nil {
		return nil, err
	}

	log.Info("Catalog ready",
		"root", cfg.Catalog.Root,
		"resources", svc.Index().Len(),
	)

	return &CatalogServiceHandle{Service: svc}, nil
}
