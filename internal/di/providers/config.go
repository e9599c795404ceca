// Package providers contains dependency injection providers for the node.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/logger"
)

// ProvideConfig provides the node configuration from the process arguments.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig(os.Args[1:])
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting OpenBay node",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"store_driver", cfg.Store.Driver,
		"catalog_root", cfg.Catalog.Root,
	)

	return log, nil
}
