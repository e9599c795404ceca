// Package main provides the entry point for an OpenBay node.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/di"
	"github.com/openbay/openbay-node/internal/di/providers"
	"github.com/openbay/openbay-node/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap node: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	srv := do.MustInvoke[*providers.HTTPServerHandle](injector)
	log.Info("Node running", "addr", srv.ListenAddr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down node gracefully...")

	// Dependents shut down before what they depend on, so the HTTP server
	// stops before the catalog and the store drains last.
	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("Shutdown error")
	}

	log.Info("Node stopped")
}
