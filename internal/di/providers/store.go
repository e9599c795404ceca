package providers

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/metrics"
	"github.com/openbay/openbay-node/internal/sse"
	"github.com/openbay/openbay-node/internal/stream"
	"github.com/openbay/openbay-node/internal/stream/badgerkv"
	"github.com/openbay/openbay-node/internal/stream/sqlitekv"
)

// ProvideMetrics provides the node metrics on a fresh registry that also
// carries the Go runtime and process collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), nil
}

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("sse")
	m := do.MustInvoke[*metrics.Metrics](i)

	manager := sse.NewManager(log.Logger, m)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the keyed store with shutdown capability.
type StoreHandle struct {
	*stream.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the keyed store on the configured backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("store")
	m := do.MustInvoke[*metrics.Metrics](i)

	backend, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	store := stream.NewStore(backend, stream.Options{
		QueueSize: cfg.Store.WriteQueueSize,
		Logger:    log.Logger,
		Metrics:   m,
	})

	log.Info("Keyed store initialized",
		"driver", cfg.Store.Driver,
		"path", cfg.Store.Path,
		"write_queue_size", cfg.Store.WriteQueueSize,
	)

	return &StoreHandle{Store: store}, nil
}

func openBackend(cfg *config.Config, log *logger.Logger) (stream.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverBadger:
		return badgerkv.Open(cfg.Store.Path, log.Logger)
	case config.DriverSQLite:
		return sqlitekv.Open(cfg.Store.Path, log.Logger)
	case config.DriverMemory:
		log.Warn("Using in-memory store, nothing will survive a restart")
		return stream.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
