package providers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/openbay/openbay-node/internal/api"
	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/metrics"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler  *api.Server
	listener net.Listener
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer h.handler.Close()
	return h.Server.Shutdown(ctx)
}

// ListenAddr returns the address the server is listening on.
func (h *HTTPServerHandle) ListenAddr() string {
	return h.listener.Addr().String()
}

// ProvideHTTPServer provides the HTTP server, already listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("http")
	m := do.MustInvoke[*metrics.Metrics](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	catalogHandle := do.MustInvoke[*CatalogServiceHandle](i)
	authHandle := do.MustInvoke[*AuthServiceHandle](i)

	handler := api.NewServer(
		catalogHandle.Service,
		authHandle.AuthService,
		sseHandle.Manager,
		m,
		log.Logger,
		api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			LoginRateLimit: cfg.Auth.LoginRateLimit,
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind before returning so a busy port fails the bootstrap.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		handler.Close()
		return nil, err
	}

	go func() {
		log.Info("HTTP server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler, listener: ln}, nil
}
