package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openbay/openbay-node/internal/catalog"
	domainerrors "github.com/openbay/openbay-node/internal/errors"
)

// withIdentity attaches the identity named by a bearer token to ctx. Without
// a header the request is anonymous; it never acts for the node's own
// session. A header that does not verify is rejected rather than ignored.
func (s *Server) withIdentity(ctx context.Context, authHeader string) (context.Context, error) {
	if authHeader == "" {
		return catalog.Anonymous(ctx), nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, domainerrors.InvalidCredentials("invalid authorization header format")
	}

	ident, err := s.auth.Authenticate(parts[1])
	if err != nil {
		return nil, err
	}
	return catalog.WithIdentity(ctx, ident), nil
}

// limitLogins is a huma middleware throttling login attempts per client.
func (s *Server) limitLogins(ctx huma.Context, next func(huma.Context)) {
	key := clientIP(ctx.RemoteAddr())
	if !s.loginLimiter.Allow(key) {
		s.logger.Warn("login rate limit exceeded", "ip", key, "path", ctx.URL().Path)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}
	next(ctx)
}

// clientIP strips the port from a remote address. middleware.RealIP has
// already applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
