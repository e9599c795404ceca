package catalog

import (
	"context"
	"sync"

	"github.com/openbay/openbay-node/internal/domain"
)

// IdentityContext holds the node's current identity, if any. It is fed by
// the auth service and read by catalog commands at call time.
type IdentityContext struct {
	mu      sync.RWMutex
	current domain.Identity
	emitter EventEmitter
}

// NewIdentityContext returns an empty context.
func NewIdentityContext(emitter EventEmitter) *IdentityContext {
	return &IdentityContext{emitter: emitterOrNoop(emitter)}
}

// Set replaces the current identity. A zero identity clears it.
func (c *IdentityContext) Set(ident domain.Identity) {
	c.mu.Lock()
	c.current = ident
	c.mu.Unlock()

	c.emitter.Emit(Notification{Change: IdentityChanged})
}

// Clear drops the current identity.
func (c *IdentityContext) Clear() {
	c.Set(domain.Identity{})
}

// Current returns a snapshot of the identity and whether one is set.
func (c *IdentityContext) Current() (domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, !c.current.IsZero()
}

type identityKey struct{}

// WithIdentity attaches an explicit identity to ctx. Commands use it instead
// of the IdentityContext, even when it is zero.
func WithIdentity(ctx context.Context, ident domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// Anonymous marks ctx as acting for nobody, so the node's own identity is
// never borrowed.
func Anonymous(ctx context.Context) context.Context {
	return WithIdentity(ctx, domain.Identity{})
}

// IdentityFromContext returns the identity attached with WithIdentity.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(domain.Identity)
	return ident, ok && !ident.IsZero()
}

func attachedIdentity(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(domain.Identity)
	return ident, ok
}
