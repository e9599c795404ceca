package catalog

// Change names a notification raised by the catalog. Notifications carry no
// state; consumers re-query the service.
type Change string

// Notifications raised by the catalog.
const (
	ResourcesChanged Change = "resources.changed"
	FeedbackChanged  Change = "feedback.changed"
	IdentityChanged  Change = "identity.changed"
	WriteFailed      Change = "write.failed"
)

// Notification is what the catalog hands to its EventEmitter.
type Notification struct {
	Change     Change `json:"change"`
	ResourceID string `json:"resource_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EventEmitter receives catalog notifications. Implementations must not block.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter discards notifications.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

func emitterOrNoop(e EventEmitter) EventEmitter {
	if e == nil {
		return NoopEmitter{}
	}
	return e
}
