// Package stream is the keyed change stream the catalog is built on.
//
// Values live at slash-separated paths. Subscribers watch a path and receive
// one event per direct child: an Upserted event carrying the (possibly
// partial, nested) value, or a Retracted event when the child itself is
// written as nil. A subscription first replays the current state under its
// path and then delivers live events.
package stream

import (
	"context"
	"net/url"
	"strings"
)

// Kind tags an Event.
type Kind int

const (
	// Upserted carries a new or partial value for Key.
	Upserted Kind = iota + 1
	// Retracted means Key was deleted.
	Retracted
)

func (k Kind) String() string {
	switch k {
	case Upserted:
		return "upserted"
	case Retracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// Event is one keyed change below a subscribed path. Key is the direct child
// segment. Value is nil for Retracted events. For writes deeper than the
// direct child, Value is a nested map holding only the written leaf.
type Event struct {
	Kind  Kind
	Key   string
	Value any
}

// Handler receives events for a subscription. Handlers run on the store's
// writer goroutine and must not block or subscribe.
type Handler func(Event)

// AckFunc is called once with the outcome of a write. A nil error means the
// value was persisted and delivered to subscribers.
type AckFunc func(err error)

// Subscription is an active watch on a path.
type Subscription interface {
	Unsubscribe()
}

// Adapter is the contract the catalog consumes.
type Adapter interface {
	// Subscribe replays the current state under path to h, then delivers live
	// events until the subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, path Path, h Handler) (Subscription, error)
	// Write stores value (nil retracts) at path/key. It never blocks; the
	// outcome is reported to onAck when it is non-nil.
	Write(path Path, key string, value any, onAck AckFunc)
}

// Path addresses a namespace in the keyed store.
type Path []string

// NewPath builds a path from segments.
func NewPath(segments ...string) Path {
	return Path(segments)
}

// Child returns a new path extended by segments. The receiver is not modified.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// String encodes the path as escaped segments joined by "/".
func (p Path) String() string {
	escaped := make([]string, len(p))
	for i, seg := range p {
		escaped[i] = url.PathEscape(seg)
	}
	return strings.Join(escaped, "/")
}

// ParsePath decodes a key produced by Path.String.
func ParsePath(key string) (Path, error) {
	if key == "" {
		return Path{}, nil
	}
	parts := strings.Split(key, "/")
	p := make(Path, len(parts))
	for i, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		p[i] = seg
	}
	return p, nil
}

// prefix returns the key prefix of everything strictly below p.
func (p Path) prefix() string {
	return p.String() + "/"
}
