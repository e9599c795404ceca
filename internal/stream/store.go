package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/openbay/openbay-node/internal/metrics"
)

// Store errors reported through AckFunc or returned by Subscribe.
var (
	ErrQueueFull = errors.New("write queue full")
	ErrClosed    = errors.New("store closed")
	ErrEmptyKey  = errors.New("empty key")
)

// DefaultQueueSize is used when Options.QueueSize is not positive.
const DefaultQueueSize = 256

// Options configures a Store.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Store implements Adapter on top of a Backend. A single writer goroutine
// persists queued writes in order and fans each one out to subscribers.
type Store struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue   chan writeOp
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool

	// mu serializes fan-out with subscription replay so a subscriber never
	// misses or double-receives a write.
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

type writeOp struct {
	key     string
	path    Path
	value   any
	data    []byte
	ack     AckFunc
	barrier chan struct{}
}

type subscriber struct {
	path      Path
	handler   Handler
	cancelled atomic.Bool
	stop      chan struct{}
	once      sync.Once
}

// Unsubscribe stops delivery. Safe to call from inside the handler.
func (s *subscriber) Unsubscribe() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		close(s.stop)
	})
}

// NewStore starts a store over backend. Call Close to stop the writer and
// close the backend.
func NewStore(backend Backend, opts Options) *Store {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		backend: backend,
		logger:  logger.With("component", "stream"),
		metrics: opts.Metrics,
		queue:   make(chan writeOp, opts.QueueSize),
		done:    make(chan struct{}),
		subs:    make(map[uint64]*subscriber),
	}
	go s.run()
	return s
}

// Write implements Adapter.
func (s *Store) Write(path Path, key string, value any, onAck AckFunc) {
	if onAck == nil {
		onAck = func(error) {}
	}
	if key == "" {
		s.metrics.WriteResult("rejected")
		onAck(ErrEmptyKey)
		return
	}

	// Round-trip through JSON so live events carry the same shapes as replay.
	data, err := json.Marshal(value)
	if err != nil {
		s.metrics.WriteResult("rejected")
		onAck(fmt.Errorf("encode value: %w", err))
		return
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		s.metrics.WriteResult("rejected")
		onAck(fmt.Errorf("decode value: %w", err))
		return
	}

	full := path.Child(key)
	op := writeOp{key: full.String(), path: full, value: decoded, data: data, ack: onAck}

	if err := s.enqueue(op); err != nil {
		s.metrics.WriteResult("rejected")
		s.logger.Warn("write rejected", "key", op.key, "error", err)
		onAck(err)
	}
}

func (s *Store) enqueue(op writeOp) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- op:
		s.metrics.QueueDepth(len(s.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Flush blocks until every write queued before the call has been applied.
func (s *Store) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return ErrClosed
	}
	select {
	case s.queue <- writeOp{barrier: barrier}:
	case <-ctx.Done():
		s.closeMu.RUnlock()
		return ctx.Err()
	}
	s.closeMu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe implements Adapter.
func (s *Store) Subscribe(ctx context.Context, path Path, h Handler) (Subscription, error) {
	s.closeMu.RLock()
	closed := s.closed
	s.closeMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.snapshot(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	for _, ev := range events {
		h(ev)
	}

	s.nextID++
	sub := &subscriber{path: path, handler: h, stop: make(chan struct{})}
	s.subs[s.nextID] = sub

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.stop:
			}
		}()
	}

	s.logger.Debug("subscribed", "path", path.String(), "replayed", len(events))
	return sub, nil
}

// Close stops accepting writes, applies everything already queued and closes
// the backend.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()

	<-s.done

	s.mu.Lock()
	for id, sub := range s.subs {
		sub.Unsubscribe()
		delete(s.subs, id)
	}
	s.mu.Unlock()

	return s.backend.Close()
}

func (s *Store) run() {
	defer close(s.done)
	for op := range s.queue {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		s.apply(op)
		s.metrics.QueueDepth(len(s.queue))
	}
}

func (s *Store) apply(op writeOp) {
	if err := s.backend.Put(context.Background(), op.key, op.data); err != nil {
		s.metrics.WriteResult("failed")
		s.logger.Error("persist failed", "key", op.key, "error", err)
		op.ack(err)
		return
	}

	s.mu.Lock()
	for id, sub := range s.subs {
		if sub.cancelled.Load() {
			delete(s.subs, id)
			continue
		}
		if ev, ok := eventFor(sub.path, op.path, op.value); ok {
			sub.handler(ev)
		}
	}
	s.mu.Unlock()

	s.metrics.WriteResult("ok")
	s.logger.Debug("write applied", "key", op.key, "retract", op.value == nil)
	op.ack(nil)
}

// eventFor maps a write at full to the event seen by a subscriber of sub.
func eventFor(sub, full Path, value any) (Event, bool) {
	if len(full) <= len(sub) {
		return Event{}, false
	}
	for i, seg := range sub {
		if full[i] != seg {
			return Event{}, false
		}
	}

	rel := full[len(sub):]
	if len(rel) == 1 {
		if value == nil {
			return Event{Kind: Retracted, Key: rel[0]}, true
		}
		return Event{Kind: Upserted, Key: rel[0], Value: value}, true
	}
	return Event{Kind: Upserted, Key: rel[0], Value: nest(rel[1:], value)}, true
}

func nest(rel Path, value any) map[string]any {
	if len(rel) == 1 {
		return map[string]any{rel[0]: value}
	}
	return map[string]any{rel[0]: nest(rel[1:], value)}
}

type childState struct {
	direct any
	nested map[string]any
}

// snapshot rebuilds one Upserted event per live child under path. Direct
// tombstones are skipped and nested leaves are folded into the child value.
func (s *Store) snapshot(ctx context.Context, path Path) ([]Event, error) {
	prefix := path.prefix()
	var order []string
	children := make(map[string]*childState)

	err := s.backend.Scan(ctx, prefix, func(key string, raw []byte) error {
		rel, err := ParsePath(strings.TrimPrefix(key, prefix))
		if err != nil || len(rel) == 0 {
			s.logger.Debug("skipping undecodable key", "key", key)
			return nil
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			s.logger.Debug("skipping undecodable value", "key", key, "error", err)
			return nil
		}

		st, ok := children[rel[0]]
		if !ok {
			st = &childState{}
			children[rel[0]] = st
			order = append(order, rel[0])
		}
		if len(rel) == 1 {
			st.direct = value
			return nil
		}
		if value == nil {
			return nil
		}
		if st.nested == nil {
			st.nested = make(map[string]any)
		}
		setNested(st.nested, rel[1:], value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(order))
	for _, key := range order {
		st := children[key]
		value, ok := st.merged()
		if !ok {
			continue
		}
		events = append(events, Event{Kind: Upserted, Key: key, Value: value})
	}
	return events, nil
}

func (c *childState) merged() (any, bool) {
	if len(c.nested) == 0 {
		return c.direct, c.direct != nil
	}
	base, ok := c.direct.(map[string]any)
	if !ok {
		return c.nested, true
	}
	out := make(map[string]any, len(base)+len(c.nested))
	for k, v := range base {
		out[k] = v
	}
	mergeInto(out, c.nested)
	return out, true
}

func setNested(dst map[string]any, rel Path, value any) {
	if len(rel) == 1 {
		if existing, ok := dst[rel[0]].(map[string]any); ok {
			if m, ok := value.(map[string]any); ok {
				mergeInto(existing, m)
				return
			}
		}
		dst[rel[0]] = value
		return
	}
	child, ok := dst[rel[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		dst[rel[0]] = child
	}
	setNested(child, rel[1:], value)
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}
