package catalog

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/metrics"
	"github.com/openbay/openbay-node/internal/stream"
)

type indexEntry struct {
	fields map[string]any
	seq    uint64 // when the record was (re)created; orders ties
}

// ResourceIndex folds resource events into the current set of records.
type ResourceIndex struct {
	mu      sync.RWMutex
	records map[string]*indexEntry
	seq     uint64

	emitter EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResourceIndex returns an empty index.
func NewResourceIndex(emitter EventEmitter, m *metrics.Metrics, logger *slog.Logger) *ResourceIndex {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResourceIndex{
		records: make(map[string]*indexEntry),
		emitter: emitterOrNoop(emitter),
		metrics: m,
		logger:  logger,
	}
}

// Apply folds one keyed value into the index. nil retracts id. An object is
// shallow-merged over the existing record; a record seen after a retraction
// starts from nothing. Other values are ignored.
func (x *ResourceIndex) Apply(id string, value any) {
	x.mu.Lock()
	switch v := value.(type) {
	case nil:
		delete(x.records, id)
	case map[string]any:
		entry, ok := x.records[id]
		if !ok {
			x.seq++
			entry = &indexEntry{fields: make(map[string]any, len(v)), seq: x.seq}
			x.records[id] = entry
		}
		maps.Copy(entry.fields, v)
	default:
		x.metrics.EventSkipped("resources")
		x.logger.Debug("ignoring non-object resource value", "id", id)
	}
	n := len(x.records)
	x.mu.Unlock()

	x.metrics.Resources(n)
	x.emitter.Emit(Notification{Change: ResourcesChanged, ResourceID: id})
}

// Handle adapts Apply to stream.Handler.
func (x *ResourceIndex) Handle(ev stream.Event) {
	if ev.Kind == stream.Retracted {
		x.Apply(ev.Key, nil)
		return
	}
	x.Apply(ev.Key, ev.Value)
}

// Get returns the record at id, displayable or not.
func (x *ResourceIndex) Get(id string) (domain.Resource, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	entry, ok := x.records[id]
	if !ok {
		return domain.Resource{}, false
	}
	return domain.ResourceFromFields(id, entry.fields), true
}

// Len returns the number of records, displayable or not.
func (x *ResourceIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

type indexedResource struct {
	domain.Resource
	seq uint64
}

func (x *ResourceIndex) snapshot() []indexedResource {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]indexedResource, 0, len(x.records))
	for id, entry := range x.records {
		out = append(out, indexedResource{
			Resource: domain.ResourceFromFields(id, entry.fields),
			seq:      entry.seq,
		})
	}
	return out
}
