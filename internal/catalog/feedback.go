package catalog

import (
	"log/slog"
	"sync"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/metrics"
	"github.com/openbay/openbay-node/internal/stream"
)

// Keys the backing store may add to nested objects.
var metadataKeys = map[string]bool{"_": true, "#": true}

// Feedback folds vote events into a resource -> voter -> direction mapping.
type Feedback struct {
	mu    sync.RWMutex
	votes map[string]map[string]domain.Direction

	emitter EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFeedback returns an empty feedback mapping.
func NewFeedback(emitter EventEmitter, m *metrics.Metrics, logger *slog.Logger) *Feedback {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Feedback{
		votes:   make(map[string]map[string]domain.Direction),
		emitter: emitterOrNoop(emitter),
		metrics: m,
		logger:  logger,
	}
}

// Apply merges a partial voter -> direction object for resourceID at leaf
// level. Voters not mentioned are kept. Non-object values are ignored.
func (f *Feedback) Apply(resourceID string, nested any) {
	obj, ok := nested.(map[string]any)
	if !ok {
		f.metrics.EventSkipped("feedback")
		f.logger.Debug("ignoring non-object feedback value", "resource_id", resourceID)
		return
	}

	f.mu.Lock()
	for voter, raw := range obj {
		if metadataKeys[voter] {
			continue
		}
		switch v := raw.(type) {
		case nil:
			f.setLocked(resourceID, voter, domain.DirectionNone)
		case string:
			dir, ok := domain.ParseDirection(v)
			if !ok {
				f.metrics.EventSkipped("feedback")
				continue
			}
			f.setLocked(resourceID, voter, dir)
		default:
			f.metrics.EventSkipped("feedback")
		}
	}
	f.mu.Unlock()

	f.emitter.Emit(Notification{Change: FeedbackChanged, ResourceID: resourceID})
}

// Handle adapts Apply to stream.Handler.
func (f *Feedback) Handle(ev stream.Event) {
	if ev.Kind == stream.Retracted {
		f.Apply(ev.Key, nil)
		return
	}
	f.Apply(ev.Key, ev.Value)
}

// toggleLeaf flips voter's leaf on resourceID the way a vote does: dir again
// clears it, anything else sets it to dir. The read and the write happen under
// one lock. It returns the direction now held.
func (f *Feedback) toggleLeaf(resourceID, voter string, dir domain.Direction) domain.Direction {
	f.mu.Lock()
	next := dir
	if f.votes[resourceID][voter] == dir {
		next = domain.DirectionNone
	}
	f.setLocked(resourceID, voter, next)
	f.mu.Unlock()

	f.emitter.Emit(Notification{Change: FeedbackChanged, ResourceID: resourceID})
	return next
}

func (f *Feedback) setLocked(resourceID, voter string, dir domain.Direction) {
	if dir == domain.DirectionNone {
		byVoter := f.votes[resourceID]
		delete(byVoter, voter)
		if len(byVoter) == 0 {
			delete(f.votes, resourceID)
		}
		return
	}
	byVoter, ok := f.votes[resourceID]
	if !ok {
		byVoter = make(map[string]domain.Direction)
		f.votes[resourceID] = byVoter
	}
	byVoter[voter] = dir
}

// Vote returns voter's direction on resourceID.
func (f *Feedback) Vote(resourceID, voter string) domain.Direction {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.votes[resourceID][voter]
}

// Tally counts the votes on resourceID. Unknown ids yield a zero tally.
func (f *Feedback) Tally(resourceID string) domain.Tally {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.TallyVotes(f.votes[resourceID])
}
