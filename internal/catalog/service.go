// Package catalog keeps the locally materialized view of the shared resource
// catalog and its feedback, and issues the commands that change them.
//
// Two reducers (ResourceIndex, Feedback) fold the change stream into memory.
// Service answers queries from that state and turns commands into keyed
// writes after checking identity, ownership and input.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/id"
	"github.com/openbay/openbay-node/internal/metrics"
	"github.com/openbay/openbay-node/internal/stream"
	"github.com/openbay/openbay-node/internal/validation"
)

// DefaultRoot is the shared namespace nodes join unless configured otherwise.
const DefaultRoot = "gunbay"

// Namespace segments below the root and below a user's private space.
const (
	resourcesSegment = "torrents"
	feedbackSegment  = "feedback"
)

// AckFunc reports the outcome of a command's authoritative write. Failures
// are *errors.Error with CodeAdapterFailure.
type AckFunc func(err error)

// ResourceFields is the input of Publish.
type ResourceFields struct {
	Name        string `json:"name" validate:"notblank"`
	Magnet      string `json:"magnet" validate:"required,magnet"`
	Category    string `json:"category"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Category domain.Category
	Search   string
}

// Options configures a Service.
type Options struct {
	Root    string
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service is the catalog: queries over the reducers and validated commands
// against the change stream adapter.
type Service struct {
	adapter   stream.Adapter
	identity  *IdentityContext
	index     *ResourceIndex
	feedback  *Feedback
	validator *validation.Validator
	emitter   EventEmitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	resourcesPath stream.Path
	feedbackPath  stream.Path
	subs          []stream.Subscription

	voteMu sync.Mutex
}

// NewService wires the reducers to adapter. Call Start to subscribe.
func NewService(adapter stream.Adapter, identity *IdentityContext, emitter EventEmitter, opts Options) *Service {
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "catalog")
	emitter = emitterOrNoop(emitter)
	if identity == nil {
		identity = NewIdentityContext(emitter)
	}

	root := stream.NewPath(opts.Root)
	return &Service{
		adapter:       adapter,
		identity:      identity,
		index:         NewResourceIndex(emitter, opts.Metrics, logger),
		feedback:      NewFeedback(emitter, opts.Metrics, logger),
		validator:     validation.New(),
		emitter:       emitter,
		logger:        logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
		resourcesPath: root.Child(resourcesSegment),
		feedbackPath:  root.Child(feedbackSegment),
	}
}

// Start subscribes both reducers. Existing state is replayed before it returns.
func (s *Service) Start(ctx context.Context) error {
	resSub, err := s.adapter.Subscribe(ctx, s.resourcesPath, s.index.Handle)
	if err != nil {
		return fmt.Errorf("subscribe resources: %w", err)
	}
	fbSub, err := s.adapter.Subscribe(ctx, s.feedbackPath, s.feedback.Handle)
	if err != nil {
		resSub.Unsubscribe()
		return fmt.Errorf("subscribe feedback: %w", err)
	}
	s.subs = []stream.Subscription{resSub, fbSub}

	s.logger.Info("catalog started",
		"resources", s.resourcesPath.String(),
		"feedback", s.feedbackPath.String(),
		"records", s.index.Len(),
	)
	return nil
}

// Stop cancels the subscriptions made by Start.
func (s *Service) Stop() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

// Identity returns the identity context commands fall back to.
func (s *Service) Identity() *IdentityContext {
	return s.identity
}

// Index exposes the resource reducer.
func (s *Service) Index() *ResourceIndex {
	return s.index
}

// Feedback exposes the feedback reducer.
func (s *Service) Feedback() *Feedback {
	return s.feedback
}

// CurrentIdentity resolves the acting identity at call time: an identity
// attached to ctx wins over the shared IdentityContext.
func (s *Service) CurrentIdentity(ctx context.Context) (domain.Identity, bool) {
	if ident, attached := attachedIdentity(ctx); attached {
		return ident, !ident.IsZero()
	}
	return s.identity.Current()
}

// List returns displayable resources matching f, newest first. Records with
// the same upload time keep the order in which they entered the index.
func (s *Service) List(_ context.Context, f Filter) []domain.Resource {
	entries := s.index.snapshot()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(f.Search))

	matched := entries[:0]
	for _, e := range entries {
		if !e.Displayable() {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(e.Name), needle) &&
			!strings.Contains(fold.String(e.Description), needle) {
			continue
		}
		matched = append(matched, e)
	}

	slices.SortFunc(matched, func(a, b indexedResource) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	out := make([]domain.Resource, len(matched))
	for i, e := range matched {
		out[i] = e.Resource
	}
	return out
}

// Get returns one displayable resource.
func (s *Service) Get(_ context.Context, resourceID string) (domain.Resource, error) {
	r, ok := s.index.Get(resourceID)
	if !ok || !r.Displayable() {
		return domain.Resource{}, errors.NotFoundf("resource %s not found", resourceID)
	}
	return r, nil
}

// Tally returns the feedback counts for resourceID, zeroed when unknown.
func (s *Service) Tally(resourceID string) domain.Tally {
	return s.feedback.Tally(resourceID)
}

// MyVote returns the acting identity's vote, or DirectionNone.
func (s *Service) MyVote(ctx context.Context, resourceID string) domain.Direction {
	ident, ok := s.CurrentIdentity(ctx)
	if !ok {
		return domain.DirectionNone
	}
	return s.feedback.Vote(resourceID, ident.PublicKey)
}

// Publish validates fields, stamps ownership and writes the record to the
// owner's private namespace and to the public index. The id is returned
// before the writes complete; onAck reports the public write.
func (s *Service) Publish(ctx context.Context, fields ResourceFields, onAck AckFunc) (string, error) {
	ident, ok := s.CurrentIdentity(ctx)
	if !ok {
		s.metrics.Command("publish", string(errors.CodeUnauthorized))
		return "", errors.Unauthorized("login required to publish")
	}

	fields.Name = strings.TrimSpace(fields.Name)
	fields.Magnet = strings.TrimSpace(fields.Magnet)
	if err := s.validator.Validate(fields); err != nil {
		s.metrics.Command("publish", string(errors.CodeInvalidInput))
		return "", err
	}

	now := s.now()
	resourceID, err := id.NewResourceID(now)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "generate resource id")
	}

	record := domain.Resource{
		ID:          resourceID,
		Name:        fields.Name,
		Magnet:      fields.Magnet,
		Category:    domain.ParseCategory(fields.Category),
		Size:        strings.TrimSpace(fields.Size),
		Description: strings.TrimSpace(fields.Description),
		UploadedAt:  now,
		UploadedBy:  ident.Alias,
		OwnerPub:    ident.PublicKey,
	}
	payload := record.Fields()

	s.adapter.Write(privateResources(ident), resourceID, payload, s.logOnly("publish", resourceID))
	s.adapter.Write(s.resourcesPath, resourceID, payload, s.ack("publish", resourceID, onAck))

	s.metrics.Command("publish", "ok")
	s.logger.Info("resource published", "id", resourceID, "category", record.Category, "owner", ident.Alias)
	return resourceID, nil
}

// Retract deletes a record the acting identity owns from both namespaces.
func (s *Service) Retract(ctx context.Context, resourceID string, onAck AckFunc) error {
	ident, ok := s.CurrentIdentity(ctx)
	if !ok {
		s.metrics.Command("retract", string(errors.CodeUnauthorized))
		return errors.Unauthorized("login required to delete")
	}

	record, ok := s.index.Get(resourceID)
	if !ok {
		s.metrics.Command("retract", string(errors.CodeNotFound))
		return errors.NotFoundf("resource %s not found", resourceID)
	}
	if !record.OwnedBy(ident) {
		s.metrics.Command("retract", string(errors.CodeUnauthorized))
		s.logger.Debug("retract refused for non-owner", "id", resourceID, "alias", ident.Alias)
		return errors.Unauthorized("only the owner can delete this resource")
	}

	s.adapter.Write(privateResources(ident), resourceID, nil, s.logOnly("retract", resourceID))
	s.adapter.Write(s.resourcesPath, resourceID, nil, s.ack("retract", resourceID, onAck))

	s.metrics.Command("retract", "ok")
	s.logger.Info("resource retracted", "id", resourceID)
	return nil
}

// Vote toggles the acting identity's vote on resourceID: the same direction
// again retracts it, the other direction replaces it. The feedback mapping is
// updated before the write round-trips.
func (s *Service) Vote(ctx context.Context, resourceID string, dir domain.Direction, onAck AckFunc) error {
	if _, ok := domain.ParseDirection(string(dir)); !ok {
		s.metrics.Command("vote", string(errors.CodeInvalidInput))
		return errors.InvalidInputf("invalid vote direction %q", dir)
	}
	if resourceID == "" {
		s.metrics.Command("vote", string(errors.CodeInvalidInput))
		return errors.InvalidInput("resource id is required")
	}
	ident, ok := s.CurrentIdentity(ctx)
	if !ok {
		s.metrics.Command("vote", string(errors.CodeUnauthorized))
		return errors.Unauthorized("login required to vote")
	}

	// Writes are issued in toggle order so the store ends where the mapping did.
	s.voteMu.Lock()
	value, effect := any(string(dir)), string(dir)
	if s.feedback.toggleLeaf(resourceID, ident.PublicKey, dir) == domain.DirectionNone {
		value, effect = nil, "retract"
	}
	s.adapter.Write(s.feedbackPath.Child(resourceID), ident.PublicKey, value, s.ack("vote", resourceID, onAck))
	s.voteMu.Unlock()

	s.metrics.Command("vote", "ok")
	s.metrics.Vote(effect)
	s.logger.Debug("vote issued", "id", resourceID, "effect", effect)
	return nil
}

func privateResources(ident domain.Identity) stream.Path {
	return stream.NewPath("~"+ident.PublicKey, resourcesSegment)
}

// ack wraps a store outcome as an AdapterFailure, raises write.failed and
// forwards it to onAck.
func (s *Service) ack(command, resourceID string, onAck AckFunc) stream.AckFunc {
	return func(err error) {
		if err != nil {
			err = errors.AdapterFailure(err, command+" "+resourceID)
			s.logger.Warn("write failed", "command", command, "id", resourceID, "error", err)
			s.emitter.Emit(Notification{Change: WriteFailed, ResourceID: resourceID, Error: err.Error()})
		}
		if onAck != nil {
			onAck(err)
		}
	}
}

func (s *Service) logOnly(command, resourceID string) stream.AckFunc {
	return func(err error) {
		if err != nil {
			s.logger.Warn("private write failed", "command", command, "id", resourceID, "error", err)
		}
	}
}
