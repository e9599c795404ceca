package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/stream"
)

type write struct {
	path  stream.Path
	key   string
	value any
}

// fakeAdapter records writes and acks them with ackErr. It never echoes
// writes back to subscribers.
type fakeAdapter struct {
	mu     sync.Mutex
	writes []write
	ackErr error
}

func (a *fakeAdapter) Subscribe(context.Context, stream.Path, stream.Handler) (stream.Subscription, error) {
	return noopSubscription{}, nil
}

func (a *fakeAdapter) Write(path stream.Path, key string, value any, onAck stream.AckFunc) {
	a.mu.Lock()
	a.writes = append(a.writes, write{path: path, key: key, value: value})
	err := a.ackErr
	a.mu.Unlock()
	if onAck != nil {
		onAck(err)
	}
}

func (a *fakeAdapter) recorded() []write {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]write(nil), a.writes...)
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

var (
	alice = domain.Identity{Alias: "alice", PublicKey: "pk-alice"}
	bob   = domain.Identity{Alias: "bob", PublicKey: "pk-bob"}
)

const validMagnet = "magnet:?xt=urn:btih:ABC123"

func setupService(t *testing.T) (*Service, *fakeAdapter) {
	t.Helper()
	adapter := &fakeAdapter{}
	now := time.UnixMilli(1_700_000_000_000)
	svc := NewService(adapter, nil, nil, Options{Now: func() time.Time { return now }})
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc, adapter
}

func as(ident domain.Identity) context.Context {
	return WithIdentity(context.Background(), ident)
}

func TestPublish_WritesPrivateAndPublicIdenticalPayloads(t *testing.T) {
	svc, adapter := setupService(t)

	var acked error = errors.Internal("not acked")
	id, err := svc.Publish(as(alice), ResourceFields{Name: "Foo", Magnet: validMagnet}, func(err error) { acked = err })
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.NoError(t, acked)

	writes := adapter.recorded()
	require.Len(t, writes, 2)

	assert.Equal(t, stream.NewPath("~pk-alice", "torrents"), writes[0].path)
	assert.Equal(t, stream.NewPath("gunbay", "torrents"), writes[1].path)
	assert.Equal(t, id, writes[0].key)
	assert.Equal(t, id, writes[1].key)
	assert.Equal(t, writes[0].value, writes[1].value)

	payload, ok := writes[1].value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Foo", payload[domain.FieldName])
	assert.Equal(t, validMagnet, payload[domain.FieldMagnet])
	assert.Equal(t, "other", payload[domain.FieldCategory])
	assert.Equal(t, "alice", payload[domain.FieldUploadedBy])
	assert.Equal(t, "pk-alice", payload[domain.FieldOwnerPub])
	assert.Equal(t, int64(1_700_000_000_000), payload[domain.FieldUploadedAt])
	assert.NotContains(t, payload, domain.FieldSize)
	assert.NotContains(t, payload, domain.FieldDescription)
}

func TestPublish_InvalidLocatorIssuesNoWrites(t *testing.T) {
	svc, adapter := setupService(t)

	_, err := svc.Publish(as(alice), ResourceFields{Name: "Foo", Magnet: "ftp://not-a-magnet"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Empty(t, adapter.recorded())
}

func TestPublish_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		fields ResourceFields
		want   *errors.Error
	}{
		{"no identity", context.Background(), ResourceFields{Name: "Foo", Magnet: validMagnet}, errors.ErrUnauthorized},
		{"missing name", as(alice), ResourceFields{Name: "  ", Magnet: validMagnet}, errors.ErrInvalidInput},
		{"missing magnet", as(alice), ResourceFields{Name: "Foo"}, errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, adapter := setupService(t)

			_, err := svc.Publish(tt.ctx, tt.fields, nil)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, adapter.recorded())
		})
	}
}

func TestPublish_NormalizesFields(t *testing.T) {
	svc, adapter := setupService(t)

	_, err := svc.Publish(as(alice), ResourceFields{
		Name:        "  Foo  ",
		Magnet:      " " + validMagnet + " ",
		Category:    "GAMES",
		Size:        " 4 GB ",
		Description: "desc",
	}, nil)
	require.NoError(t, err)

	payload := adapter.recorded()[1].value.(map[string]any)
	assert.Equal(t, "Foo", payload[domain.FieldName])
	assert.Equal(t, validMagnet, payload[domain.FieldMagnet])
	assert.Equal(t, "games", payload[domain.FieldCategory])
	assert.Equal(t, "4 GB", payload[domain.FieldSize])
	assert.Equal(t, "desc", payload[domain.FieldDescription])
}

func TestPublish_AckReportsAdapterFailure(t *testing.T) {
	svc, adapter := setupService(t)
	adapter.ackErr = errors.New("disk full")

	var acked error
	id, err := svc.Publish(as(alice), ResourceFields{Name: "Foo", Magnet: validMagnet}, func(err error) { acked = err })

	require.NoError(t, err, "adapter failures are never returned synchronously")
	require.NotEmpty(t, id)
	require.Error(t, acked)
	assert.True(t, errors.Is(acked, errors.ErrAdapterFailure))
}

func TestPublish_FallsBackToIdentityContext(t *testing.T) {
	svc, adapter := setupService(t)

	_, err := svc.Publish(context.Background(), ResourceFields{Name: "Foo", Magnet: validMagnet}, nil)
	require.Error(t, err)

	// Login completes after the first attempt; the next call sees it.
	svc.Identity().Set(bob)
	_, err = svc.Publish(context.Background(), ResourceFields{Name: "Foo", Magnet: validMagnet}, nil)
	require.NoError(t, err)
	assert.Equal(t, stream.NewPath("~pk-bob", "torrents"), adapter.recorded()[0].path)
}

func TestRetract_AnonymousContextIgnoresNodeIdentity(t *testing.T) {
	svc, adapter := setupService(t)
	seedResource(svc, "r1", alice)
	svc.Identity().Set(alice)

	err := svc.Retract(Anonymous(context.Background()), "r1", nil)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, err = svc.Publish(Anonymous(context.Background()), ResourceFields{Name: "Foo", Magnet: validMagnet}, nil)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, ok := svc.CurrentIdentity(Anonymous(context.Background()))
	assert.False(t, ok)
	assert.Empty(t, adapter.recorded())
	_, ok = svc.Index().Get("r1")
	assert.True(t, ok)
}

func seedResource(svc *Service, id string, owner domain.Identity) {
	svc.Index().Apply(id, map[string]any{
		domain.FieldName:       "Foo",
		domain.FieldMagnet:     validMagnet,
		domain.FieldUploadedAt: float64(1000),
		domain.FieldUploadedBy: owner.Alias,
		domain.FieldOwnerPub:   owner.PublicKey,
	})
}

func TestRetract_NonOwnerIssuesNoWrites(t *testing.T) {
	svc, adapter := setupService(t)
	seedResource(svc, "r1", alice)

	err := svc.Retract(as(bob), "r1", nil)

	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	assert.Empty(t, adapter.recorded())
}

func TestRetract_Rejections(t *testing.T) {
	svc, adapter := setupService(t)
	seedResource(svc, "r1", alice)

	err := svc.Retract(context.Background(), "r1", nil)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	err = svc.Retract(as(alice), "missing", nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	assert.Empty(t, adapter.recorded())
}

func TestRetract_OwnerRetractsBothNamespaces(t *testing.T) {
	svc, adapter := setupService(t)
	seedResource(svc, "r1", alice)

	require.NoError(t, svc.Retract(as(alice), "r1", nil))

	writes := adapter.recorded()
	require.Len(t, writes, 2)
	assert.Equal(t, write{path: stream.NewPath("~pk-alice", "torrents"), key: "r1"}, writes[0])
	assert.Equal(t, write{path: stream.NewPath("gunbay", "torrents"), key: "r1"}, writes[1])
}

func TestVote_Toggle(t *testing.T) {
	svc, adapter := setupService(t)
	ctx := as(bob)

	require.NoError(t, svc.Vote(ctx, "r1", domain.DirectionUp, nil))
	assert.Equal(t, domain.Tally{Up: 1, Score: 1}, svc.Tally("r1"))
	assert.Equal(t, domain.DirectionUp, svc.MyVote(ctx, "r1"))

	require.NoError(t, svc.Vote(ctx, "r1", domain.DirectionUp, nil))
	assert.Equal(t, domain.Tally{}, svc.Tally("r1"))
	assert.Equal(t, domain.DirectionNone, svc.MyVote(ctx, "r1"))

	require.NoError(t, svc.Vote(ctx, "r1", domain.DirectionDown, nil))
	require.NoError(t, svc.Vote(ctx, "r1", domain.DirectionUp, nil))
	assert.Equal(t, domain.Tally{Up: 1, Score: 1}, svc.Tally("r1"))

	writes := adapter.recorded()
	require.Len(t, writes, 4)
	feedbackPath := stream.NewPath("gunbay", "feedback", "r1")
	assert.Equal(t, write{path: feedbackPath, key: "pk-bob", value: "up"}, writes[0])
	assert.Equal(t, write{path: feedbackPath, key: "pk-bob", value: nil}, writes[1])
	assert.Equal(t, write{path: feedbackPath, key: "pk-bob", value: "down"}, writes[2])
	assert.Equal(t, write{path: feedbackPath, key: "pk-bob", value: "up"}, writes[3])
}

func TestVote_ConcurrentTogglesStayInStep(t *testing.T) {
	svc, adapter := setupService(t)
	ctx := as(bob)

	const votes = 50
	var wg sync.WaitGroup
	for range votes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Vote(ctx, "r1", domain.DirectionUp, nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.DirectionNone, svc.MyVote(ctx, "r1"))
	assert.Equal(t, domain.Tally{}, svc.Tally("r1"))

	// Each write flips the previous one, so the store ends where the mapping did.
	writes := adapter.recorded()
	require.Len(t, writes, votes)
	for i, w := range writes {
		if i%2 == 0 {
			assert.Equal(t, "up", w.value, "write %d", i)
		} else {
			assert.Nil(t, w.value, "write %d", i)
		}
	}
}

func TestVote_Rejections(t *testing.T) {
	svc, adapter := setupService(t)

	err := svc.Vote(context.Background(), "r1", domain.DirectionUp, nil)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	err = svc.Vote(as(bob), "r1", domain.Direction("sideways"), nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = svc.Vote(as(bob), "r1", domain.DirectionNone, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = svc.Vote(as(bob), "", domain.DirectionUp, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	assert.Empty(t, adapter.recorded())
	assert.Equal(t, domain.Tally{}, svc.Tally("r1"))
}

func TestVote_OptimisticNotificationAndFailure(t *testing.T) {
	adapter := &fakeAdapter{ackErr: errors.New("offline")}
	em := &recordingEmitter{}
	svc := NewService(adapter, nil, em, Options{})

	var acked error
	require.NoError(t, svc.Vote(as(bob), "r1", domain.DirectionDown, func(err error) { acked = err }))

	assert.True(t, errors.Is(acked, errors.ErrAdapterFailure))
	assert.Equal(t, 1, em.count(FeedbackChanged))
	assert.Equal(t, 1, em.count(WriteFailed))
	// No automatic rollback: the optimistic state stays until the stream says otherwise.
	assert.Equal(t, domain.Tally{Down: 1, Score: -1}, svc.Tally("r1"))
}

func TestMyVote_NoIdentity(t *testing.T) {
	svc, _ := setupService(t)
	svc.Feedback().Apply("r1", map[string]any{"pk-bob": "up"})

	assert.Equal(t, domain.DirectionNone, svc.MyVote(context.Background(), "r1"))
	assert.Equal(t, domain.DirectionUp, svc.MyVote(as(bob), "r1"))
}

func TestList_FilterAndOrder(t *testing.T) {
	svc, _ := setupService(t)
	x := svc.Index()

	x.Apply("old", map[string]any{"name": "Old Movie", "magnet": validMagnet, "category": "video", "uploadedAt": float64(1000)})
	x.Apply("tie-first", map[string]any{"name": "Album", "magnet": validMagnet, "category": "audio", "uploadedAt": float64(2000)})
	x.Apply("tie-second", map[string]any{"name": "Game", "magnet": validMagnet, "category": "games", "description": "An ÉPIC quest", "uploadedAt": float64(2000)})
	x.Apply("newest", map[string]any{"name": "Linux ISO", "magnet": validMagnet, "category": "software", "uploadedAt": float64(3000)})
	x.Apply("incomplete", map[string]any{"name": "No magnet", "uploadedAt": float64(9000)})

	ids := func(rs []domain.Resource) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, []string{"newest", "tie-first", "tie-second", "old"}, ids(svc.List(context.Background(), Filter{})))
	assert.Equal(t, []string{"old"}, ids(svc.List(context.Background(), Filter{Category: domain.CategoryVideo})))
	assert.Equal(t, []string{"old"}, ids(svc.List(context.Background(), Filter{Search: "MOVIE"})))
	assert.Equal(t, []string{"tie-second"}, ids(svc.List(context.Background(), Filter{Search: "épic"})))
	assert.Empty(t, svc.List(context.Background(), Filter{Category: domain.CategoryAudio, Search: "linux"}))
}

func TestGet(t *testing.T) {
	svc, _ := setupService(t)
	seedResource(svc, "r1", alice)
	svc.Index().Apply("partial", map[string]any{"name": "Only name"})

	r, err := svc.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "pk-alice", r.OwnerPub)
	assert.Equal(t, time.UnixMilli(1000), r.UploadedAt)

	_, err = svc.Get(context.Background(), "partial")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
