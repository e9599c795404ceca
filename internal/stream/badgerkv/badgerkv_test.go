package badgerkv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbay/openbay-node/internal/stream"
)

func setupBackend(t *testing.T, path string) *Backend {
	t.Helper()
	b, err := Open(path, nil)
	require.NoError(t, err)
	return b
}

func TestBackend_PutScan(t *testing.T) {
	b := setupBackend(t, t.TempDir())
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "gunbay/torrents/b", []byte(`{"name":"B"}`)))
	require.NoError(t, b.Put(ctx, "gunbay/torrents/a", []byte(`{"name":"A"}`)))
	require.NoError(t, b.Put(ctx, "gunbay/feedback/a/pk", []byte(`"up"`)))
	require.NoError(t, b.Put(ctx, "gunbay/torrents/a", []byte(`null`)))

	var keys []string
	var values []string
	err := b.Scan(ctx, "gunbay/torrents/", func(key string, value []byte) error {
		keys = append(keys, key)
		values = append(values, string(value))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"gunbay/torrents/a", "gunbay/torrents/b"}, keys)
	assert.Equal(t, []string{"null", `{"name":"B"}`}, values)
}

func TestBackend_InMemory(t *testing.T) {
	b := setupBackend(t, "")
	defer b.Close()

	require.NoError(t, b.Put(context.Background(), "k", []byte(`1`)))

	var n int
	require.NoError(t, b.Scan(context.Background(), "", func(string, []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestBackend_SurvivesReopenThroughStore(t *testing.T) {
	dir := t.TempDir()
	path := stream.NewPath("gunbay", "torrents")

	s := stream.NewStore(setupBackend(t, dir), stream.Options{})
	s.Write(path, "r1", map[string]any{"name": "Foo"}, nil)
	require.NoError(t, s.Close())

	s = stream.NewStore(setupBackend(t, dir), stream.Options{})
	defer s.Close()

	events := make(chan stream.Event, 4)
	_, err := s.Subscribe(context.Background(), path, func(ev stream.Event) { events <- ev })
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, stream.Event{Kind: stream.Upserted, Key: "r1", Value: map[string]any{"name": "Foo"}}, ev)
	case <-time.After(time.Second):
		t.Fatal("replay did not deliver the persisted record")
	}
}
