package sqlitekv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbay/openbay-node/internal/stream"
)

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_UpsertAndScan(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "gunbay/torrents/b", []byte(`{"name":"B"}`)))
	require.NoError(t, b.Put(ctx, "gunbay/torrents/a", []byte(`{"name":"A"}`)))
	require.NoError(t, b.Put(ctx, "gunbay/torrentsx/a", []byte(`1`)))
	require.NoError(t, b.Put(ctx, "gunbay/torrents/a", []byte(`null`)))

	got := map[string]string{}
	var order []string
	err := b.Scan(ctx, "gunbay/torrents/", func(key string, value []byte) error {
		got[key] = string(value)
		order = append(order, key)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"gunbay/torrents/a", "gunbay/torrents/b"}, order)
	assert.Equal(t, "null", got["gunbay/torrents/a"])
}

func TestBackend_InMemory(t *testing.T) {
	b, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(context.Background(), "a/b", []byte(`"x"`)))

	var keys []string
	require.NoError(t, b.Scan(context.Background(), "", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"a/b"}, keys)
}

func TestBackend_WithStore(t *testing.T) {
	s := stream.NewStore(setupBackend(t), stream.Options{})
	feedback := stream.NewPath("gunbay", "feedback")

	s.Write(feedback.Child("r1"), "alice", "up", nil)
	s.Write(feedback.Child("r1"), "bob", "down", nil)
	require.NoError(t, s.Flush(context.Background()))

	var events []stream.Event
	_, err := s.Subscribe(context.Background(), feedback, func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, map[string]any{"alice": "up", "bob": "down"}, events[0].Value)
}
