package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore connects to REDIS_ADDR under a throwaway prefix.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store, err := NewRedisStore(addr, "hugtrack-test-"+security.RandomBase36(8), Options{}, logging.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if !store.Available(context.Background()) {
		t.Skipf("redis at %s unreachable", addr)
	}
	return store
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore("", "", Options{}, logging.NewDiscardLogger())
	assert.Error(t, err)
}

func TestRedisPutMergeAndQuery(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, tracking.CollectionUsers, tracking.Document{ID: "user_1", Timestamp: ts, Data: []byte(`{"userId":"user_1","totalHugCount":2}`)}))
	require.NoError(t, store.Put(ctx, tracking.CollectionUsers, tracking.Document{ID: "user_1", Timestamp: ts.Add(time.Minute), Data: []byte(`{"theme":"blue"}`)}))
	require.NoError(t, store.Put(ctx, tracking.CollectionUsers, tracking.Document{ID: "user_2", Timestamp: ts, Data: []byte(`{"userId":"user_2"}`)}))

	doc, err := store.Get(ctx, tracking.CollectionUsers, "user_1")
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	assert.EqualValues(t, 2, fields["totalHugCount"])
	assert.Equal(t, "blue", fields["theme"])

	docs, err := store.Query(ctx, tracking.CollectionUsers, tracking.Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "user_1", docs[0].ID)

	require.NoError(t, store.Delete(ctx, tracking.CollectionUsers, "user_1"))
	_, err = store.Get(ctx, tracking.CollectionUsers, "user_1")
	assert.ErrorIs(t, err, tracking.ErrNotFound)
	require.NoError(t, store.Delete(ctx, tracking.CollectionUsers, "user_2"))
}

func TestRedisSubscribePushesOnChange(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	pushes := make(chan []tracking.Document, 4)
	cancel, err := store.Subscribe(ctx, tracking.CollectionHugs, tracking.Query{Limit: 5},
		func(docs []tracking.Document) { pushes <- docs },
		func(error) {})
	require.NoError(t, err)
	defer cancel()
	assert.Empty(t, <-pushes)

	require.NoError(t, store.Put(ctx, tracking.CollectionHugs, tracking.Document{ID: "hug_1", Timestamp: time.Now(), Data: []byte(`{}`)}))
	select {
	case docs := <-pushes:
		require.Len(t, docs, 1)
		assert.Equal(t, "hug_1", docs[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no push after put")
	}
	require.NoError(t, store.Delete(ctx, tracking.CollectionHugs, "hug_1"))
}
