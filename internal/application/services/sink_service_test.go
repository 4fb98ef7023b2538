package services

import (
	"context"
	"testing"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkWritesLocallyWithoutRemote(t *testing.T) {
	sink, store := newTestSink(t, nil, newTestClock(testBase))

	result := sink.TrackEvent(context.Background(), "page_view", map[string]any{"path": "/"})
	require.True(t, result.Success)
	assert.Equal(t, tracking.BackendLocal, result.Backend)

	events, skipped := store.AnalyticsLog()
	require.Len(t, events, 1)
	assert.Zero(t, skipped)
	assert.Equal(t, "user_1", events[0].UserID)
	assert.Equal(t, "session_1", events[0].SessionID)
	assert.True(t, events[0].Timestamp.Equal(testBase))
	assert.Equal(t, result.ID, events[0].ID)
}

func TestSinkPrefersReachableRemote(t *testing.T) {
	remote := newFakeRemote(true)
	sink, store := newTestSink(t, remote, newTestClock(testBase))

	result := sink.SaveHugEvent(context.Background(), tracking.HugEvent{Category: "comfort", UserID: "user_1"})
	require.True(t, result.Success)
	assert.Equal(t, tracking.BackendRemote, result.Backend)
	assert.Equal(t, 1, remote.count(tracking.CollectionHugs))

	hugs, _ := store.HugLog()
	assert.Empty(t, hugs)
	assert.Equal(t, tracking.BackendRemote, sink.ActiveBackend(context.Background()))
}

func TestSinkFallbackWritesExactlyOnce(t *testing.T) {
	remote := newFakeRemote(true)
	remote.failWrites = true
	sink, store := newTestSink(t, remote, newTestClock(testBase))

	for i := 0; i < 3; i++ {
		result := sink.TrackEvent(context.Background(), "click", nil)
		require.True(t, result.Success)
		assert.Equal(t, tracking.BackendLocal, result.Backend)
	}

	events, _ := store.AnalyticsLog()
	assert.Len(t, events, 3)
	assert.Zero(t, remote.count(tracking.CollectionAnalytics))
}

func TestSinkDecidesPerCall(t *testing.T) {
	remote := newFakeRemote(false)
	sink, store := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()

	assert.Equal(t, tracking.BackendLocal, sink.TrackEvent(ctx, "a", nil).Backend)
	remote.setAvailable(true)
	assert.Equal(t, tracking.BackendRemote, sink.TrackEvent(ctx, "b", nil).Backend)
	remote.setAvailable(false)
	assert.Equal(t, tracking.BackendLocal, sink.TrackEvent(ctx, "c", nil).Backend)

	events, _ := store.AnalyticsLog()
	assert.Len(t, events, 2)
	assert.Equal(t, 1, remote.count(tracking.CollectionAnalytics))
}

func TestSinkRejectsEventWithoutType(t *testing.T) {
	sink, store := newTestSink(t, nil, newTestClock(testBase))

	result := sink.RecordAnalytics(context.Background(), tracking.AnalyticsEvent{})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	events, _ := store.AnalyticsLog()
	assert.Empty(t, events)
}

func TestSinkRecordAnalyticsFillsAnonymousUser(t *testing.T) {
	sink, store := newTestSink(t, nil, newTestClock(testBase))

	result := sink.RecordAnalytics(context.Background(), tracking.AnalyticsEvent{EventType: "session_end"})
	require.True(t, result.Success)

	events, _ := store.AnalyticsLog()
	require.Len(t, events, 1)
	assert.Equal(t, tracking.AnonymousUser, events[0].UserID)
	assert.NotEmpty(t, events[0].ID)
}

func TestSinkTouchesLastActiveAtInServingStore(t *testing.T) {
	clock := newTestClock(testBase)
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		sink, store := newTestSink(t, nil, clock)
		require.True(t, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Success)

		clock.Advance(time.Minute)
		require.True(t, sink.TrackEvent(ctx, "click", nil).Success)

		profile, err := store.GetProfile("user_1")
		require.NoError(t, err)
		assert.True(t, profile.LastActiveAt.Equal(clock.Now()))
	})

	t.Run("remote", func(t *testing.T) {
		remote := newFakeRemote(true)
		sink, _ := newTestSink(t, remote, clock)
		require.True(t, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Success)

		clock.Advance(time.Minute)
		require.True(t, sink.SaveHugEvent(ctx, tracking.HugEvent{Category: "warm", UserID: "user_1"}).Success)

		profile, backend, err := sink.LoadProfile(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, tracking.BackendRemote, backend)
		assert.True(t, profile.LastActiveAt.Equal(clock.Now()))
		assert.Equal(t, "user_1", profile.UserID, "touch merges into the stored profile")
	})
}

func TestSinkTouchSkipsProfileMissingFromRemote(t *testing.T) {
	remote := newFakeRemote(false)
	clock := newTestClock(testBase)
	sink, store := newTestSink(t, remote, clock)
	ctx := context.Background()

	require.Equal(t, tracking.BackendLocal, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Backend)

	remote.setAvailable(true)
	clock.Advance(time.Minute)
	result := sink.TrackEvent(ctx, "page_view", nil)
	require.True(t, result.Success)
	require.Equal(t, tracking.BackendRemote, result.Backend)

	assert.Zero(t, remote.count(tracking.CollectionUsers), "no stub profile document is created remotely")

	scan, backend, err := sink.ScanProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracking.BackendRemote, backend)
	assert.Empty(t, scan.Profiles)
	assert.Zero(t, scan.Skipped)

	_, err = store.GetProfile("user_1")
	require.NoError(t, err, "the local profile is untouched")
}

func TestSinkLoadProfileFallsThroughRemoteMiss(t *testing.T) {
	remote := newFakeRemote(false)
	sink, _ := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()

	profile := tracking.NewUserProfile("user_1", testBase)
	profile.TotalHugCount = 4
	require.Equal(t, tracking.BackendLocal, sink.SaveProfile(ctx, "user_1", profile).Backend)

	remote.setAvailable(true)
	loaded, backend, err := sink.LoadProfile(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, tracking.BackendLocal, backend)
	assert.Equal(t, 4, loaded.TotalHugCount)

	remote.raw(tracking.CollectionUsers, "user_1", `{"userId":`)
	loaded, backend, err = sink.LoadProfile(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, tracking.BackendLocal, backend, "malformed remote profile falls through")
	assert.Equal(t, 4, loaded.TotalHugCount)

	_, _, err = sink.LoadProfile(ctx, "user_nobody")
	assert.ErrorIs(t, err, tracking.ErrNotFound)
}

func TestSinkSaveProfileStampsLastActive(t *testing.T) {
	clock := newTestClock(testBase)
	sink, store := newTestSink(t, nil, clock)
	clock.Advance(time.Hour)

	profile := tracking.NewUserProfile("user_1", testBase)
	require.True(t, sink.SaveProfile(context.Background(), "user_1", profile).Success)
	assert.True(t, profile.LastActiveAt.Equal(testBase.Add(time.Hour)))

	stored, err := store.GetProfile("user_1")
	require.NoError(t, err)
	assert.True(t, stored.LastActiveAt.Equal(testBase.Add(time.Hour)))

	assert.False(t, sink.SaveProfile(context.Background(), "", profile).Success)
}

func TestSinkScanProfilesSkipsMalformedRemote(t *testing.T) {
	remote := newFakeRemote(true)
	sink, _ := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()

	for _, id := range []string{"user_a", "user_b"} {
		require.True(t, sink.SaveProfile(ctx, id, tracking.NewUserProfile(id, testBase)).Success)
	}
	remote.raw(tracking.CollectionUsers, "user_bad", `{"totalHugCount":"many"}`)

	scan, backend, err := sink.ScanProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracking.BackendRemote, backend)
	assert.Len(t, scan.Profiles, 2)
	assert.Equal(t, 1, scan.Skipped)
}

func TestSinkRecentEventsNewestFirst(t *testing.T) {
	remote := newFakeRemote(true)
	sink, store := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sink.RecordAnalytics(ctx, tracking.AnalyticsEvent{
			EventType: "view",
			Timestamp: testBase.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	remote.raw(tracking.CollectionAnalytics, "event_bad", `not json`)

	feed := sink.RecentEvents(ctx, tracking.TopicAnalytics, 3)
	assert.Equal(t, tracking.BackendRemote, feed.Backend)
	require.Len(t, feed.Analytics, 2, "the malformed document takes a slot and is skipped")

	remote.setAvailable(false)
	require.NoError(t, store.AppendEvent(local.LogAnalytics, tracking.AnalyticsEvent{ID: "event_local", EventType: "view", Timestamp: testBase}))
	feed = sink.RecentEvents(ctx, tracking.TopicAnalytics, 3)
	assert.Equal(t, tracking.BackendLocal, feed.Backend)
	require.Len(t, feed.Analytics, 1)
	assert.Equal(t, "event_local", feed.Analytics[0].ID)
}

func TestSinkSubscribeWithoutRemoteDeliversOneSnapshot(t *testing.T) {
	sink, store := newTestSink(t, nil, newTestClock(testBase))
	require.NoError(t, store.AppendEvent(local.LogHugs, tracking.HugEvent{ID: "hug_1", Category: "warm", Timestamp: testBase}))

	var feeds []tracking.Feed
	unsubscribe := sink.Subscribe(context.Background(), tracking.TopicHugs, func(f tracking.Feed) { feeds = append(feeds, f) })
	require.NotNil(t, unsubscribe)
	unsubscribe()

	require.Len(t, feeds, 1)
	assert.Equal(t, tracking.BackendLocal, feeds[0].Backend)
	require.Len(t, feeds[0].Hugs, 1)
	assert.Equal(t, "hug_1", feeds[0].Hugs[0].ID)
}

func TestSinkSubscribeFallsBackOnceOnRemoteError(t *testing.T) {
	remote := newFakeRemote(true)
	sink, _ := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()
	sink.TrackEvent(ctx, "view", nil)

	var feeds []tracking.Feed
	unsubscribe := sink.Subscribe(ctx, tracking.TopicAnalytics, func(f tracking.Feed) { feeds = append(feeds, f) })
	defer unsubscribe()

	require.Len(t, feeds, 1)
	assert.Equal(t, tracking.BackendRemote, feeds[0].Backend)
	assert.Len(t, feeds[0].Analytics, 1)

	remote.failSubscriptions(errUnreachable)
	remote.failSubscriptions(errUnreachable)

	require.Len(t, feeds, 2, "the local snapshot is delivered exactly once")
	assert.Equal(t, tracking.BackendLocal, feeds[1].Backend)
}

func TestSinkClearUserRemovesBothStores(t *testing.T) {
	remote := newFakeRemote(false)
	sink, store := newTestSink(t, remote, newTestClock(testBase))
	ctx := context.Background()

	require.True(t, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Success)
	remote.setAvailable(true)
	require.True(t, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Success)

	result := sink.ClearUser(ctx, "user_1")
	require.True(t, result.Success)
	assert.Zero(t, remote.count(tracking.CollectionUsers))
	_, err := store.GetProfile("user_1")
	assert.ErrorIs(t, err, tracking.ErrNotFound)
}

func TestSinkClearAnalyticsKeepsProfiles(t *testing.T) {
	sink, store := newTestSink(t, nil, newTestClock(testBase))
	ctx := context.Background()

	require.True(t, sink.SaveProfile(ctx, "user_1", tracking.NewUserProfile("user_1", testBase)).Success)
	sink.TrackEvent(ctx, "view", nil)
	require.True(t, sink.ClearAnalytics().Success)

	events, _ := store.AnalyticsLog()
	assert.Empty(t, events)
	_, err := store.GetProfile("user_1")
	assert.NoError(t, err)
}
