package local

import (
	"fmt"
	"testing"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/kv"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, medium tracking.Medium) *EventStore {
	t.Helper()
	if medium == nil {
		medium = kv.NewMemoryMedium()
	}
	return NewEventStore(medium, tracking.NewKeys("app"), logging.NewDiscardLogger())
}

func analyticsEvent(i int) tracking.AnalyticsEvent {
	return tracking.AnalyticsEvent{
		ID:        fmt.Sprintf("event_%04d", i),
		EventType: "page_view",
		Timestamp: base.Add(time.Duration(i) * time.Second),
		UserID:    "user_1",
	}
}

func TestAppendEventCapsAnalyticsLog(t *testing.T) {
	store := newTestStore(t, nil)

	for i := 0; i < tracking.MaxAnalyticsLog+25; i++ {
		require.NoError(t, store.AppendEvent(LogAnalytics, analyticsEvent(i)))
	}

	events, skipped := store.AnalyticsLog()
	assert.Zero(t, skipped)
	require.Len(t, events, tracking.MaxAnalyticsLog)
	assert.Equal(t, "event_1024", events[0].ID, "newest first")
	assert.Equal(t, "event_0025", events[len(events)-1].ID, "oldest entries evicted first")
}

func TestAppendEventUnknownLog(t *testing.T) {
	store := newTestStore(t, nil)
	assert.Error(t, store.AppendEvent(LogKind("other"), analyticsEvent(0)))
}

func TestReadLogSortsByEmbeddedTimestamp(t *testing.T) {
	store := newTestStore(t, nil)

	// Arrival order differs from event time, as after a backend switch.
	require.NoError(t, store.AppendEvent(LogHugs, tracking.HugEvent{ID: "late", Timestamp: base.Add(time.Hour)}))
	require.NoError(t, store.AppendEvent(LogHugs, tracking.HugEvent{ID: "early", Timestamp: base}))

	hugs := store.RecentHugs(10)
	require.Len(t, hugs, 2)
	assert.Equal(t, "late", hugs[0].ID)
	assert.Equal(t, "early", hugs[1].ID)

	assert.Len(t, store.RecentHugs(1), 1)
}

func TestReadLogSkipsCorruptEntries(t *testing.T) {
	medium := kv.NewMemoryMedium()
	good, err := json.Marshal(analyticsEvent(1))
	require.NoError(t, err)
	require.NoError(t, medium.Set("app_analytics_events", `[`+string(good)+`,"oops",42]`))

	store := newTestStore(t, medium)
	events, skipped := store.AnalyticsLog()
	assert.Equal(t, 2, skipped)
	require.Len(t, events, 1)
	assert.Equal(t, "event_0001", events[0].ID)
}

func TestFailedAppendLeavesLogIntact(t *testing.T) {
	medium := kv.NewMemoryMediumWithQuota(600)
	store := newTestStore(t, medium)
	require.NoError(t, store.AppendEvent(LogAnalytics, analyticsEvent(0)))

	huge := analyticsEvent(1)
	huge.Payload = map[string]any{"blob": string(make([]byte, 1024))}
	err := store.AppendEvent(LogAnalytics, huge)
	require.ErrorIs(t, err, tracking.ErrQuotaExceeded)

	events, _ := store.AnalyticsLog()
	require.Len(t, events, 1)
	assert.Equal(t, "event_0000", events[0].ID)
}

func TestProfileLifecycle(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.GetProfile("user_1")
	require.ErrorIs(t, err, tracking.ErrNotFound)

	profile := tracking.NewUserProfile("user_1", base)
	profile.AddHug(tracking.HugEvent{ID: "hug_1", Category: "emotional", Timestamp: base})
	require.NoError(t, store.PutProfile("user_1", profile))

	got, err := store.GetProfile("user_1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalHugCount)
	assert.Equal(t, "emotional", got.FavoriteCategory)

	later := base.Add(time.Hour)
	require.NoError(t, store.TouchProfile("user_1", later))
	got, err = store.GetProfile("user_1")
	require.NoError(t, err)
	assert.True(t, got.LastActiveAt.Equal(later))

	require.NoError(t, store.TouchProfile("nobody", later), "touching an absent profile is a no-op")

	require.NoError(t, store.RemoveProfile("user_1"))
	_, err = store.GetProfile("user_1")
	require.ErrorIs(t, err, tracking.ErrNotFound)
}

func TestTouchProfileDoesNotOverwriteConcurrentPut(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.PutProfile("user_1", tracking.NewUserProfile("user_1", base)))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = store.TouchProfile("user_1", base.Add(time.Duration(i)*time.Millisecond))
		}
	}()

	lost := 0
	for i := 1; i <= 2000; i++ {
		profile := tracking.NewUserProfile("user_1", base)
		profile.TotalHugCount = i
		require.NoError(t, store.PutProfile("user_1", profile))
		got, err := store.GetProfile("user_1")
		require.NoError(t, err)
		if got.TotalHugCount != i {
			lost++
		}
	}
	close(stop)
	<-done

	assert.Zero(t, lost, "a touch must never write back a profile older than the latest put")
}

func TestGetProfileMalformed(t *testing.T) {
	medium := kv.NewMemoryMedium()
	require.NoError(t, medium.Set("app_user_user_1", "{not json"))
	require.NoError(t, medium.Set("app_user_user_2", `{"totalHugCount":3}`))

	store := newTestStore(t, medium)
	_, err := store.GetProfile("user_1")
	assert.ErrorIs(t, err, tracking.ErrMalformedRecord)
	_, err = store.GetProfile("user_2")
	assert.ErrorIs(t, err, tracking.ErrMalformedRecord, "a profile without userId is malformed")
}

func TestScanAllProfilesSkipsCorruptEntry(t *testing.T) {
	medium := kv.NewMemoryMedium()
	store := newTestStore(t, medium)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("user_%d", i)
		p := tracking.NewUserProfile(id, base)
		p.TotalHugCount = i + 1
		require.NoError(t, store.PutProfile(id, p))
	}
	require.NoError(t, medium.Set("app_user_broken", "\x00garbage"))
	require.NoError(t, medium.Set("app_user_id", "user_0"))
	require.NoError(t, medium.Set("app_hugs", "[]"))

	scan, err := store.ScanAllProfiles()
	require.NoError(t, err)
	assert.Equal(t, 1, scan.Skipped)
	require.Len(t, scan.Profiles, 10)

	total := 0
	for _, p := range scan.Profiles {
		total += p.TotalHugCount
	}
	assert.Equal(t, 55, total)
}

func TestClearAnalyticsKeepsProfiles(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.AppendEvent(LogAnalytics, analyticsEvent(0)))
	require.NoError(t, store.PutProfile("user_1", tracking.NewUserProfile("user_1", base)))

	require.NoError(t, store.ClearAnalytics())

	events, _ := store.AnalyticsLog()
	assert.Empty(t, events)
	_, err := store.GetProfile("user_1")
	assert.NoError(t, err)
}

func TestDecodeProfileDefaultsHistory(t *testing.T) {
	p, err := DecodeProfile([]byte(`{"userId":"user_9"}`))
	require.NoError(t, err)
	assert.NotNil(t, p.History)
	assert.Empty(t, p.History)
}
