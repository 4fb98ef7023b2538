package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/local"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
	"github.com/goccy/go-json"
)

// Backend is the store resolved for a single sink call.
type Backend interface {
	Kind() tracking.BackendKind
	isBackend()
}

// RemoteBackend routes a call to the network document store.
type RemoteBackend struct{ Store tracking.RemoteStore }

// LocalBackend routes a call to the local event store.
type LocalBackend struct{ Store *local.EventStore }

func (RemoteBackend) Kind() tracking.BackendKind { return tracking.BackendRemote }
func (LocalBackend) Kind() tracking.BackendKind  { return tracking.BackendLocal }
func (RemoteBackend) isBackend()                 {}
func (LocalBackend) isBackend()                  {}

type identitySource interface {
	GetOrCreateUserID() string
	GetOrCreateSessionID() string
}

// SinkService routes every persistence operation to the remote store when it
// is reachable and to the local event store otherwise. The decision is made
// per call. A write is attempted on the local store only after the remote
// attempt failed, so one write never lands in both.
type SinkService struct {
	remote        tracking.RemoteStore
	local         *local.EventStore
	identity      identitySource
	logger        *logging.ChanneledLogger
	now           Clock
	slowThreshold time.Duration
}

// SinkConfig holds the sink collaborators. Remote and Identity are optional.
type SinkConfig struct {
	Remote        tracking.RemoteStore
	Local         *local.EventStore
	Identity      identitySource
	Logger        *logging.ChanneledLogger
	Now           Clock
	SlowThreshold time.Duration
}

// NewSinkService creates the dual-backend sink.
func NewSinkService(cfg SinkConfig) *SinkService {
	threshold := cfg.SlowThreshold
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}
	return &SinkService{
		remote:        cfg.Remote,
		local:         cfg.Local,
		identity:      cfg.Identity,
		logger:        cfg.Logger,
		now:           cfg.Now.orSystem(),
		slowThreshold: threshold,
	}
}

func (s *SinkService) resolve(ctx context.Context) Backend {
	if s.remote != nil && s.remote.Available(ctx) {
		return RemoteBackend{Store: s.remote}
	}
	return LocalBackend{Store: s.local}
}

// ActiveBackend reports which store would serve a call issued now.
func (s *SinkService) ActiveBackend(ctx context.Context) tracking.BackendKind {
	return s.resolve(ctx).Kind()
}

func (s *SinkService) tags() (userID, sessionID string) {
	if s.identity == nil {
		return tracking.AnonymousUser, ""
	}
	return s.identity.GetOrCreateUserID(), s.identity.GetOrCreateSessionID()
}

// write runs remoteFn when the remote store is selected and localFn when it is
// not or when remoteFn fails.
func (s *SinkService) write(ctx context.Context, op, id string, remoteFn func(tracking.RemoteStore) error, localFn func(*local.EventStore) error) tracking.Result {
	start := time.Now()

	if rb, ok := s.resolve(ctx).(RemoteBackend); ok {
		err := remoteFn(rb.Store)
		s.logger.LogSlowOperation(op, string(tracking.BackendRemote), time.Since(start), s.slowThreshold)
		if err == nil {
			metrics.SinkOperations.WithLabelValues(op, string(tracking.BackendRemote), "success").Inc()
			s.logger.Sink().Debug("Write served by remote store", "operation", op, "id", id, "duration", time.Since(start))
			return tracking.Succeeded(tracking.BackendRemote, id)
		}
		metrics.SinkOperations.WithLabelValues(op, string(tracking.BackendRemote), "failure").Inc()
		metrics.SinkFallbacks.WithLabelValues(op).Inc()
		s.logger.Sink().Warn("Remote write failed, falling back to local store", "operation", op, "error", err.Error())
	}

	if err := localFn(s.local); err != nil {
		metrics.SinkOperations.WithLabelValues(op, string(tracking.BackendLocal), "failure").Inc()
		s.logger.LogError(logging.ChannelSink, op, err, map[string]any{"backend": tracking.BackendLocal})
		return tracking.Failed(tracking.BackendLocal, err)
	}
	metrics.SinkOperations.WithLabelValues(op, string(tracking.BackendLocal), "success").Inc()
	s.logger.Sink().Debug("Write served by local store", "operation", op, "id", id, "duration", time.Since(start))
	return tracking.Succeeded(tracking.BackendLocal, id)
}

// touch refreshes lastActiveAt on the owning profile in the store that took
// the write. A profile the store does not hold is left absent. Failures are
// logged only.
func (s *SinkService) touch(ctx context.Context, result tracking.Result, userID string, at time.Time) {
	if !result.Success || userID == "" || userID == tracking.AnonymousUser || userID == tracking.FallbackUserID {
		return
	}
	var err error
	switch result.Backend {
	case tracking.BackendRemote:
		if _, err = s.remote.Get(ctx, tracking.CollectionUsers, userID); errors.Is(err, tracking.ErrNotFound) {
			return
		}
		if err == nil {
			var data []byte
			data, err = json.Marshal(map[string]any{"lastActiveAt": at})
			if err == nil {
				err = s.remote.Put(ctx, tracking.CollectionUsers, tracking.Document{ID: userID, Timestamp: at, Data: data})
			}
		}
	case tracking.BackendLocal:
		err = s.local.TouchProfile(userID, at)
	}
	if err != nil {
		s.logger.Sink().Warn("Failed to refresh lastActiveAt", "userId", logging.SanitizeUserID(userID), "backend", result.Backend, "error", err.Error())
	}
}

// TrackEvent records an analytics event tagged with the current identity.
func (s *SinkService) TrackEvent(ctx context.Context, eventType string, payload map[string]any) tracking.Result {
	userID, sessionID := s.tags()
	return s.RecordAnalytics(ctx, tracking.AnalyticsEvent{
		EventType: eventType,
		Payload:   payload,
		UserID:    userID,
		SessionID: sessionID,
	})
}

// RecordAnalytics persists a prepared analytics event. Missing id and
// timestamp are filled in.
func (s *SinkService) RecordAnalytics(ctx context.Context, event tracking.AnalyticsEvent) tracking.Result {
	if event.EventType == "" {
		return tracking.Failed("", errors.New("event type is required"))
	}
	if event.ID == "" {
		event.ID = security.NewEventID("event")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.UserID == "" {
		event.UserID = tracking.AnonymousUser
	}

	result := s.write(ctx, "track_event", event.ID,
		func(r tracking.RemoteStore) error {
			return putJSON(ctx, r, tracking.CollectionAnalytics, event.ID, event.Timestamp, event)
		},
		func(l *local.EventStore) error {
			return l.AppendEvent(local.LogAnalytics, event)
		})
	s.touch(ctx, result, event.UserID, event.Timestamp)
	return result
}

// SaveHugEvent persists a hug to the global hug log.
func (s *SinkService) SaveHugEvent(ctx context.Context, hug tracking.HugEvent) tracking.Result {
	if hug.ID == "" {
		hug.ID = security.NewEventID("hug")
	}
	if hug.Timestamp.IsZero() {
		hug.Timestamp = s.now()
	}

	result := s.write(ctx, "save_hug", hug.ID,
		func(r tracking.RemoteStore) error {
			return putJSON(ctx, r, tracking.CollectionHugs, hug.ID, hug.Timestamp, hug)
		},
		func(l *local.EventStore) error {
			return l.AppendEvent(local.LogHugs, hug)
		})
	s.touch(ctx, result, hug.UserID, hug.Timestamp)
	return result
}

// SaveProfile stamps LastActiveAt on profile and persists it under userID.
func (s *SinkService) SaveProfile(ctx context.Context, userID string, profile *tracking.UserProfile) tracking.Result {
	if profile == nil || userID == "" {
		return tracking.Failed("", errors.New("profile and user id are required"))
	}
	profile.LastActiveAt = s.now()
	snapshot := profile.Clone()

	return s.write(ctx, "save_profile", userID,
		func(r tracking.RemoteStore) error {
			return putJSON(ctx, r, tracking.CollectionUsers, userID, snapshot.LastActiveAt, snapshot)
		},
		func(l *local.EventStore) error {
			return l.PutProfile(userID, snapshot)
		})
}

// SaveSettings mirrors the settings view of a profile. Locally the settings
// already live inside the saved profile.
func (s *SinkService) SaveSettings(ctx context.Context, settings tracking.Settings) tracking.Result {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = s.now()
	}
	return s.write(ctx, "save_settings", settings.UserID,
		func(r tracking.RemoteStore) error {
			return putJSON(ctx, r, tracking.CollectionSettings, settings.UserID, settings.UpdatedAt, settings)
		},
		func(*local.EventStore) error { return nil })
}

// LoadProfile reads the profile of userID. A profile the remote store does not
// know is looked up locally, which covers profiles written while offline.
func (s *SinkService) LoadProfile(ctx context.Context, userID string) (*tracking.UserProfile, tracking.BackendKind, error) {
	if rb, ok := s.resolve(ctx).(RemoteBackend); ok {
		doc, err := rb.Store.Get(ctx, tracking.CollectionUsers, userID)
		switch {
		case err == nil:
			profile, decodeErr := local.DecodeProfile(doc.Data)
			if decodeErr == nil {
				return profile, tracking.BackendRemote, nil
			}
			metrics.SkippedRecords.WithLabelValues("remote").Inc()
			s.logger.Sink().Warn("Remote profile is malformed, trying local store", "userId", logging.SanitizeUserID(userID), "error", decodeErr.Error())
		case errors.Is(err, tracking.ErrNotFound):
		default:
			metrics.SinkFallbacks.WithLabelValues("load_profile").Inc()
			s.logger.Sink().Warn("Remote profile read failed, falling back to local store", "error", err.Error())
		}
	}

	profile, err := s.local.GetProfile(userID)
	return profile, tracking.BackendLocal, err
}

// ScanProfiles reads every profile from the active backend. Malformed records
// are skipped and counted.
func (s *SinkService) ScanProfiles(ctx context.Context) (tracking.ProfileScan, tracking.BackendKind, error) {
	start := time.Now()
	if rb, ok := s.resolve(ctx).(RemoteBackend); ok {
		docs, err := rb.Store.Query(ctx, tracking.CollectionUsers, tracking.Query{})
		if err == nil {
			var scan tracking.ProfileScan
			for _, doc := range docs {
				profile, decodeErr := local.DecodeProfile(doc.Data)
				if decodeErr != nil {
					s.logger.Sink().Warn("Skipping malformed remote profile", "id", doc.ID, "error", decodeErr.Error())
					scan.Skipped++
					continue
				}
				scan.Profiles = append(scan.Profiles, *profile)
			}
			if scan.Skipped > 0 {
				metrics.SkippedRecords.WithLabelValues("remote").Add(float64(scan.Skipped))
			}
			s.logger.LogSlowOperation("scan_profiles", string(tracking.BackendRemote), time.Since(start), s.slowThreshold)
			return scan, tracking.BackendRemote, nil
		}
		metrics.SinkFallbacks.WithLabelValues("scan_profiles").Inc()
		s.logger.Sink().Warn("Remote profile scan failed, falling back to local store", "error", err.Error())
	}

	scan, err := s.local.ScanAllProfiles()
	if err != nil {
		return tracking.ProfileScan{}, tracking.BackendLocal, err
	}
	return scan, tracking.BackendLocal, nil
}

// RecentEvents returns up to limit events of topic, newest first.
func (s *SinkService) RecentEvents(ctx context.Context, topic tracking.Topic, limit int) tracking.Feed {
	if rb, ok := s.resolve(ctx).(RemoteBackend); ok {
		docs, err := rb.Store.Query(ctx, topic.Collection(), tracking.Query{Limit: limit})
		if err == nil {
			return s.decodeFeed(topic, docs)
		}
		metrics.SinkFallbacks.WithLabelValues("recent_events").Inc()
		s.logger.Sink().Warn("Remote event query failed, falling back to local store", "topic", topic, "error", err.Error())
	}
	return s.localFeed(topic, limit)
}

// Subscribe delivers the most recent events of topic to fn. With the remote
// store the feed is live until unsubscribe is called. Without it, or once the
// remote subscription errors, fn receives a single local snapshot.
func (s *SinkService) Subscribe(ctx context.Context, topic tracking.Topic, fn func(tracking.Feed)) (unsubscribe func()) {
	var once sync.Once
	deliverLocal := func() {
		once.Do(func() { fn(s.localFeed(topic, tracking.SubscriptionWindow)) })
	}

	if rb, ok := s.resolve(ctx).(RemoteBackend); ok {
		cancel, err := rb.Store.Subscribe(ctx, topic.Collection(), tracking.Query{Limit: tracking.SubscriptionWindow},
			func(docs []tracking.Document) { fn(s.decodeFeed(topic, docs)) },
			func(err error) {
				metrics.SinkFallbacks.WithLabelValues("subscribe").Inc()
				s.logger.Sink().Warn("Remote subscription failed, delivering local snapshot", "topic", topic, "error", err.Error())
				deliverLocal()
			})
		if err == nil {
			s.logger.Sink().Debug("Remote subscription started", "topic", topic)
			return cancel
		}
		metrics.SinkFallbacks.WithLabelValues("subscribe").Inc()
		s.logger.Sink().Warn("Remote subscription unavailable, delivering local snapshot", "topic", topic, "error", err.Error())
	}

	deliverLocal()
	return func() {}
}

func (s *SinkService) localFeed(topic tracking.Topic, limit int) tracking.Feed {
	feed := tracking.Feed{Topic: topic, Backend: tracking.BackendLocal}
	if topic == tracking.TopicHugs {
		feed.Hugs = s.local.RecentHugs(limit)
	} else {
		feed.Analytics = s.local.RecentAnalytics(limit)
	}
	return feed
}

func (s *SinkService) decodeFeed(topic tracking.Topic, docs []tracking.Document) tracking.Feed {
	feed := tracking.Feed{Topic: topic, Backend: tracking.BackendRemote}
	skipped := 0
	for _, doc := range docs {
		var err error
		if topic == tracking.TopicHugs {
			var hug tracking.HugEvent
			if err = json.Unmarshal(doc.Data, &hug); err == nil {
				feed.Hugs = append(feed.Hugs, hug)
			}
		} else {
			var event tracking.AnalyticsEvent
			if err = json.Unmarshal(doc.Data, &event); err == nil {
				feed.Analytics = append(feed.Analytics, event)
			}
		}
		if err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("remote").Add(float64(skipped))
		s.logger.Sink().Warn("Skipped malformed remote events", "topic", topic, "count", skipped)
	}
	local.SortNewestFirst(feed.Hugs)
	local.SortNewestFirst(feed.Analytics)
	return feed
}

// ClearUser removes the stored profile of userID from both stores.
func (s *SinkService) ClearUser(ctx context.Context, userID string) tracking.Result {
	if s.remote != nil && s.remote.Available(ctx) {
		for _, c := range []tracking.Collection{tracking.CollectionUsers, tracking.CollectionSettings} {
			if err := s.remote.Delete(ctx, c, userID); err != nil {
				s.logger.Sink().Warn("Failed to delete remote user data", "collection", c, "error", err.Error())
			}
		}
	}
	if err := s.local.RemoveProfile(userID); err != nil {
		return tracking.Failed(tracking.BackendLocal, fmt.Errorf("failed to clear user data: %w", err))
	}
	s.logger.Sink().Info("User data cleared", "userId", logging.SanitizeUserID(userID))
	return tracking.Succeeded(tracking.BackendLocal, userID)
}

// ClearAnalytics removes the local analytics log.
func (s *SinkService) ClearAnalytics() tracking.Result {
	if err := s.local.ClearAnalytics(); err != nil {
		return tracking.Failed(tracking.BackendLocal, fmt.Errorf("failed to clear analytics: %w", err))
	}
	s.logger.Sink().Info("Local analytics cleared")
	return tracking.Succeeded(tracking.BackendLocal, "")
}

func putJSON(ctx context.Context, r tracking.RemoteStore, c tracking.Collection, id string, ts time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", c, err)
	}
	return r.Put(ctx, c, tracking.Document{ID: id, Timestamp: ts, Data: data})
}
