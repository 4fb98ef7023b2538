// Package local provides the local event store: two capacity-bounded event
// logs and a keyed map of user profiles over a tracking.Medium.
//
// Every write computes the complete new value before handing it to the medium,
// so a failed write leaves previously stored state readable and unchanged.
package local

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/metrics"
	"github.com/goccy/go-json"
)

// LogKind selects one of the bounded event logs.
type LogKind string

const (
	LogHugs      LogKind = "hugs"
	LogAnalytics LogKind = "analytics"
)

// EventStore is the local fallback store.
type EventStore struct {
	medium tracking.Medium
	keys   tracking.Keys
	logger *logging.ChanneledLogger
	mu     sync.Mutex
}

// NewEventStore creates an event store over medium using the keys scheme.
func NewEventStore(medium tracking.Medium, keys tracking.Keys, logger *logging.ChanneledLogger) *EventStore {
	return &EventStore{medium: medium, keys: keys, logger: logger}
}

func (s *EventStore) logSpec(kind LogKind) (key string, limit int, err error) {
	switch kind {
	case LogHugs:
		return s.keys.Hugs(), tracking.MaxHugLog, nil
	case LogAnalytics:
		return s.keys.Analytics(), tracking.MaxAnalyticsLog, nil
	}
	return "", 0, fmt.Errorf("unknown log %q", kind)
}

// AppendEvent appends event to the log and drops the oldest entries beyond
// the log's capacity.
func (s *EventStore) AppendEvent(kind LogKind, event tracking.LogEntry) error {
	key, limit, err := s.logSpec(kind)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		metrics.LocalStoreErrors.WithLabelValues("append_encode").Inc()
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readRaw(key)
	entries = append(entries, json.RawMessage(encoded))
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if err := s.writeJSON(key, entries); err != nil {
		metrics.LocalStoreErrors.WithLabelValues("append").Inc()
		return fmt.Errorf("failed to append %s event: %w", kind, err)
	}
	return nil
}

// readRaw returns the stored log oldest first. A log that cannot be parsed as
// a whole is treated as empty.
func (s *EventStore) readRaw(key string) []json.RawMessage {
	value, ok, err := s.medium.Get(key)
	if err != nil {
		s.logger.Storage().Warn("Could not read event log", "key", key, "error", err.Error())
		return nil
	}
	if !ok || value == "" {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		s.logger.Storage().Warn("Event log is malformed, starting over", "key", key, "error", err.Error())
		metrics.SkippedRecords.WithLabelValues("local").Inc()
		return nil
	}
	return entries
}

func (s *EventStore) writeJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.medium.Set(key, string(data))
}

// HugLog returns the whole hug log newest first and the number of entries that
// could not be decoded.
func (s *EventStore) HugLog() ([]tracking.HugEvent, int) {
	return readLog[tracking.HugEvent](s, s.keys.Hugs())
}

// AnalyticsLog returns the whole analytics log newest first and the number of
// entries that could not be decoded.
func (s *EventStore) AnalyticsLog() ([]tracking.AnalyticsEvent, int) {
	return readLog[tracking.AnalyticsEvent](s, s.keys.Analytics())
}

// RecentAnalytics returns at most limit of the most recent analytics events.
func (s *EventStore) RecentAnalytics(limit int) []tracking.AnalyticsEvent {
	events, _ := s.AnalyticsLog()
	return head(events, limit)
}

// RecentHugs returns at most limit of the most recent hug events.
func (s *EventStore) RecentHugs(limit int) []tracking.HugEvent {
	events, _ := s.HugLog()
	return head(events, limit)
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func readLog[T tracking.LogEntry](s *EventStore, key string) ([]T, int) {
	s.mu.Lock()
	raw := s.readRaw(key)
	s.mu.Unlock()

	out := make([]T, 0, len(raw))
	skipped := 0
	// Walk newest first so equal timestamps keep most-recent-first order.
	for i := len(raw) - 1; i >= 0; i-- {
		var e T
		if err := json.Unmarshal(raw[i], &e); err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if skipped > 0 {
		s.logger.Storage().Warn("Skipped malformed log entries", "key", key, "skipped", skipped)
		metrics.SkippedRecords.WithLabelValues("local").Add(float64(skipped))
	}
	SortNewestFirst(out)
	return out, skipped
}

// SortNewestFirst orders entries by embedded timestamp, newest first. Storage
// arrival order is not trusted across backend switches.
func SortNewestFirst[T tracking.LogEntry](entries []T) {
	slices.SortStableFunc(entries, func(a, b T) int {
		return b.EntryTime().Compare(a.EntryTime())
	})
}

// GetProfile reads the profile of userID. It returns tracking.ErrNotFound when
// absent and tracking.ErrMalformedRecord when the stored value cannot be used.
func (s *EventStore) GetProfile(userID string) (*tracking.UserProfile, error) {
	key := s.keys.Profile(userID)
	value, ok, err := s.medium.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if !ok {
		return nil, tracking.ErrNotFound
	}
	profile, err := DecodeProfile([]byte(value))
	if err != nil {
		s.logger.Storage().Warn("Stored profile is malformed", "key", key, "error", err.Error())
		metrics.SkippedRecords.WithLabelValues("local").Inc()
		return nil, err
	}
	return profile, nil
}

// PutProfile writes profile under userID's key.
func (s *EventStore) PutProfile(userID string, profile *tracking.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putProfileLocked(userID, profile)
}

func (s *EventStore) putProfileLocked(userID string, profile *tracking.UserProfile) error {
	if profile == nil {
		return errors.New("nil profile")
	}
	start := time.Now()
	if err := s.writeJSON(s.keys.Profile(userID), profile); err != nil {
		metrics.LocalStoreErrors.WithLabelValues("put_profile").Inc()
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Storage().Debug("Profile saved locally", "userId", logging.SanitizeUserID(userID), "duration", time.Since(start))
	return nil
}

// TouchProfile sets lastActiveAt on a stored profile. Absent or malformed
// profiles are left alone.
func (s *EventStore) TouchProfile(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.GetProfile(userID)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) || errors.Is(err, tracking.ErrMalformedRecord) {
			return nil
		}
		return err
	}
	profile.LastActiveAt = at
	return s.putProfileLocked(userID, profile)
}

// RemoveProfile deletes the profile of userID.
func (s *EventStore) RemoveProfile(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.medium.Remove(s.keys.Profile(userID))
}

// ClearAnalytics removes the analytics log. Profiles are kept.
func (s *EventStore) ClearAnalytics() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.medium.Remove(s.keys.Analytics())
}

// ScanAllProfiles reads every persisted profile. Entries that fail to read or
// parse are logged, counted and skipped; they never abort the scan.
func (s *EventStore) ScanAllProfiles() (tracking.ProfileScan, error) {
	keys, err := s.medium.Keys()
	if err != nil {
		return tracking.ProfileScan{}, fmt.Errorf("failed to list local keys: %w", err)
	}

	var scan tracking.ProfileScan
	for _, key := range keys {
		if _, ok := s.keys.ProfileOwner(key); !ok {
			continue
		}
		value, found, err := s.medium.Get(key)
		if err != nil || !found {
			scan.Skipped++
			continue
		}
		profile, err := DecodeProfile([]byte(value))
		if err != nil {
			s.logger.Storage().Warn("Skipping malformed profile", "key", key, "error", err.Error())
			scan.Skipped++
			continue
		}
		scan.Profiles = append(scan.Profiles, *profile)
	}
	if scan.Skipped > 0 {
		metrics.SkippedRecords.WithLabelValues("local").Add(float64(scan.Skipped))
	}
	return scan, nil
}

// DecodeProfile parses a stored profile. A record without a user id is malformed.
func DecodeProfile(data []byte) (*tracking.UserProfile, error) {
	var p tracking.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", tracking.ErrMalformedRecord, err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", tracking.ErrMalformedRecord)
	}
	if p.History == nil {
		p.History = []tracking.HugEvent{}
	}
	return &p, nil
}
