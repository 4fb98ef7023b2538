// Package tracking defines the entities, key scheme and store contracts for
// anonymous user tracking. Stores and services live in the infrastructure and
// application layers; this package holds no I/O.
package tracking

import (
	"slices"
	"time"
)

const (
	// MaxHistory bounds UserProfile.History. Oldest entries are evicted first.
	MaxHistory = 100
	// MaxAnalyticsLog bounds the local analytics log.
	MaxAnalyticsLog = 1000
	// MaxHugLog bounds the local global hug log used while the remote store is down.
	MaxHugLog = 1000
	// SubscriptionWindow is the number of most recent events a feed delivers.
	SubscriptionWindow = 50

	// DefaultCategory is reported as the popular category when no events exist.
	DefaultCategory = "emotional"

	FallbackUserID = "fallback_user"
	AnonymousUser  = "anonymous"
)

// Theme is the UI colour scheme saved with a profile.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeBlue    Theme = "blue"
	ThemeGreen   Theme = "green"
	ThemePurple  Theme = "purple"
	ThemeDark    Theme = "dark"
)

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeDefault, ThemeBlue, ThemeGreen, ThemePurple, ThemeDark:
		return true
	}
	return false
}

// HugEvent is a single recorded hug. Events are immutable once written.
type HugEvent struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
}

// EntryTime implements LogEntry.
func (e HugEvent) EntryTime() time.Time { return e.Timestamp }

// AnalyticsEvent is a generic tracking record: page views, errors, engagement.
type AnalyticsEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
}

// EntryTime implements LogEntry.
func (e AnalyticsEvent) EntryTime() time.Time { return e.Timestamp }

// LogEntry is anything that can be appended to a bounded event log.
type LogEntry interface {
	EntryTime() time.Time
}

// UserProfile is the persisted per-user record of cumulative activity.
type UserProfile struct {
	UserID             string     `json:"userId"`
	TotalHugCount      int        `json:"totalHugCount"`
	FavoriteCategory   string     `json:"favoriteCategory,omitempty"`
	SoundEnabled       bool       `json:"soundEnabled"`
	Theme              Theme      `json:"theme"`
	History            []HugEvent `json:"history"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastActiveAt       time.Time  `json:"lastActiveAt"`
	LastHugAt          *time.Time `json:"lastHugAt,omitempty"`
	SessionCount       int        `json:"sessionCount"`
	TotalSessionTimeMs int64      `json:"totalSessionTimeMs"`
}

// NewUserProfile returns a fresh profile. SessionCount starts at zero and is
// raised by the session start of the owning identity.
func NewUserProfile(userID string, now time.Time) *UserProfile {
	return &UserProfile{
		UserID:       userID,
		SoundEnabled: true,
		Theme:        ThemeDefault,
		History:      []HugEvent{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// PlaceholderProfile is served when identity bootstrap fails.
func PlaceholderProfile(now time.Time) *UserProfile {
	p := NewUserProfile(FallbackUserID, now)
	p.SessionCount = 1
	return p
}

// AddHug records e at the front of the history, evicts beyond MaxHistory and
// recomputes the favorite category.
func (p *UserProfile) AddHug(e HugEvent) {
	p.History = slices.Insert(p.History, 0, e)
	if len(p.History) > MaxHistory {
		p.History = p.History[:MaxHistory]
	}
	p.TotalHugCount++
	ts := e.Timestamp
	p.LastHugAt = &ts
	p.RecomputeFavorite()
}

// RecomputeFavorite derives FavoriteCategory from the history.
func (p *UserProfile) RecomputeFavorite() {
	var tally CategoryTally
	for _, h := range p.History {
		tally.Add(h.Category)
	}
	p.FavoriteCategory, _ = tally.Top()
}

// Clone returns a deep enough copy for callers that mutate history.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.History = slices.Clone(p.History)
	if p.LastHugAt != nil {
		ts := *p.LastHugAt
		c.LastHugAt = &ts
	}
	return &c
}

// Settings is the subset of a profile mirrored to the settings collection.
type Settings struct {
	UserID       string    `json:"userId"`
	SoundEnabled bool      `json:"soundEnabled"`
	Theme        Theme     `json:"theme"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SettingsOf extracts the settings view of p.
func SettingsOf(p *UserProfile, now time.Time) Settings {
	return Settings{UserID: p.UserID, SoundEnabled: p.SoundEnabled, Theme: p.Theme, UpdatedAt: now}
}

// SessionSummary is delivered by the unload beacon when a session ends.
type SessionSummary struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
}
