package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
)

const (
	// DefaultHistoryLimit is returned by HugHistory when no limit is given.
	DefaultHistoryLimit = 10

	recentActivityWindow = 7 * 24 * time.Hour
	recentActivityLimit  = 20
	exportVersion        = "2.0"
	noFavorite           = "None yet"
)

// HugReceipt is the outcome of RecordHug.
type HugReceipt struct {
	Success  bool                 `json:"success"`
	HugCount int                  `json:"hugCount"`
	HugID    string               `json:"hugId,omitempty"`
	Backend  tracking.BackendKind `json:"backend,omitempty"`
	Degraded bool                 `json:"degraded,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// UserStats is the display view of the current profile.
type UserStats struct {
	UserID           string         `json:"userId"`
	TotalHugs        int            `json:"totalHugs"`
	FavoriteCategory string         `json:"favoriteCategory"`
	SoundEnabled     bool           `json:"soundEnabled"`
	Theme            tracking.Theme `json:"theme"`
	SessionCount     int            `json:"sessionCount"`
	MemberSince      string         `json:"memberSince"`
	LastActive       string         `json:"lastActive"`
	Degraded         bool           `json:"degraded"`
}

// HugStats summarizes the hug history of the current profile.
type HugStats struct {
	Total          int                 `json:"total"`
	ByCategory     map[string]int      `json:"byCategory"`
	ByDay          map[string]int      `json:"byDay"`
	RecentActivity []tracking.HugEvent `json:"recentActivity"`
}

// UserExport is the downloadable copy of the current profile.
type UserExport struct {
	tracking.UserProfile
	ExportDate    time.Time `json:"exportDate"`
	ExportVersion string    `json:"exportVersion"`
	HugStats      HugStats  `json:"hugStats"`
	Summary       struct {
		TotalHugs        int       `json:"totalHugs"`
		FavoriteCategory string    `json:"favoriteCategory,omitempty"`
		MemberSince      time.Time `json:"memberSince"`
		Sessions         int       `json:"sessions"`
	} `json:"summary"`
}

// ProfileService owns the profile of the current identity. Every mutation is
// persisted through the sink; the in-memory copy stays authoritative for the
// rest of the process even when a save fails.
type ProfileService struct {
	identity      *IdentityService
	sink          *SinkService
	sessionMedium tracking.Medium
	keys          tracking.Keys
	beacon        *BeaconService
	logger        *logging.ChanneledLogger
	now           Clock

	mu             sync.Mutex
	profile        *tracking.UserProfile
	degraded       bool
	sessionStarted time.Time
}

// ProfileConfig holds the profile service collaborators. Beacon is optional.
type ProfileConfig struct {
	Identity      *IdentityService
	Sink          *SinkService
	SessionMedium tracking.Medium
	Keys          tracking.Keys
	Beacon        *BeaconService
	Logger        *logging.ChanneledLogger
	Now           Clock
}

// NewProfileService creates the profile service and registers its session
// start hook on the identity provider.
func NewProfileService(cfg ProfileConfig) *ProfileService {
	p := &ProfileService{
		identity:      cfg.Identity,
		sink:          cfg.Sink,
		sessionMedium: cfg.SessionMedium,
		keys:          cfg.Keys,
		beacon:        cfg.Beacon,
		logger:        cfg.Logger,
		now:           cfg.Now.orSystem(),
	}
	p.identity.OnSessionStart(p.handleSessionStart)
	return p
}

func (p *ProfileService) handleSessionStart(sessionID string) {
	now := p.now()
	p.mu.Lock()
	p.sessionStarted = now
	if p.profile != nil {
		p.profile.SessionCount++
	}
	p.mu.Unlock()

	p.startSessionTimer(now)
	result := p.sink.TrackEvent(context.Background(), "session_start", map[string]any{"sessionId": sessionID})
	if !result.Success {
		p.logger.Identity().Warn("Failed to record session start", "error", result.Error)
	}
}

// Init loads or creates the profile of the current identity and starts the
// session. Absent and malformed stored profiles are replaced by a fresh one.
// If the store cannot be read at all a placeholder profile is served.
func (p *ProfileService) Init(ctx context.Context) *tracking.UserProfile {
	start := time.Now()
	userID := p.identity.GetOrCreateUserID()

	profile, backend, err := p.sink.LoadProfile(ctx, userID)
	switch {
	case err == nil:
		if !profile.Theme.Valid() {
			profile.Theme = tracking.ThemeDefault
		}
		p.logger.Identity().Info("Profile loaded", "userId", logging.SanitizeUserID(userID), "backend", backend)
	case errors.Is(err, tracking.ErrNotFound), errors.Is(err, tracking.ErrMalformedRecord):
		profile = tracking.NewUserProfile(userID, p.now())
		p.logger.Identity().Info("Creating new profile", "userId", logging.SanitizeUserID(userID))
	default:
		p.logger.LogError(logging.ChannelIdentity, "init_profile", err, map[string]any{"backend": backend})
		placeholder := tracking.PlaceholderProfile(p.now())
		p.mu.Lock()
		p.profile = placeholder
		p.degraded = true
		p.sessionStarted = p.now()
		p.mu.Unlock()
		return placeholder.Clone()
	}

	p.mu.Lock()
	p.profile = profile
	p.degraded = false
	p.mu.Unlock()

	p.identity.GetOrCreateSessionID()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile.SessionCount < 1 {
		p.profile.SessionCount = 1
	}
	if p.sessionStarted.IsZero() {
		p.sessionStarted = p.now()
		p.startSessionTimer(p.sessionStarted)
	}
	if result := p.sink.SaveProfile(ctx, userID, p.profile); !result.Success {
		p.logger.Identity().Warn("Profile not saved during init", "error", result.Error)
	}
	p.logger.Identity().Debug("Profile initialized", "sessionCount", p.profile.SessionCount, "duration", time.Since(start))
	return p.profile.Clone()
}

// ensure initializes the profile on first use.
func (p *ProfileService) ensure(ctx context.Context) {
	p.mu.Lock()
	ready := p.profile != nil
	p.mu.Unlock()
	if !ready {
		p.Init(ctx)
	}
}

// Profile returns a copy of the current profile.
func (p *ProfileService) Profile(ctx context.Context) *tracking.UserProfile {
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile.Clone()
}

// Degraded reports whether the placeholder profile is being served.
func (p *ProfileService) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// RecordHug adds a hug of category to the profile and persists both the
// profile and the hug event.
func (p *ProfileService) RecordHug(ctx context.Context, category string, payload map[string]any) HugReceipt {
	if category == "" {
		return HugReceipt{Error: "category is required"}
	}
	p.ensure(ctx)
	sessionID := p.identity.GetOrCreateSessionID()

	p.mu.Lock()
	defer p.mu.Unlock()

	hug := tracking.HugEvent{
		ID:        security.NewEventID("hug"),
		Category:  category,
		Payload:   payload,
		Timestamp: p.now(),
		SessionID: sessionID,
		UserID:    p.profile.UserID,
	}
	p.profile.AddHug(hug)

	receipt := HugReceipt{HugCount: p.profile.TotalHugCount, HugID: hug.ID}
	if p.degraded {
		receipt.Success = true
		receipt.Degraded = true
		return receipt
	}

	saved := p.sink.SaveProfile(ctx, hug.UserID, p.profile)
	logged := p.sink.SaveHugEvent(ctx, hug)
	receipt.Success = saved.Success && logged.Success
	receipt.Backend = logged.Backend
	switch {
	case !saved.Success:
		receipt.Error = saved.Error
	case !logged.Success:
		receipt.Error = logged.Error
	}

	p.logger.Identity().Debug("Hug recorded",
		"category", category,
		"total", p.profile.TotalHugCount,
		"backend", receipt.Backend,
		"success", receipt.Success)
	return receipt
}

// ToggleSound flips the sound preference and returns the new value.
func (p *ProfileService) ToggleSound(ctx context.Context) (bool, tracking.Result) {
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.profile.SoundEnabled = !p.profile.SoundEnabled
	return p.profile.SoundEnabled, p.saveSettingsLocked(ctx)
}

// SetTheme changes the UI theme. Unknown themes are rejected.
func (p *ProfileService) SetTheme(ctx context.Context, theme tracking.Theme) tracking.Result {
	if !theme.Valid() {
		return tracking.Failed("", fmt.Errorf("%w: %q", tracking.ErrInvalidTheme, theme))
	}
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.profile.Theme = theme
	return p.saveSettingsLocked(ctx)
}

func (p *ProfileService) saveSettingsLocked(ctx context.Context) tracking.Result {
	if p.degraded {
		return tracking.Succeeded("", p.profile.UserID)
	}
	result := p.sink.SaveProfile(ctx, p.profile.UserID, p.profile)
	if mirror := p.sink.SaveSettings(ctx, tracking.SettingsOf(p.profile, p.now())); !mirror.Success {
		p.logger.Identity().Warn("Settings mirror not saved", "error", mirror.Error)
	}
	return result
}

// UserStats returns the display view of the profile.
func (p *ProfileService) UserStats(ctx context.Context) UserStats {
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	favorite := p.profile.FavoriteCategory
	if favorite == "" {
		favorite = noFavorite
	}
	return UserStats{
		UserID:           p.profile.UserID,
		TotalHugs:        p.profile.TotalHugCount,
		FavoriteCategory: favorite,
		SoundEnabled:     p.profile.SoundEnabled,
		Theme:            p.profile.Theme,
		SessionCount:     max(p.profile.SessionCount, 1),
		MemberSince:      p.profile.CreatedAt.Local().Format(dateLayout),
		LastActive:       p.profile.LastActiveAt.Local().Format(dateLayout),
		Degraded:         p.degraded,
	}
}

// HugHistory returns up to limit most recent hugs. A non-positive limit
// selects DefaultHistoryLimit.
func (p *ProfileService) HugHistory(ctx context.Context, limit int) []tracking.HugEvent {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.profile.History[:min(limit, len(p.profile.History))])
}

// HugStats breaks the history down by category and day.
func (p *ProfileService) HugStats(ctx context.Context) HugStats {
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hugStatsLocked()
}

func (p *ProfileService) hugStatsLocked() HugStats {
	stats := HugStats{
		Total:          p.profile.TotalHugCount,
		ByCategory:     make(map[string]int),
		ByDay:          make(map[string]int),
		RecentActivity: []tracking.HugEvent{},
	}
	cutoff := p.now().Add(-recentActivityWindow)
	for _, h := range p.profile.History {
		stats.ByCategory[h.Category]++
		stats.ByDay[h.Timestamp.Local().Format(dateLayout)]++
		if h.Timestamp.After(cutoff) && len(stats.RecentActivity) < recentActivityLimit {
			stats.RecentActivity = append(stats.RecentActivity, h)
		}
	}
	return stats
}

// Export returns the full profile with stats and a summary.
func (p *ProfileService) Export(ctx context.Context) UserExport {
	p.ensure(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	export := UserExport{
		UserProfile:   *p.profile.Clone(),
		ExportDate:    p.now(),
		ExportVersion: exportVersion,
		HugStats:      p.hugStatsLocked(),
	}
	export.Summary.TotalHugs = p.profile.TotalHugCount
	export.Summary.FavoriteCategory = p.profile.FavoriteCategory
	export.Summary.MemberSince = p.profile.CreatedAt
	export.Summary.Sessions = p.profile.SessionCount
	p.logger.Identity().Info("User data exported", "userId", logging.SanitizeUserID(p.profile.UserID))
	return export
}

// UpdateSessionTime adds the time elapsed since the session timer started to
// the profile and restarts the timer.
func (p *ProfileService) UpdateSessionTime(ctx context.Context) tracking.Result {
	p.ensure(ctx)
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	result := tracking.Succeeded("", p.profile.UserID)
	if started, ok := p.sessionTimer(); ok {
		if elapsed := now.Sub(started); elapsed > 0 {
			p.profile.TotalSessionTimeMs += elapsed.Milliseconds()
			if !p.degraded {
				result = p.sink.SaveProfile(ctx, p.profile.UserID, p.profile)
			}
		}
	}
	p.startSessionTimer(now)
	return result
}

func (p *ProfileService) sessionTimer() (time.Time, bool) {
	if p.sessionMedium == nil {
		return time.Time{}, false
	}
	raw, ok, err := p.sessionMedium.Get(p.keys.SessionStart())
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.logger.Identity().Warn("Session timer is malformed", "value", raw)
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func (p *ProfileService) startSessionTimer(at time.Time) {
	if p.sessionMedium == nil {
		return
	}
	if err := p.sessionMedium.Set(p.keys.SessionStart(), strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		p.logger.Identity().Warn("Session timer not persisted", "error", err.Error())
	}
}

// Clear removes every stored record of the current user, mints a new
// identity and initializes a fresh profile. It returns the new user id.
func (p *ProfileService) Clear(ctx context.Context) (string, tracking.Result) {
	p.mu.Lock()
	var oldID string
	if p.profile != nil {
		oldID = p.profile.UserID
	}
	p.mu.Unlock()
	if oldID == "" {
		oldID = p.identity.GetOrCreateUserID()
	}

	result := p.sink.ClearUser(ctx, oldID)
	if err := p.identity.Reset(); err != nil {
		p.logger.Identity().Warn("Identity keys not fully removed", "error", err.Error())
	}
	if p.sessionMedium != nil {
		_ = p.sessionMedium.Remove(p.keys.SessionStart())
	}

	p.mu.Lock()
	p.profile = nil
	p.degraded = false
	p.sessionStarted = time.Time{}
	p.mu.Unlock()

	profile := p.Init(ctx)
	p.logger.Identity().Info("User data cleared and new user created", "userId", logging.SanitizeUserID(profile.UserID))
	if !result.Success {
		return profile.UserID, result
	}
	return profile.UserID, tracking.Succeeded(result.Backend, profile.UserID)
}

// Close records the final session time and dispatches the session-end beacon.
func (p *ProfileService) Close(ctx context.Context) tracking.SessionSummary {
	p.UpdateSessionTime(ctx)
	sessionID := p.identity.GetOrCreateSessionID()
	now := p.now()

	p.mu.Lock()
	summary := tracking.SessionSummary{
		SessionID:  sessionID,
		UserID:     p.profile.UserID,
		EndTime:    now,
		DurationMs: now.Sub(p.sessionStarted).Milliseconds(),
	}
	p.mu.Unlock()

	if p.beacon != nil {
		p.beacon.Dispatch(summary)
	}
	p.logger.Shutdown().Info("Session closed", "durationMs", summary.DurationMs)
	return summary
}
