package services

import (
	"sync"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
)

// IdentityService issues the stable anonymous user id (persistent medium) and
// the per-session id (session medium). If a medium cannot be written the id
// still holds for the lifetime of this instance but is not durable.
type IdentityService struct {
	persistent tracking.Medium
	session    tracking.Medium
	keys       tracking.Keys
	logger     *logging.ChanneledLogger
	now        Clock

	mu             sync.Mutex
	userID         string
	sessionID      string
	durable        bool
	onSessionStart []func(sessionID string)
}

// NewIdentityService creates the identity provider.
func NewIdentityService(persistent, session tracking.Medium, keys tracking.Keys, logger *logging.ChanneledLogger, now Clock) *IdentityService {
	return &IdentityService{
		persistent: persistent,
		session:    session,
		keys:       keys,
		logger:     logger,
		now:        now.orSystem(),
		durable:    true,
	}
}

// OnSessionStart registers fn to run once when a new session id is minted.
// Hooks run without the service lock held and may call back into it.
func (s *IdentityService) OnSessionStart(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSessionStart = append(s.onSessionStart, fn)
}

// GetOrCreateUserID returns the stored user id, minting and persisting one
// when absent.
func (s *IdentityService) GetOrCreateUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		s.userID, _ = s.readOrCreate(s.persistent, s.keys.UserID(), "user")
	}
	return s.userID
}

// GetOrCreateSessionID returns the current session id. Minting a new one
// runs the session start hooks exactly once.
func (s *IdentityService) GetOrCreateSessionID() string {
	s.mu.Lock()
	if s.sessionID != "" {
		id := s.sessionID
		s.mu.Unlock()
		return id
	}
	id, created := s.readOrCreate(s.session, s.keys.SessionID(), "session")
	s.sessionID = id
	hooks := append([]func(string){}, s.onSessionStart...)
	s.mu.Unlock()

	if created {
		s.logger.Identity().Info("Session started", "sessionId", logging.SanitizeSessionID(id))
		for _, hook := range hooks {
			hook(id)
		}
	}
	return id
}

// readOrCreate must be called with s.mu held.
func (s *IdentityService) readOrCreate(medium tracking.Medium, key, kind string) (string, bool) {
	if medium != nil {
		value, ok, err := medium.Get(key)
		if err != nil {
			s.logger.Identity().Warn("Identity medium unreadable", "key", key, "error", err.Error())
		} else if ok && value != "" {
			return value, false
		}
	}

	id := security.NewIdentifier(kind, s.now())
	if medium == nil {
		s.durable = false
		return id, true
	}
	if err := medium.Set(key, id); err != nil {
		s.durable = false
		s.logger.Identity().Warn("Identifier is not durable", "key", key, "error", err.Error())
	} else if kind == "user" {
		s.logger.Identity().Info("New user created", "userId", logging.SanitizeUserID(id))
	}
	return id, true
}

// Durable reports whether every identifier issued so far was persisted.
func (s *IdentityService) Durable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durable
}

// Reset forgets the user and session ids so the next call mints fresh ones.
func (s *IdentityService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.persistent != nil {
		if err := s.persistent.Remove(s.keys.UserID()); err != nil {
			firstErr = err
		}
	}
	if s.session != nil {
		if err := s.session.Remove(s.keys.SessionID()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.userID = ""
	s.sessionID = ""
	s.durable = true
	return firstErr
}
