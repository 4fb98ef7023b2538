package tracking

import "strings"

// Keys derives every local storage key from one namespace prefix.
type Keys struct {
	Namespace string
}

// NewKeys returns the key scheme for namespace, defaulting to "app".
func NewKeys(namespace string) Keys {
	if namespace == "" {
		namespace = "app"
	}
	return Keys{Namespace: namespace}
}

func (k Keys) UserID() string       { return k.Namespace + "_user_id" }
func (k Keys) SessionID() string    { return k.Namespace + "_session_id" }
func (k Keys) SessionStart() string { return k.Namespace + "_session_start" }
func (k Keys) Analytics() string    { return k.Namespace + "_analytics_events" }
func (k Keys) Hugs() string         { return k.Namespace + "_hugs" }

// Profile is the key of the profile record for userID.
func (k Keys) Profile(userID string) string { return k.profilePrefix() + userID }

func (k Keys) profilePrefix() string { return k.Namespace + "_user_" }

// ProfileOwner returns the user id encoded in a profile key. The identity key
// shares the profile prefix and is never treated as a profile.
func (k Keys) ProfileOwner(key string) (string, bool) {
	if key == k.UserID() || !strings.HasPrefix(key, k.profilePrefix()) {
		return "", false
	}
	id := strings.TrimPrefix(key, k.profilePrefix())
	return id, id != ""
}
