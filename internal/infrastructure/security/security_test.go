package security

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var identifierPattern = regexp.MustCompile(`^user_\d+_[0-9a-z]{9}$`)

func TestNewIdentifierFormat(t *testing.T) {
	now := time.UnixMilli(1714816800123)
	id := NewIdentifier("user", now)

	assert.Regexp(t, identifierPattern, id)
	assert.True(t, strings.HasPrefix(id, "user_1714816800123_"))
	assert.NotEqual(t, id, NewIdentifier("user", now), "random suffix differs per call")
}

func TestNewEventIDCarriesPrefix(t *testing.T) {
	id := NewEventID("hug")
	require.True(t, strings.HasPrefix(id, "hug_"))
	assert.Len(t, strings.TrimPrefix(id, "hug_"), 26)
}

func TestGenerateSecureKey(t *testing.T) {
	key, err := GenerateSecureKey(32)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.Regexp(t, `^[0-9a-f]+$`, key)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateAdminToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["role"])

	_, err = ValidateAdminToken(token, "other-secret")
	assert.Error(t, err)

	_, err = ValidateAdminToken(token, "")
	assert.ErrorIs(t, err, ErrAdminDisabled)
}

func TestAdminTokenExpired(t *testing.T) {
	token, err := GenerateAdminToken("secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateAdminToken(token, "secret")
	assert.Error(t, err)
}

func TestCheckAdminPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, CheckAdminPassword(string(hash), "hunter2"))
	assert.Error(t, CheckAdminPassword(string(hash), "wrong"))
	assert.ErrorIs(t, CheckAdminPassword("", "hunter2"), ErrAdminDisabled)
}
