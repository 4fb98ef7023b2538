// Package security provides identifier generation and admin token utilities
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return ulid.Make().String()
}

// NewEventID returns a time+random derived event id such as "hug_01J...".
func NewEventID(prefix string) string {
	return prefix + "_" + GenerateULID()
}

// NewIdentifier returns "<kind>_<epochMillis>_<9 random base36 chars>".
func NewIdentifier(kind string, now time.Time) string {
	return kind + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + RandomBase36(9)
}

// RandomBase36 returns n random characters from [0-9a-z].
func RandomBase36(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to the clock.
		seed := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(seed >> (i % 8 * 8))
		}
	}
	for i, b := range buf {
		buf[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(buf)
}

// GenerateSecureKey creates a cryptographically secure random key and returns it as a hex string.
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
