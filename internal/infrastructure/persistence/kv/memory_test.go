package kv

import (
	"testing"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMediumRoundTrip(t *testing.T) {
	m := NewMemoryMedium()

	_, ok, err := m.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("b", "2"))
	require.NoError(t, m.Set("a", "1"))
	require.NoError(t, m.Set("a", "one"))

	v, ok, err := m.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, m.Remove("a"))
	require.NoError(t, m.Remove("never-set"))
	assert.Equal(t, 1, m.Len())
}

func TestMemoryMediumQuotaKeepsOldValue(t *testing.T) {
	m := NewMemoryMediumWithQuota(10)
	require.NoError(t, m.Set("k", "12345"))

	err := m.Set("k", "123456789012")
	require.ErrorIs(t, err, tracking.ErrQuotaExceeded)

	v, ok, _ := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "12345", v, "failed write must leave the previous value")

	require.NoError(t, m.Remove("k"))
	require.NoError(t, m.Set("k", "123456789"), "removal frees quota")
}
