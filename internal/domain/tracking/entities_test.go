package tracking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hugAt(i int, category string, base time.Time) HugEvent {
	return HugEvent{
		ID:        fmt.Sprintf("hug_%04d", i),
		Category:  category,
		Timestamp: base.Add(time.Duration(i) * time.Second),
		UserID:    "user_1",
	}
}

func TestAddHugBoundsHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewUserProfile("user_1", base)

	for i := 0; i < 250; i++ {
		p.AddHug(hugAt(i, "emotional", base))
	}

	require.Len(t, p.History, MaxHistory)
	assert.Equal(t, "hug_0249", p.History[0].ID, "newest event first")
	assert.Equal(t, "hug_0150", p.History[MaxHistory-1].ID, "oldest retained event last")
	assert.Equal(t, 250, p.TotalHugCount)
	require.NotNil(t, p.LastHugAt)
	assert.True(t, p.LastHugAt.Equal(p.History[0].Timestamp))
}

func TestFavoriteCategoryScenario(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewUserProfile("user_1", base)
	assert.Equal(t, 0, p.TotalHugCount)
	assert.Empty(t, p.FavoriteCategory)

	i := 0
	for range 3 {
		p.AddHug(hugAt(i, "emotional", base))
		i++
	}
	p.AddHug(hugAt(i, "supportive", base))
	i++

	assert.Equal(t, 4, p.TotalHugCount)
	assert.Equal(t, "emotional", p.FavoriteCategory)

	for range 150 {
		p.AddHug(hugAt(i, "supportive", base))
		i++
	}
	assert.Len(t, p.History, 100)
	assert.Equal(t, "supportive", p.FavoriteCategory)
	assert.Equal(t, 154, p.TotalHugCount)
}

func TestCategoryTallyTieBreak(t *testing.T) {
	tests := []struct {
		name   string
		input  []string
		expect string
		ok     bool
	}{
		{name: "empty", input: nil, expect: "", ok: false},
		{name: "strict maximum", input: []string{"a", "b", "b", "c"}, expect: "b", ok: true},
		{name: "tie goes to first encountered", input: []string{"b", "a", "a", "b"}, expect: "b", ok: true},
		{name: "later category overtakes", input: []string{"a", "b", "b"}, expect: "b", ok: true},
		{name: "empty categories ignored", input: []string{"", "", "x"}, expect: "x", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tally CategoryTally
			for _, c := range tt.input {
				tally.Add(c)
			}
			got, ok := tally.Top()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestCategoryTallyCountsAreCopies(t *testing.T) {
	var tally CategoryTally
	tally.AddN("warm", 3)
	tally.AddN("ignored", 0)

	counts := tally.Counts()
	counts["warm"] = 99

	assert.Equal(t, map[string]int{"warm": 3}, tally.Counts())
	assert.Equal(t, []string{"warm"}, tally.Order())
}

func TestCloneIsIndependent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewUserProfile("user_1", base)
	p.AddHug(hugAt(0, "emotional", base))

	c := p.Clone()
	c.AddHug(hugAt(1, "playful", base))
	*c.LastHugAt = base.Add(time.Hour)

	assert.Len(t, p.History, 1)
	assert.Equal(t, 1, p.TotalHugCount)
	assert.True(t, p.LastHugAt.Equal(base))
}

func TestThemeValid(t *testing.T) {
	for _, theme := range []Theme{ThemeDefault, ThemeBlue, ThemeGreen, ThemePurple, ThemeDark} {
		assert.True(t, theme.Valid(), theme)
	}
	assert.False(t, Theme("neon").Valid())
	assert.False(t, Theme("").Valid())
}

func TestPlaceholderProfile(t *testing.T) {
	p := PlaceholderProfile(time.Now())
	assert.Equal(t, FallbackUserID, p.UserID)
	assert.Equal(t, 1, p.SessionCount)
	assert.True(t, p.SoundEnabled)
	assert.Equal(t, ThemeDefault, p.Theme)
}
