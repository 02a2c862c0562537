package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestWithinInclusiveBounds(t *testing.T) {
	start := int64(1_700_000_000)
	end := start + 79_200 // 22h window

	require.False(t, Within(start-1, start, &end))
	require.True(t, Within(start, start, &end))
	require.True(t, Within(end, start, &end))
	require.False(t, Within(end+1, start, &end))
}

func TestWithinOpenEnded(t *testing.T) {
	require.True(t, Within(9_999_999_999, 0, nil))
	require.False(t, Within(-1, 0, nil))
}

func TestSeasonsContainingOrdersOverlaps(t *testing.T) {
	day := int64(86_400)
	now := int64(1_700_000_000)
	fall := Season{ID: 1, Name: "Fall", StartAt: now - 60*day, EndAt: ptr(now + 30*day), IsActive: true}
	winter := Season{ID: 2, Name: "Winter", StartAt: now - 10*day, EndAt: ptr(now + 80*day), IsActive: true}
	spring := Season{ID: 3, Name: "Spring", StartAt: now + 40*day, EndAt: nil, IsActive: true}

	got := SeasonsContaining([]Season{fall, spring, winter}, now)
	require.Len(t, got, 2)
	require.Equal(t, "Winter", got[0].Name)
	require.Equal(t, "Fall", got[1].Name)
}

func TestSeasonsContainingTiesBreakOnID(t *testing.T) {
	a := Season{ID: 7, StartAt: 100, IsActive: true}
	b := Season{ID: 9, StartAt: 100, IsActive: true}

	got := SeasonsContaining([]Season{a, b}, 150)
	require.Equal(t, int64(9), got[0].ID)
	require.Equal(t, int64(7), got[1].ID)
}

func TestSeasonsContainingEmpty(t *testing.T) {
	s := Season{ID: 1, StartAt: 100, EndAt: ptr(int64(200)), IsActive: true}
	require.Empty(t, SeasonsContaining([]Season{s}, 201))
}

func TestSeasonStateDeactivated(t *testing.T) {
	s := Season{ID: 1, StartAt: 0, IsActive: false}
	state := SeasonState(s, 100)
	require.True(t, state.Closed)
	require.Equal(t, "season deactivated", state.Reason)
}

func TestSeasonStateEndedByTime(t *testing.T) {
	s := Season{ID: 1, StartAt: 0, EndAt: ptr(int64(50)), IsActive: true}
	state := SeasonState(s, 51)
	require.True(t, state.Closed)
	require.Equal(t, "season ended", state.Reason)

	// inclusive end: still open at the boundary
	require.False(t, SeasonState(s, 50).Closed)
}

func TestSeasonStateOpenEndedNeverClosesByTime(t *testing.T) {
	s := Season{ID: 1, StartAt: 0, EndAt: nil, IsActive: true}
	require.False(t, SeasonState(s, 1<<40).Closed)
}

func TestSeasonStateNotStarted(t *testing.T) {
	s := Season{ID: 1, StartAt: 100, IsActive: true}
	state := SeasonState(s, 99)
	require.False(t, state.Closed)
	require.True(t, state.NotStarted)
}
