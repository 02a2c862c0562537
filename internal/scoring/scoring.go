// Package scoring ranks a week's stored results into a pointed leaderboard.
package scoring

import "sort"

// Entry is one participant's persisted result for a week, read back from the
// stored activity and effort rows.
type Entry struct {
	ParticipantID    int64
	DisplayName      string
	TotalTimeSeconds int64
	PRAchieved       bool
}

// Standing is one scored leaderboard row.
type Standing struct {
	Rank             int
	ParticipantID    int64
	DisplayName      string
	TotalTimeSeconds int64
	BasePoints       int
	PRBonusPoints    int
	TotalPoints      int
}

// Rank orders entries fastest-first and assigns points: the fastest
// participant earns one point per participant in the week, the slowest earns
// 1 for qualifying, and a personal record adds 1. Ties on total time break
// by participant id so repeated runs produce identical output. The input
// slice is not modified.
func Rank(entries []Entry) []Standing {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalTimeSeconds != sorted[j].TotalTimeSeconds {
			return sorted[i].TotalTimeSeconds < sorted[j].TotalTimeSeconds
		}
		return sorted[i].ParticipantID < sorted[j].ParticipantID
	})

	total := len(sorted)
	standings := make([]Standing, 0, total)
	for i, e := range sorted {
		rank := i + 1
		base := total - rank + 1
		bonus := 0
		if e.PRAchieved {
			bonus = 1
		}
		standings = append(standings, Standing{
			Rank:             rank,
			ParticipantID:    e.ParticipantID,
			DisplayName:      e.DisplayName,
			TotalTimeSeconds: e.TotalTimeSeconds,
			BasePoints:       base,
			PRBonusPoints:    bonus,
			TotalPoints:      base + bonus,
		})
	}
	return standings
}
