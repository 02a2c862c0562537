// Package domain defines the competition entities and the pure time-domain
// logic shared by the reconciliation pipeline.
package domain

import "sort"

// Season is a top-level competition period. Seasons may overlap in time and
// are read-only to the reconciliation engine.
type Season struct {
	ID       int64
	Name     string
	StartAt  int64  // epoch seconds, UTC
	EndAt    *int64 // nil means open-ended
	IsActive bool
}

// Week is one scored competition instance inside a season. It defines the
// matching target: a segment and a required repetition count.
type Week struct {
	ID                  int64
	SeasonID            int64
	Name                string
	TargetSegmentID     int64
	RequiredRepetitions int
	StartAt             int64
	EndAt               int64
}

// Within reports whether ts falls inside [start, end], inclusive on both
// ends. A nil end means the interval never closes. All values are epoch
// seconds; no timezone conversion happens here.
func Within(ts, start int64, end *int64) bool {
	if ts < start {
		return false
	}
	if end != nil && ts > *end {
		return false
	}
	return true
}

// SeasonsContaining returns every season whose interval contains ts, ordered
// by start_at descending then id descending. The ordering is a public
// contract: every consumer that displays "the" active season treats the
// first entry as primary.
func SeasonsContaining(seasons []Season, ts int64) []Season {
	matched := make([]Season, 0, len(seasons))
	for _, s := range seasons {
		if Within(ts, s.StartAt, s.EndAt) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartAt != matched[j].StartAt {
			return matched[i].StartAt > matched[j].StartAt
		}
		return matched[i].ID > matched[j].ID
	})
	return matched
}

// SeasonStatus reports whether a season currently accepts results.
type SeasonStatus struct {
	Closed     bool
	NotStarted bool
	Reason     string
}

// SeasonState evaluates a season against the supplied instant. A season
// without an end date is never closed by time, only by manual deactivation.
func SeasonState(s Season, now int64) SeasonStatus {
	if !s.IsActive {
		return SeasonStatus{Closed: true, Reason: "season deactivated"}
	}
	if s.EndAt != nil && now > *s.EndAt {
		return SeasonStatus{Closed: true, Reason: "season ended"}
	}
	if now < s.StartAt {
		return SeasonStatus{NotStarted: true, Reason: "season not started"}
	}
	return SeasonStatus{}
}
