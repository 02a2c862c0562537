package domain

// Participant is an athlete connected to the upstream provider.
type Participant struct {
	ID                int64
	DisplayName       string
	UpstreamAthleteID int64
	Connected         bool
}

// EffortAttempt is one timed traversal of a segment within a single
// activity. Attempts are kept in the order the upstream returns them
// (occurred_at ascending); that order is the ground truth for deciding which
// attempts are consecutive.
type EffortAttempt struct {
	ExternalID     int64
	OccurredAt     int64
	ElapsedSeconds int64
	// PRAchieved is true only when the upstream marks this attempt as the
	// athlete's absolute fastest-ever on the segment, not merely the fastest
	// within this activity.
	PRAchieved bool
}

// CandidateActivity is the transient upstream activity evaluated during one
// reconciliation attempt. It is never persisted directly; only the selected
// effort window survives as stored rows.
type CandidateActivity struct {
	ExternalID     int64
	ParticipantID  int64
	OccurredAt     int64
	DeviceName     string
	EffortAttempts []EffortAttempt // filtered to the week's target segment
}

// StoredActivity is the persisted winner for a (week, participant) pair.
// There is at most one per pair; every successful reconciliation destroys
// the prior row and its dependents before inserting fresh ones.
type StoredActivity struct {
	ID            string
	WeekID        int64
	ParticipantID int64
	ExternalID    int64
	OccurredAt    int64
	DeviceName    string
	LapCount      int // total matching attempts in the source activity
}

// StoredEffort is one selected attempt. EffortIndex is the 0-based position
// within the selected window; LapIndex is the position within the original
// matching-attempt sequence, used for "lap N of M" display.
type StoredEffort struct {
	ID             string
	ActivityID     string
	ExternalID     int64
	EffortIndex    int
	LapIndex       int
	ElapsedSeconds int64
	PRAchieved     bool
}

// Result is the materialized per-(week, participant) summary row. It is
// derived data: rank and points are recomputed from stored activities and
// efforts on every leaderboard read, so the row can be deleted and rebuilt
// at any time.
type Result struct {
	ID               string
	WeekID           int64
	ParticipantID    int64
	ActivityID       string
	TotalTimeSeconds int64
}
