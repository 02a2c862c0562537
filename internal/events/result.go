// Package events defines the payloads published on the result event topics.
package events

// ResultUpdated is emitted after a reconciliation replaces the stored result
// for a (week, participant) pair. Consumers treat it as a notification that
// the leaderboard for the week changed; the authoritative rows live in
// Postgres.
type ResultUpdated struct {
	ResultID         string `json:"result_id"`
	WeekID           int64  `json:"week_id"`
	ParticipantID    int64  `json:"participant_id"`
	ActivityID       string `json:"activity_id"`
	ExternalID       int64  `json:"external_id"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	EffortCount      int    `json:"effort_count"`
	PRAchieved       bool   `json:"pr_achieved"`
	OccurredAt       int64  `json:"occurred_at"`
}
