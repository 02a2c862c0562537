// Package upstream talks to the external activity provider and shields the
// engine from its eventual-consistency quirks.
package upstream

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the upstream rejected the supplied access token.
// Callers are expected to request one forced token refresh and retry the
// failed call once; it never enters the effort-retry backoff path.
var ErrUnauthorized = errors.New("upstream rejected credentials")

// ActivitySummary is one entry from the athlete activity listing.
type ActivitySummary struct {
	ID        int64
	Name      string
	StartDate string // RFC3339; the upstream promises an explicit UTC designator
}

// SegmentEffort is one timed traversal of a segment inside an activity.
type SegmentEffort struct {
	ID             int64
	SegmentID      int64
	StartDate      string
	ElapsedSeconds int64
	// PRRank is the upstream's all-time standing for this effort on the
	// segment; 1 means an absolute personal record. Nil when unranked.
	PRRank *int
}

// ActivityDetail is the full activity payload including per-segment efforts.
// The effort list may be empty while the upstream is still indexing.
type ActivityDetail struct {
	ID             int64
	AthleteID      int64
	Name           string
	StartDate      string
	DeviceName     string
	SegmentEfforts []SegmentEffort
}

// Provider lists a participant's activities and fetches per-activity detail.
type Provider interface {
	ListActivities(ctx context.Context, token string, startEpoch, endEpoch int64) ([]ActivitySummary, error)
	GetActivityDetail(ctx context.Context, token string, activityID int64) (*ActivityDetail, error)
}

// TokenProvider supplies a valid upstream access token for a participant.
// forceRefresh bypasses any cached token after an authorization failure.
type TokenProvider interface {
	GetValidToken(ctx context.Context, participantID int64, forceRefresh bool) (string, error)
}
