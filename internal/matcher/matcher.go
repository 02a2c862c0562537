// Package matcher finds the single best qualifying activity for a
// (participant, week) pair.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"example.com/league/internal/domain"
	"example.com/league/internal/selector"
	"example.com/league/internal/upstream"
)

// Rejection reasons produced at the matching layer; the selector contributes
// its own reasons for windows that cannot qualify.
const (
	RejectionOutsideWindow = "outside time window"
	RejectionBadTimestamp  = "activity timestamp is not UTC"
	RejectionFetchFailed   = "fetch failed"
)

// Candidate records the fate of one upstream activity during a scan. An
// empty Rejection means the activity produced a qualifying window.
type Candidate struct {
	ActivityID int64
	Rejection  string
}

// Match is the winning activity and its selected effort window.
type Match struct {
	Activity  domain.CandidateActivity
	Selection selector.Selection
}

// Matcher scans a participant's upstream activities for the fastest
// qualifying effort window in a week.
type Matcher struct {
	provider upstream.Provider
	tokens   upstream.TokenProvider
	retrier  *upstream.Retrier
	logger   *log.Logger
}

// New constructs a Matcher.
func New(provider upstream.Provider, tokens upstream.TokenProvider, retrier *upstream.Retrier, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[matcher] ", log.LstdFlags)
	}
	return &Matcher{provider: provider, tokens: tokens, retrier: retrier, logger: logger}
}

// BestForWeek returns the minimum-total-time qualifying match across the
// participant's candidate activities, or nil when nothing qualifies. Every
// candidate's rejection reason is reported for observability. A later
// activity replaces the current best only on strict improvement, so a slower
// activity never overrides an equally fast earlier one.
//
// A week end of zero disables the upper bound: all activities from the start
// instant onward are considered.
func (m *Matcher) BestForWeek(ctx context.Context, participant domain.Participant, week domain.Week) (*Match, []Candidate, error) {
	token, err := m.tokens.GetValidToken(ctx, participant.ID, false)
	if err != nil {
		return nil, nil, err
	}

	summaries, err := m.listActivities(ctx, participant.ID, &token, week)
	if err != nil {
		return nil, nil, err
	}

	var weekEnd *int64
	if week.EndAt > 0 {
		end := week.EndAt
		weekEnd = &end
	}

	var best *Match
	candidates := make([]Candidate, 0, len(summaries))
	for _, summary := range summaries {
		if ctx.Err() != nil {
			return nil, candidates, ctx.Err()
		}

		occurred, perr := upstream.EpochFromUTC(summary.StartDate)
		if perr != nil {
			m.logger.Printf("participant %d activity %d: %v", participant.ID, summary.ID, perr)
			candidates = append(candidates, Candidate{ActivityID: summary.ID, Rejection: RejectionBadTimestamp})
			continue
		}
		if !domain.Within(occurred, week.StartAt, weekEnd) {
			candidates = append(candidates, Candidate{ActivityID: summary.ID, Rejection: RejectionOutsideWindow})
			continue
		}

		detail, ferr := m.fetchDetail(ctx, participant.ID, &token, summary.ID)
		if ferr != nil {
			if ctx.Err() != nil {
				return nil, candidates, ctx.Err()
			}
			if errors.Is(ferr, upstream.ErrUnauthorized) {
				// credentials are dead even after a forced refresh; no point
				// scanning further candidates
				return nil, candidates, ferr
			}
			candidates = append(candidates, Candidate{ActivityID: summary.ID, Rejection: fmt.Sprintf("%s: %v", RejectionFetchFailed, ferr)})
			continue
		}

		attempts, aerr := effortsForSegment(detail, week.TargetSegmentID)
		if aerr != nil {
			m.logger.Printf("participant %d activity %d: %v", participant.ID, summary.ID, aerr)
			candidates = append(candidates, Candidate{ActivityID: summary.ID, Rejection: RejectionBadTimestamp})
			continue
		}

		sel, reason := selector.BestWindow(attempts, week.RequiredRepetitions)
		if sel == nil {
			candidates = append(candidates, Candidate{ActivityID: summary.ID, Rejection: reason})
			continue
		}

		candidates = append(candidates, Candidate{ActivityID: summary.ID})
		if best == nil || sel.TotalSeconds < best.Selection.TotalSeconds {
			best = &Match{
				Activity: domain.CandidateActivity{
					ExternalID:     summary.ID,
					ParticipantID:  participant.ID,
					OccurredAt:     occurred,
					DeviceName:     detail.DeviceName,
					EffortAttempts: attempts,
				},
				Selection: *sel,
			}
		}
	}
	return best, candidates, nil
}

// listActivities lists the week window, refreshing the token once on an
// authorization failure.
func (m *Matcher) listActivities(ctx context.Context, participantID int64, token *string, week domain.Week) ([]upstream.ActivitySummary, error) {
	out, err := m.provider.ListActivities(ctx, *token, week.StartAt, week.EndAt)
	if errors.Is(err, upstream.ErrUnauthorized) {
		if rerr := m.refreshToken(ctx, participantID, token); rerr != nil {
			return nil, rerr
		}
		return m.provider.ListActivities(ctx, *token, week.StartAt, week.EndAt)
	}
	return out, err
}

// fetchDetail fetches through the effort retrier, refreshing the token once
// on an authorization failure.
func (m *Matcher) fetchDetail(ctx context.Context, participantID int64, token *string, activityID int64) (*upstream.ActivityDetail, error) {
	detail, err := m.retrier.FetchWithEffortRetry(ctx, *token, activityID)
	if errors.Is(err, upstream.ErrUnauthorized) {
		if rerr := m.refreshToken(ctx, participantID, token); rerr != nil {
			return nil, rerr
		}
		return m.retrier.FetchWithEffortRetry(ctx, *token, activityID)
	}
	return detail, err
}

func (m *Matcher) refreshToken(ctx context.Context, participantID int64, token *string) error {
	refreshed, err := m.tokens.GetValidToken(ctx, participantID, true)
	if err != nil {
		return err
	}
	*token = refreshed
	return nil
}

// effortsForSegment filters the detail's efforts to the target segment,
// preserving upstream order, and converts their timestamps strictly.
func effortsForSegment(detail *upstream.ActivityDetail, segmentID int64) ([]domain.EffortAttempt, error) {
	attempts := make([]domain.EffortAttempt, 0, len(detail.SegmentEfforts))
	for _, effort := range detail.SegmentEfforts {
		if effort.SegmentID != segmentID {
			continue
		}
		occurred, err := upstream.EpochFromUTC(effort.StartDate)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, domain.EffortAttempt{
			ExternalID:     effort.ID,
			OccurredAt:     occurred,
			ElapsedSeconds: effort.ElapsedSeconds,
			PRAchieved:     effort.PRRank != nil && *effort.PRRank == 1,
		})
	}
	return attempts, nil
}
