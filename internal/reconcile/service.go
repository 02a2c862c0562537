// Package reconcile orchestrates the push- and pull-triggered reconciliation
// pipelines and the leaderboard read path.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/league/internal/domain"
	"example.com/league/internal/matcher"
	"example.com/league/internal/observability"
	"example.com/league/internal/scoring"
)

var (
	// ErrWeekNotFound is returned when a week id cannot be located.
	ErrWeekNotFound = errors.New("week not found")
	// ErrParticipantNotFound is returned when a webhook references an
	// unknown upstream athlete.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Reconciliation outcomes reported to callers and counted in metrics.
const (
	OutcomeUpdated     = "result updated"
	OutcomeNoMatch     = "no qualifying activity found"
	OutcomeInFlight    = "reconciliation already in progress"
	OutcomeSeasonEnded = "season has ended"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
	OutcomeCompleted   = "completed"
)

// Store is the persistence surface the engine depends on.
type Store interface {
	ListSeasons(ctx context.Context) ([]domain.Season, error)
	GetSeason(ctx context.Context, seasonID int64) (*domain.Season, error)
	GetWeek(ctx context.Context, weekID int64) (*domain.Week, error)
	ListWeeksForSeason(ctx context.Context, seasonID int64) ([]domain.Week, error)
	ListConnectedParticipants(ctx context.Context) ([]domain.Participant, error)
	GetParticipantByAthlete(ctx context.Context, athleteID int64) (*domain.Participant, error)
	ReplaceResult(ctx context.Context, week domain.Week, participant domain.Participant, match *matcher.Match) error
	LeaderboardEntries(ctx context.Context, weekID int64) ([]scoring.Entry, error)
}

// Service is the engine facade invoked by the HTTP layer.
type Service struct {
	store      Store
	matcher    *matcher.Matcher
	gate       *inflightGate
	batchLimit int
	now        func() int64
	logger     *log.Logger
}

// NewService constructs a Service. batchLimit bounds how many participants
// reconcile concurrently during a batch run.
func NewService(store Store, m *matcher.Matcher, batchLimit int, logger *log.Logger) *Service {
	if batchLimit < 1 {
		batchLimit = 4
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[reconcile] ", log.LstdFlags)
	}
	return &Service{
		store:      store,
		matcher:    m,
		gate:       newInflightGate(),
		batchLimit: batchLimit,
		now:        func() int64 { return time.Now().Unix() },
		logger:     logger,
	}
}

// WeekOutcome is the result of reconciling one week on the webhook path.
type WeekOutcome struct {
	WeekID     int64
	WeekName   string
	SeasonID   int64
	Outcome    string
	Error      string
	Rejections []matcher.Candidate
}

// ReconcileWebhookEvent handles one upstream push notification. Every week
// of every season containing occurredAt is reconciled independently, since
// an activity may satisfy several overlapping season/week combinations.
// Weeks in closed seasons are skipped with the season-ended outcome.
func (s *Service) ReconcileWebhookEvent(ctx context.Context, athleteID, occurredAt int64) ([]WeekOutcome, error) {
	participant, err := s.store.GetParticipantByAthlete(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}

	seasons, err := s.store.ListSeasons(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var outcomes []WeekOutcome
	for _, season := range domain.SeasonsContaining(seasons, occurredAt) {
		state := domain.SeasonState(season, now)

		weeks, err := s.store.ListWeeksForSeason(ctx, season.ID)
		if err != nil {
			return outcomes, err
		}
		for _, week := range weeks {
			var end *int64
			if week.EndAt > 0 {
				e := week.EndAt
				end = &e
			}
			if !domain.Within(occurredAt, week.StartAt, end) {
				continue
			}
			outcome := WeekOutcome{WeekID: week.ID, WeekName: week.Name, SeasonID: season.ID}
			if state.Closed {
				outcome.Outcome = OutcomeSeasonEnded
				outcomes = append(outcomes, outcome)
				continue
			}

			result, rejections, rerr := s.reconcileOne(ctx, week, *participant)
			outcome.Outcome = result
			outcome.Rejections = rejections
			if rerr != nil {
				outcome.Outcome = OutcomeFailed
				outcome.Error = rerr.Error()
				s.logger.Printf("webhook reconcile week=%d participant=%d failed: %v", week.ID, participant.ID, rerr)
			}
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

// ParticipantSummary is one row of a batch run report.
type ParticipantSummary struct {
	ParticipantID int64
	DisplayName   string
	Outcome       string
	Error         string
	Rejections    []matcher.Candidate
}

// BatchSummary is the structured report of a batch reconciliation run. It
// lists every participant and outcome even when some of them failed.
type BatchSummary struct {
	WeekID                int64
	Outcome               string
	SeasonReason          string
	ParticipantsProcessed int
	ResultsFound          int
	Participants          []ParticipantSummary
}

// ReconcileWeek reconciles every connected participant for one week with
// bounded parallelism. A closed season fails fast before any upstream call.
// Cancelling ctx stops scheduling further participants; already-committed
// reconciliations stay committed.
func (s *Service) ReconcileWeek(ctx context.Context, weekID int64) (*BatchSummary, error) {
	week, err := s.store.GetWeek(ctx, weekID)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return nil, ErrWeekNotFound
	}

	season, err := s.store.GetSeason(ctx, week.SeasonID)
	if err != nil {
		return nil, err
	}
	if season == nil {
		return nil, ErrWeekNotFound
	}
	if state := domain.SeasonState(*season, s.now()); state.Closed {
		return &BatchSummary{WeekID: weekID, Outcome: OutcomeSeasonEnded, SeasonReason: state.Reason}, nil
	}

	participants, err := s.store.ListConnectedParticipants(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]ParticipantSummary, len(participants))
	group := new(errgroup.Group)
	group.SetLimit(s.batchLimit)

	for i, participant := range participants {
		if ctx.Err() != nil {
			summaries[i] = ParticipantSummary{
				ParticipantID: participant.ID,
				DisplayName:   participant.DisplayName,
				Outcome:       OutcomeCancelled,
			}
			continue
		}

		i, participant := i, participant
		group.Go(func() error {
			outcome, rejections, rerr := s.reconcileOne(ctx, *week, participant)
			summary := ParticipantSummary{
				ParticipantID: participant.ID,
				DisplayName:   participant.DisplayName,
				Outcome:       outcome,
				Rejections:    rejections,
			}
			// a participant's failure never aborts the rest of the batch
			if rerr != nil {
				summary.Outcome = OutcomeFailed
				summary.Error = rerr.Error()
				s.logger.Printf("batch reconcile week=%d participant=%d failed: %v", week.ID, participant.ID, rerr)
			}
			summaries[i] = summary
			return nil
		})
	}
	_ = group.Wait()

	out := &BatchSummary{WeekID: weekID, Outcome: OutcomeCompleted, Participants: summaries}
	for _, summary := range summaries {
		if summary.Outcome != OutcomeCancelled {
			out.ParticipantsProcessed++
		}
		if summary.Outcome == OutcomeUpdated {
			out.ResultsFound++
		}
	}
	return out, nil
}

// reconcileOne runs the matcher→reconciler pipeline for one key under the
// in-flight gate.
func (s *Service) reconcileOne(ctx context.Context, week domain.Week, participant domain.Participant) (string, []matcher.Candidate, error) {
	key := reconcileKey{weekID: week.ID, participantID: participant.ID}
	if !s.gate.tryAcquire(key) {
		observability.RecordReconciliation(OutcomeInFlight)
		return OutcomeInFlight, nil, nil
	}
	defer s.gate.release(key)

	match, rejections, err := s.matcher.BestForWeek(ctx, participant, week)
	if err != nil {
		observability.RecordReconciliation(OutcomeFailed)
		return "", rejections, err
	}
	if match == nil {
		// a prior stored result, if any, is left intact: absence of a match
		// is not evidence the old one became invalid
		observability.RecordReconciliation(OutcomeNoMatch)
		return OutcomeNoMatch, rejections, nil
	}

	if err := s.store.ReplaceResult(ctx, week, participant, match); err != nil {
		observability.RecordReconciliation(OutcomeFailed)
		return "", rejections, err
	}
	observability.RecordReconciliation(OutcomeUpdated)
	observability.RecordResultPersisted(time.Now().UTC())
	return OutcomeUpdated, rejections, nil
}

// WeekLeaderboard recomputes the scored standings for a week from the stored
// rows on every call.
func (s *Service) WeekLeaderboard(ctx context.Context, weekID int64) ([]scoring.Standing, error) {
	week, err := s.store.GetWeek(ctx, weekID)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return nil, ErrWeekNotFound
	}

	entries, err := s.store.LeaderboardEntries(ctx, weekID)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(entries), nil
}

// ActiveSeasons returns the seasons containing the given instant in the
// resolver's contractual order.
func (s *Service) ActiveSeasons(ctx context.Context, at int64) ([]domain.Season, error) {
	seasons, err := s.store.ListSeasons(ctx)
	if err != nil {
		return nil, err
	}
	return domain.SeasonsContaining(seasons, at), nil
}
