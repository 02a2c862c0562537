// Package postgres provides the Postgres-backed persistence for seasons,
// weeks, participants, reconciled results, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/league/internal/domain"
	"example.com/league/internal/events"
	"example.com/league/internal/matcher"
	"example.com/league/internal/scoring"
	"example.com/league/internal/upstream"
)

// Repository provides Postgres-backed persistence for the reconciliation
// engine and the participant credential store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListSeasons returns every season, newest start first.
func (r *Repository) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	const query = `SELECT season_id, name, start_at, end_at, is_active
        FROM seasons ORDER BY start_at DESC, season_id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seasons []domain.Season
	for rows.Next() {
		var s domain.Season
		if err := rows.Scan(&s.ID, &s.Name, &s.StartAt, &s.EndAt, &s.IsActive); err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

// GetSeason retrieves a season by id, returning nil when absent.
func (r *Repository) GetSeason(ctx context.Context, seasonID int64) (*domain.Season, error) {
	const query = `SELECT season_id, name, start_at, end_at, is_active
        FROM seasons WHERE season_id=$1`

	var s domain.Season
	err := r.pool.QueryRow(ctx, query, seasonID).Scan(&s.ID, &s.Name, &s.StartAt, &s.EndAt, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetWeek retrieves a week by id, returning nil when absent.
func (r *Repository) GetWeek(ctx context.Context, weekID int64) (*domain.Week, error) {
	const query = `SELECT week_id, season_id, name, target_segment_id, required_repetitions, start_at, end_at
        FROM weeks WHERE week_id=$1`

	var w domain.Week
	err := r.pool.QueryRow(ctx, query, weekID).
		Scan(&w.ID, &w.SeasonID, &w.Name, &w.TargetSegmentID, &w.RequiredRepetitions, &w.StartAt, &w.EndAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWeeksForSeason returns a season's weeks ordered by start.
func (r *Repository) ListWeeksForSeason(ctx context.Context, seasonID int64) ([]domain.Week, error) {
	const query = `SELECT week_id, season_id, name, target_segment_id, required_repetitions, start_at, end_at
        FROM weeks WHERE season_id=$1 ORDER BY start_at, week_id`

	rows, err := r.pool.Query(ctx, query, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []domain.Week
	for rows.Next() {
		var w domain.Week
		if err := rows.Scan(&w.ID, &w.SeasonID, &w.Name, &w.TargetSegmentID, &w.RequiredRepetitions, &w.StartAt, &w.EndAt); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// ListConnectedParticipants returns participants with a live upstream
// connection, in stable id order.
func (r *Repository) ListConnectedParticipants(ctx context.Context) ([]domain.Participant, error) {
	const query = `SELECT participant_id, display_name, upstream_athlete_id, connected
        FROM participants WHERE connected ORDER BY participant_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.UpstreamAthleteID, &p.Connected); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// GetParticipantByAthlete resolves the participant owning an upstream athlete
// id, returning nil when unknown.
func (r *Repository) GetParticipantByAthlete(ctx context.Context, athleteID int64) (*domain.Participant, error) {
	const query = `SELECT participant_id, display_name, upstream_athlete_id, connected
        FROM participants WHERE upstream_athlete_id=$1`

	var p domain.Participant
	err := r.pool.QueryRow(ctx, query, athleteID).Scan(&p.ID, &p.DisplayName, &p.UpstreamAthleteID, &p.Connected)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReplaceResult atomically swaps the stored activity, efforts, and result row
// for a (week, participant) pair and records the outbox event, all inside a
// single transaction. Deleting the prior activity cascades to its efforts and
// result, so a crash between reconciliations can never leave mixed rows.
func (r *Repository) ReplaceResult(ctx context.Context, week domain.Week, participant domain.Participant, match *matcher.Match) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const deletePrior = `DELETE FROM stored_activities WHERE week_id=$1 AND participant_id=$2`
	if _, err = tx.Exec(ctx, deletePrior, week.ID, participant.ID); err != nil {
		return err
	}

	activityID := uuid.NewString()
	const insertActivity = `INSERT INTO stored_activities (activity_id, week_id, participant_id, external_id, occurred_at, device_name, lap_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = tx.Exec(ctx, insertActivity,
		activityID,
		week.ID,
		participant.ID,
		match.Activity.ExternalID,
		match.Activity.OccurredAt,
		match.Activity.DeviceName,
		match.Selection.LapCount,
	)
	if err != nil {
		return err
	}

	prAchieved := false
	const insertEffort = `INSERT INTO stored_efforts (effort_id, activity_id, external_id, effort_index, lap_index, elapsed_seconds, pr_achieved)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for i, attempt := range match.Selection.Attempts {
		if attempt.PRAchieved {
			prAchieved = true
		}
		_, err = tx.Exec(ctx, insertEffort,
			uuid.NewString(),
			activityID,
			attempt.ExternalID,
			i,
			match.Selection.LapIndices[i],
			attempt.ElapsedSeconds,
			attempt.PRAchieved,
		)
		if err != nil {
			return err
		}
	}

	resultID := uuid.NewString()
	const insertResult = `INSERT INTO results (result_id, week_id, participant_id, activity_id, total_time_seconds)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err = tx.Exec(ctx, insertResult, resultID, week.ID, participant.ID, activityID, match.Selection.TotalSeconds); err != nil {
		return err
	}

	err = r.insertOutbox(ctx, tx, activityID, "result.updated", events.ResultUpdated{
		ResultID:         resultID,
		WeekID:           week.ID,
		ParticipantID:    participant.ID,
		ActivityID:       activityID,
		ExternalID:       match.Activity.ExternalID,
		TotalTimeSeconds: match.Selection.TotalSeconds,
		EffortCount:      len(match.Selection.Attempts),
		PRAchieved:       prAchieved,
		OccurredAt:       match.Activity.OccurredAt,
	})
	if err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(payload)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"result",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// LeaderboardEntries aggregates each participant's stored efforts for the
// week. Totals are summed from the effort rows rather than read off the
// result row, so the leaderboard stays correct even if the materialized
// total ever drifts.
func (r *Repository) LeaderboardEntries(ctx context.Context, weekID int64) ([]scoring.Entry, error) {
	const query = `SELECT p.participant_id, p.display_name, SUM(e.elapsed_seconds), BOOL_OR(e.pr_achieved)
        FROM stored_activities a
        JOIN stored_efforts e ON e.activity_id = a.activity_id
        JOIN participants p ON p.participant_id = a.participant_id
        WHERE a.week_id=$1
        GROUP BY p.participant_id, p.display_name`

	rows, err := r.pool.Query(ctx, query, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []scoring.Entry
	for rows.Next() {
		var e scoring.Entry
		if err := rows.Scan(&e.ParticipantID, &e.DisplayName, &e.TotalTimeSeconds, &e.PRAchieved); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetCredentials loads a participant's upstream OAuth credentials, returning
// nil when the participant has none stored.
func (r *Repository) GetCredentials(ctx context.Context, participantID int64) (*upstream.Credentials, error) {
	const query = `SELECT access_token, refresh_token, token_expires_at
        FROM participants WHERE participant_id=$1 AND access_token <> ''`

	var c upstream.Credentials
	err := r.pool.QueryRow(ctx, query, participantID).Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredentials stores refreshed upstream OAuth credentials.
func (r *Repository) SaveCredentials(ctx context.Context, participantID int64, c upstream.Credentials) error {
	const stmt = `UPDATE participants
        SET access_token=$2, refresh_token=$3, token_expires_at=$4
        WHERE participant_id=$1`

	tag, err := r.pool.Exec(ctx, stmt, participantID, c.AccessToken, c.RefreshToken, c.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %d not found", participantID)
	}
	return nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(payload interface{}) string
}

var eventCatalog = map[string]EventMetadata{
	"result.updated": {
		Topic:         "result_events",
		SchemaSubject: "result_events-value",
		PartitionKeyFn: func(payload interface{}) string {
			e := payload.(events.ResultUpdated)
			return fmt.Sprintf("%d:%d", e.WeekID, e.ParticipantID)
		},
	},
}
