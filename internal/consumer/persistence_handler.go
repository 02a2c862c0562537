package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/league/internal/events"
)

// PersistenceHandler writes consumed result events into Postgres for
// downstream auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event in the result_event_log table. Redelivered events
// are absorbed by the (result_id, event_type) uniqueness, so replays after a
// commit failure stay idempotent.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	var payload events.ResultUpdated
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", msg.EventType, err)
	}

	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO result_event_log (result_id, week_id, participant_id, event_type, total_time_seconds, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6)
         ON CONFLICT (result_id, event_type) DO NOTHING`,
		payload.ResultID,
		payload.WeekID,
		payload.ParticipantID,
		msg.EventType,
		payload.TotalTimeSeconds,
		payload.OccurredAt,
	)
	return err
}
