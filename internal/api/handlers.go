// Package api exposes HTTP handlers for the league service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/league/internal/auth"
	"example.com/league/internal/matcher"
	"example.com/league/internal/reconcile"
)

// Handler coordinates HTTP requests with the reconciliation engine.
type Handler struct {
	service        *reconcile.Service
	verifyToken    string
	webhookTimeout time.Duration
	logger         *log.Logger
	now            func() int64
}

// NewHandler builds a Handler. verifyToken guards the upstream webhook
// subscription handshake; webhookTimeout bounds the background work spawned
// by a webhook delivery.
func NewHandler(service *reconcile.Service, verifyToken string, webhookTimeout time.Duration, logger *log.Logger) *Handler {
	if webhookTimeout <= 0 {
		webhookTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handler{
		service:        service,
		verifyToken:    verifyToken,
		webhookTimeout: webhookTimeout,
		logger:         logger,
		now:            func() int64 { return time.Now().Unix() },
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/webhooks/upstream", h.webhook)
	mux.HandleFunc("/v1/weeks/", h.weekByID)
	mux.HandleFunc("/v1/seasons/active", h.activeSeasons)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.webhookChallenge(w, r)
	case http.MethodPost:
		h.webhookEvent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// webhookChallenge answers the upstream subscription handshake by echoing
// hub.challenge once the verify token matches.
func (h *Handler) webhookChallenge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != h.verifyToken {
		writeError(w, http.StatusForbidden, "forbidden", "verify token mismatch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": query.Get("hub.challenge")})
}

// WebhookEventRequest is the upstream push notification payload.
type WebhookEventRequest struct {
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	AspectType string `json:"aspect_type"`
	OwnerID    int64  `json:"owner_id"`
	EventTime  int64  `json:"event_time"`
}

// webhookEvent acknowledges the delivery immediately and reconciles in the
// background. The upstream disables subscriptions that respond slowly, so
// nothing here may wait on the engine.
func (h *Handler) webhookEvent(w http.ResponseWriter, r *http.Request) {
	var req WebhookEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.ObjectType != "activity" || req.OwnerID == 0 {
		// acknowledge and drop: athlete updates and malformed deliveries are
		// not reconciliation triggers
		w.WriteHeader(http.StatusOK)
		return
	}

	occurredAt := req.EventTime
	if occurredAt == 0 {
		occurredAt = h.now()
	}

	go func() {
		// detached from the request context: the 200 has already gone out
		ctx, cancel := context.WithTimeout(context.Background(), h.webhookTimeout)
		defer cancel()

		outcomes, err := h.service.ReconcileWebhookEvent(ctx, req.OwnerID, occurredAt)
		if err != nil {
			if errors.Is(err, reconcile.ErrParticipantNotFound) {
				h.logger.Printf("webhook: athlete %d is not a registered participant", req.OwnerID)
				return
			}
			h.logger.Printf("webhook reconcile failed (athlete=%d, activity=%d): %v", req.OwnerID, req.ObjectID, err)
			return
		}
		for _, outcome := range outcomes {
			h.logger.Printf("webhook reconcile week=%d athlete=%d: %s", outcome.WeekID, req.OwnerID, outcome.Outcome)
		}
	}()

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) weekByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/weeks/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing week id")
		return
	}

	weekID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "week id must be numeric")
		return
	}

	switch {
	case parts[1] == "reconcile" && r.Method == http.MethodPost:
		h.reconcileWeek(w, r, weekID)
	case parts[1] == "leaderboard" && r.Method == http.MethodGet:
		h.leaderboard(w, r, weekID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) reconcileWeek(w http.ResponseWriter, r *http.Request, weekID int64) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReconcileWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reconcile:write required")
		return
	}

	summary, err := h.service.ReconcileWeek(r.Context(), weekID)
	if err != nil {
		if errors.Is(err, reconcile.ErrWeekNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "week not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toBatchView(summary))
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, weekID int64) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeLeaderboardRead) && !claims.HasScope(auth.ScopeReconcileWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope leaderboard:read required")
		return
	}

	standings, err := h.service.WeekLeaderboard(r.Context(), weekID)
	if err != nil {
		if errors.Is(err, reconcile.ErrWeekNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "week not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]StandingView, 0, len(standings))
	for _, s := range standings {
		items = append(items, StandingView{
			Rank:             s.Rank,
			ParticipantID:    s.ParticipantID,
			DisplayName:      s.DisplayName,
			TotalTimeSeconds: s.TotalTimeSeconds,
			BasePoints:       s.BasePoints,
			PRBonusPoints:    s.PRBonusPoints,
			TotalPoints:      s.TotalPoints,
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{WeekID: weekID, Standings: items})
}

func (h *Handler) activeSeasons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeLeaderboardRead) && !claims.HasScope(auth.ScopeReconcileWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope leaderboard:read required")
		return
	}

	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "at must be epoch seconds")
			return
		}
		at = parsed
	}

	seasons, err := h.service.ActiveSeasons(r.Context(), at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SeasonView, 0, len(seasons))
	for _, s := range seasons {
		items = append(items, SeasonView{
			SeasonID: s.ID,
			Name:     s.Name,
			StartAt:  s.StartAt,
			EndAt:    s.EndAt,
			IsActive: s.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, ActiveSeasonsResponse{At: at, Seasons: items})
}

// StandingView is one scored leaderboard row.
type StandingView struct {
	Rank             int    `json:"rank"`
	ParticipantID    int64  `json:"participant_id"`
	DisplayName      string `json:"display_name"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	BasePoints       int    `json:"base_points"`
	PRBonusPoints    int    `json:"pr_bonus_points"`
	TotalPoints      int    `json:"total_points"`
}

// LeaderboardResponse packages the standings for a week.
type LeaderboardResponse struct {
	WeekID    int64          `json:"week_id"`
	Standings []StandingView `json:"standings"`
}

// SeasonView exposes season metadata.
type SeasonView struct {
	SeasonID int64  `json:"season_id"`
	Name     string `json:"name"`
	StartAt  int64  `json:"start_at"`
	EndAt    *int64 `json:"end_at,omitempty"`
	IsActive bool   `json:"is_active"`
}

// ActiveSeasonsResponse lists seasons containing the queried instant.
type ActiveSeasonsResponse struct {
	At      int64        `json:"at"`
	Seasons []SeasonView `json:"seasons"`
}

// RejectionView explains why one candidate activity failed to qualify.
type RejectionView struct {
	ActivityID int64  `json:"activity_id"`
	Reason     string `json:"reason"`
}

// ParticipantView is one row of a batch reconciliation report.
type ParticipantView struct {
	ParticipantID int64           `json:"participant_id"`
	DisplayName   string          `json:"display_name"`
	Outcome       string          `json:"outcome"`
	Error         string          `json:"error,omitempty"`
	Rejections    []RejectionView `json:"rejections,omitempty"`
}

// BatchView is the response body for a synchronous week reconciliation.
type BatchView struct {
	WeekID                int64             `json:"week_id"`
	Outcome               string            `json:"outcome"`
	SeasonReason          string            `json:"season_reason,omitempty"`
	ParticipantsProcessed int               `json:"participants_processed"`
	ResultsFound          int               `json:"results_found"`
	Participants          []ParticipantView `json:"participants"`
}

func toBatchView(summary *reconcile.BatchSummary) BatchView {
	view := BatchView{
		WeekID:                summary.WeekID,
		Outcome:               summary.Outcome,
		SeasonReason:          summary.SeasonReason,
		ParticipantsProcessed: summary.ParticipantsProcessed,
		ResultsFound:          summary.ResultsFound,
		Participants:          make([]ParticipantView, 0, len(summary.Participants)),
	}
	for _, p := range summary.Participants {
		view.Participants = append(view.Participants, ParticipantView{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			Outcome:       p.Outcome,
			Error:         p.Error,
			Rejections:    toRejectionViews(p.Rejections),
		})
	}
	return view
}

func toRejectionViews(candidates []matcher.Candidate) []RejectionView {
	var out []RejectionView
	for _, c := range candidates {
		if c.Rejection == "" {
			continue
		}
		out = append(out, RejectionView{ActivityID: c.ActivityID, Reason: c.Rejection})
	}
	return out
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
