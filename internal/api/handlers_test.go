package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/league/internal/auth"
	"example.com/league/internal/domain"
	"example.com/league/internal/matcher"
	"example.com/league/internal/reconcile"
	"example.com/league/internal/scoring"
	"example.com/league/internal/upstream"
)

type mockStore struct {
	seasons      []domain.Season
	weeks        map[int64]domain.Week
	participants []domain.Participant
	entries      map[int64][]scoring.Entry
	athleteSeen  chan int64
}

func (m *mockStore) ListSeasons(context.Context) ([]domain.Season, error) {
	return m.seasons, nil
}

func (m *mockStore) GetSeason(_ context.Context, id int64) (*domain.Season, error) {
	for _, s := range m.seasons {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetWeek(_ context.Context, id int64) (*domain.Week, error) {
	w, ok := m.weeks[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *mockStore) ListWeeksForSeason(_ context.Context, seasonID int64) ([]domain.Week, error) {
	var out []domain.Week
	for _, w := range m.weeks {
		if w.SeasonID == seasonID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) ListConnectedParticipants(context.Context) ([]domain.Participant, error) {
	return m.participants, nil
}

func (m *mockStore) GetParticipantByAthlete(_ context.Context, athleteID int64) (*domain.Participant, error) {
	if m.athleteSeen != nil {
		m.athleteSeen <- athleteID
	}
	for _, p := range m.participants {
		if p.UpstreamAthleteID == athleteID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ReplaceResult(context.Context, domain.Week, domain.Participant, *matcher.Match) error {
	return nil
}

func (m *mockStore) LeaderboardEntries(_ context.Context, weekID int64) ([]scoring.Entry, error) {
	return m.entries[weekID], nil
}

type emptyUpstream struct{}

func (emptyUpstream) ListActivities(context.Context, string, int64, int64) ([]upstream.ActivitySummary, error) {
	return nil, nil
}

func (emptyUpstream) GetActivityDetail(context.Context, string, int64) (*upstream.ActivityDetail, error) {
	return nil, nil
}

type noTokens struct{}

func (noTokens) GetValidToken(context.Context, int64, bool) (string, error) {
	return "tok", nil
}

func newTestHandler(store *mockStore) *Handler {
	logger := log.New(log.Writer(), "", 0)
	m := matcher.New(emptyUpstream{}, noTokens{}, upstream.NewRetrier(emptyUpstream{}, []time.Duration{time.Nanosecond}), logger)
	service := reconcile.NewService(store, m, 2, logger)
	return NewHandler(service, "verify-me", time.Second, logger)
}

func claimsWith(scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &auth.Claims{
		Subject:   "tester",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func defaultStore() *mockStore {
	return &mockStore{
		seasons: []domain.Season{{ID: 1, Name: "Spring", StartAt: 1772323200, IsActive: true}},
		weeks: map[int64]domain.Week{
			1: {ID: 1, SeasonID: 1, Name: "Week 1", TargetSegmentID: 5, RequiredRepetitions: 2, StartAt: 1772323200, EndAt: 1772402400},
		},
		participants: []domain.Participant{
			{ID: 1, DisplayName: "Avery", UpstreamAthleteID: 100, Connected: true},
		},
	}
}

func TestWebhookChallengeEchoes(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/upstream?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc123", nil)
	rr := httptest.NewRecorder()
	handler.webhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["hub.challenge"] != "abc123" {
		t.Fatalf("unexpected challenge echo %q", resp["hub.challenge"])
	}
}

func TestWebhookChallengeRejectsBadToken(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/upstream?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123", nil)
	rr := httptest.NewRecorder()
	handler.webhook(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestWebhookEventAcknowledgesAndReconcilesInBackground(t *testing.T) {
	store := defaultStore()
	store.athleteSeen = make(chan int64, 1)
	handler := newTestHandler(store)

	body := `{"object_type":"activity","object_id":555,"aspect_type":"create","owner_id":100,"event_time":1772330000}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/upstream", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.webhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	select {
	case athleteID := <-store.athleteSeen:
		if athleteID != 100 {
			t.Fatalf("expected athlete 100 got %d", athleteID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background reconciliation never started")
	}
}

func TestWebhookEventIgnoresNonActivityObjects(t *testing.T) {
	store := defaultStore()
	store.athleteSeen = make(chan int64, 1)
	handler := newTestHandler(store)

	body := `{"object_type":"athlete","object_id":100,"aspect_type":"update","owner_id":100}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/upstream", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.webhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	select {
	case <-store.athleteSeen:
		t.Fatal("athlete update should not trigger reconciliation")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconcileWeekRequiresWriteScope(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/weeks/1/reconcile", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeLeaderboardRead)))
	rr := httptest.NewRecorder()
	handler.weekByID(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestReconcileWeekUnknownWeekReturns404(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/weeks/99/reconcile", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeReconcileWrite)))
	rr := httptest.NewRecorder()
	handler.weekByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReconcileWeekReturnsSummary(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/weeks/1/reconcile", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeReconcileWrite)))
	rr := httptest.NewRecorder()
	handler.weekByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp BatchView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.WeekID != 1 {
		t.Fatalf("expected week 1 got %d", resp.WeekID)
	}
	if resp.ParticipantsProcessed != 1 {
		t.Fatalf("expected 1 participant processed got %d", resp.ParticipantsProcessed)
	}
	if len(resp.Participants) != 1 || resp.Participants[0].Outcome != reconcile.OutcomeNoMatch {
		t.Fatalf("unexpected participants %+v", resp.Participants)
	}
}

func TestLeaderboardReturnsRankedStandings(t *testing.T) {
	store := defaultStore()
	store.entries = map[int64][]scoring.Entry{
		1: {
			{ParticipantID: 1, DisplayName: "Avery", TotalTimeSeconds: 100},
			{ParticipantID: 2, DisplayName: "Blake", TotalTimeSeconds: 90, PRAchieved: true},
		},
	}
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/weeks/1/leaderboard", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeLeaderboardRead)))
	rr := httptest.NewRecorder()
	handler.weekByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LeaderboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Standings) != 2 {
		t.Fatalf("expected 2 standings got %d", len(resp.Standings))
	}
	if resp.Standings[0].ParticipantID != 2 || resp.Standings[0].Rank != 1 {
		t.Fatalf("unexpected leader %+v", resp.Standings[0])
	}
	if resp.Standings[0].PRBonusPoints != 1 || resp.Standings[0].TotalPoints != 3 {
		t.Fatalf("unexpected points %+v", resp.Standings[0])
	}
}

func TestLeaderboardRequiresScope(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/weeks/1/leaderboard", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith()))
	rr := httptest.NewRecorder()
	handler.weekByID(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestActiveSeasonsHonorsAtParameter(t *testing.T) {
	store := defaultStore()
	ended := int64(1772323100)
	store.seasons = append(store.seasons, domain.Season{ID: 2, Name: "Winter", StartAt: 1700000000, EndAt: &ended, IsActive: true})
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/seasons/active?at=1772330000", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeLeaderboardRead)))
	rr := httptest.NewRecorder()
	handler.activeSeasons(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ActiveSeasonsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.At != 1772330000 {
		t.Fatalf("expected at echoed got %d", resp.At)
	}
	if len(resp.Seasons) != 1 || resp.Seasons[0].SeasonID != 1 {
		t.Fatalf("unexpected seasons %+v", resp.Seasons)
	}
}

func TestActiveSeasonsRejectsBadAt(t *testing.T) {
	handler := newTestHandler(defaultStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/seasons/active?at=tomorrow", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claimsWith(auth.ScopeLeaderboardRead)))
	rr := httptest.NewRecorder()
	handler.activeSeasons(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}
