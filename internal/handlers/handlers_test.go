package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/services"
	"github.com/audiolog-app/audiolog-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// cannedAI returns fixed strings for every generative call.
type cannedAI struct{}

func (cannedAI) Transcribe(context.Context, string, string) (ai.Transcription, error) {
	return ai.Transcription{Transcript: "hello", Milestone: true, Summary: "short"}, nil
}
func (cannedAI) SuggestTitle(context.Context, string) (string, string, error) {
	return "Title", "Subtitle", nil
}
func (cannedAI) Recap(context.Context, string) (string, error)   { return "recap text", nil }
func (cannedAI) Insight(context.Context, string) (string, error) { return "insight text", nil }
func (cannedAI) Persona(context.Context, string) (string, error) { return "persona text", nil }

func newTestSession(t *testing.T) (*services.SessionService, string, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := services.NewSessionService(rdb)

	userID := uuid.New()
	token, err := sessions.Create(context.Background(), userID)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sessions, token, userID.String()
}

// stubUsers is a canned UserDirectory.
type stubUsers struct {
	id     uuid.UUID
	active bool
}

func (s *stubUsers) CreateAnonymous(context.Context) (uuid.UUID, error) { return s.id, nil }
func (s *stubUsers) Exists(context.Context, uuid.UUID) (bool, error)    { return s.active, nil }
func (s *stubUsers) Touch(context.Context, uuid.UUID) error             { return nil }

func TestAuthAnonymousSignin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := services.NewSessionService(rdb)
	userID := uuid.New()
	h := NewAuthHandler(&stubUsers{id: userID, active: true}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/anonymous", nil)
	rec := httptest.NewRecorder()
	h.AnonymousSignin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AuthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.UserID != userID.String() || resp.SessionToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	got, ok, _ := sessions.Validate(context.Background(), resp.SessionToken)
	if !ok || got != userID {
		t.Fatalf("issued token does not validate to %s", userID)
	}
}

func TestAuthMeSlidesSessionExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := services.NewSessionService(rdb)
	userID := uuid.New()
	token, _ := sessions.Create(context.Background(), userID)
	h := NewAuthHandler(&stubUsers{id: userID, active: true}, sessions)

	callMe := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.Me(rec, req)
		return rec
	}

	// Six days in, an active device checks in; two days later the session
	// must still be alive, though the original TTL would have lapsed.
	mr.FastForward(6 * 24 * time.Hour)
	if rec := callMe(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	mr.FastForward(2 * 24 * time.Hour)

	if _, ok, _ := sessions.Validate(context.Background(), token); !ok {
		t.Fatal("session expired despite recent activity")
	}
}

func TestAuthMeRejectsDeactivatedUser(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := services.NewSessionService(rdb)
	userID := uuid.New()
	token, _ := sessions.Create(context.Background(), userID)
	h := NewAuthHandler(&stubUsers{id: userID, active: false}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated identity, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer ", ""},
		{"Basic abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extractBearerToken(tc.header); got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestAIHandlerRequiresSession(t *testing.T) {
	sessions, _, _ := newTestSession(t)
	h := NewAIHandler(cannedAI{}, sessions)

	body := bytes.NewBufferString(`{"audio_base64":"QUJD"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", body)
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAIHandlerTranscribe(t *testing.T) {
	sessions, token, _ := newTestSession(t)
	h := NewAIHandler(cannedAI{}, sessions)

	body := bytes.NewBufferString(`{"audio_base64":"QUJD","mime_type":"audio/webm"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transcribeResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Transcript != "hello" || !resp.Milestone || resp.Summary != "short" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAIHandlerTranscribeRejectsEmptyAudio(t *testing.T) {
	sessions, token, _ := newTestSession(t)
	h := NewAIHandler(cannedAI{}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing audio, got %d", rec.Code)
	}
}

func TestAIHandlerTextRoutes(t *testing.T) {
	sessions, token, _ := newTestSession(t)
	h := NewAIHandler(cannedAI{}, sessions)

	cases := []struct {
		name    string
		handler http.HandlerFunc
		body    string
		want    string
	}{
		{"recap", h.Recap, `{"logs":"a b c"}`, "recap text"},
		{"insight", h.Insight, `{"transcript":"a"}`, "insight text"},
		{"persona", h.Persona, `{"logs":"a b c"}`, "persona text"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		tc.handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.name, rec.Code)
		}
		var resp textResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if !resp.Success || resp.Text != tc.want {
			t.Fatalf("%s: unexpected response %+v", tc.name, resp)
		}
	}
}

func newFeedRouter(t *testing.T) (*chi.Mux, *store.MemoryStore, string, string) {
	t.Helper()
	sessions, token, userID := newTestSession(t)
	s := store.NewMemoryStore()
	h := NewFeedHandler(s, sessions)

	r := chi.NewRouter()
	r.Get("/api/feed/logs", h.Logs)
	r.Get("/api/feed/logs/{logID}/comments", h.Comments)
	r.Get("/api/feed/settings", h.Settings)
	return r, s, token, userID
}

func TestFeedHandlerRequiresSession(t *testing.T) {
	r, _, _, _ := newFeedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/feed/logs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestFeedHandlerLogs(t *testing.T) {
	r, s, token, _ := newFeedRouter(t)
	s.AppendLog(context.Background(), models.Log{UserID: "u1", Transcript: "entry"})

	req := httptest.NewRequest(http.MethodGet, "/api/feed/logs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp logsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || len(resp.Logs) != 1 || resp.Logs[0].Transcript != "entry" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestFeedHandlerComments(t *testing.T) {
	r, s, token, _ := newFeedRouter(t)
	ctx := context.Background()
	logID, _ := s.AppendLog(ctx, models.Log{UserID: "u1"})
	s.AppendComment(ctx, models.Comment{LogID: logID, UserID: "u2", Text: "nice"})

	req := httptest.NewRequest(http.MethodGet, "/api/feed/logs/"+logID+"/comments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp commentsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || len(resp.Comments) != 1 || resp.Comments[0].Text != "nice" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestFeedHandlerSettingsDefaults(t *testing.T) {
	r, _, token, userID := newFeedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/feed/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp settingsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Settings == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Settings.UserID != userID || resp.Settings.Title != "My Journey" {
		t.Fatalf("expected defaults for fresh user, got %+v", resp.Settings)
	}
}
