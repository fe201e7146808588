package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/services"
	"github.com/audiolog-app/audiolog-backend/internal/store"
	"github.com/go-chi/chi/v5"
)

// FeedHandler serves point reads of the feed over plain HTTP. Live clients
// use the WebSocket gateway instead; these routes exist for initial paints
// and simple integrations.
type FeedHandler struct {
	store    store.Store
	sessions *services.SessionService
}

func NewFeedHandler(s store.Store, sessions *services.SessionService) *FeedHandler {
	return &FeedHandler{store: s, sessions: sessions}
}

type logsResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Logs    []models.Log `json:"logs"`
}

type commentsResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Comments []models.Comment `json:"comments"`
}

type settingsResponse struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message,omitempty"`
	Settings *models.JourneySettings `json:"settings"`
}

func (h *FeedHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	userID, ok, err := h.sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return "", false
	}
	return userID.String(), true
}

// Logs returns every public log, newest first.
func (h *FeedHandler) Logs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	logs, err := h.store.Logs(r.Context())
	if err != nil {
		log.Printf("❌ Failed to read logs: %v", err)
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []models.Log{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logsResponse{Success: true, Logs: logs})
}

// Comments returns one log's comment thread, oldest first.
func (h *FeedHandler) Comments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	logID := chi.URLParam(r, "logID")
	if logID == "" {
		http.Error(w, "log ID is required", http.StatusBadRequest)
		return
	}

	comments, err := h.store.Comments(r.Context(), logID)
	if err != nil {
		log.Printf("❌ Failed to read comments for log %s: %v", logID, err)
		http.Error(w, "Failed to read comments", http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commentsResponse{Success: true, Comments: comments})
}

// Settings returns the caller's settings document; defaults when none exists.
func (h *FeedHandler) Settings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	settings, err := h.store.Settings(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to read settings for user %s: %v", userID, err)
		http.Error(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	if settings == nil {
		s := models.DefaultSettings(userID)
		settings = &s
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settingsResponse{Success: true, Settings: settings})
}
