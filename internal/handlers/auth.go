package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/audiolog-app/audiolog-backend/internal/models"
	"github.com/audiolog-app/audiolog-backend/internal/services"
	"github.com/google/uuid"
)

// UserDirectory is the slice of the user service the auth handler needs.
type UserDirectory interface {
	CreateAnonymous(ctx context.Context) (uuid.UUID, error)
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	Touch(ctx context.Context, userID uuid.UUID) error
}

// AuthHandler issues and checks anonymous sessions. There is no password
// flow: a device signs in once and gets a stable opaque user ID.
type AuthHandler struct {
	users    UserDirectory
	sessions *services.SessionService
}

func NewAuthHandler(users UserDirectory, sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

// AuthResponse is the shared response shape for auth endpoints.
type AuthResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

// AnonymousSignin mints a new anonymous identity and a session for it.
func (h *AuthHandler) AnonymousSignin(w http.ResponseWriter, r *http.Request) {
	userID, err := h.users.CreateAnonymous(r.Context())
	if err != nil {
		log.Printf("❌ Failed to create anonymous user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to create session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Success:      true,
		Message:      "Signed in anonymously",
		UserID:       userID.String(),
		UserName:     models.DisplayName(userID.String()),
		SessionToken: token,
	})
}

// Me resolves the current session token to its identity. Hitting it also
// slides the session expiry, so an active device never signs out.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	userID, ok, err := h.sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	// A session for a deactivated identity is as good as expired.
	if active, err := h.users.Exists(r.Context(), userID); err != nil || !active {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.Refresh(r.Context(), token); err != nil {
		log.Printf("❌ Failed to refresh session: %v", err)
	}

	// Best-effort activity marker.
	_ = h.users.Touch(r.Context(), userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Success:  true,
		UserID:   userID.String(),
		UserName: models.DisplayName(userID.String()),
	})
}

// Signout invalidates the current session.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(r)
	if !ok {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.InvalidateUser(r.Context(), userID); err != nil {
		log.Printf("❌ Failed to invalidate session: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Success: true, Message: "Signed out"})
}

func (h *AuthHandler) authenticate(r *http.Request) (uuid.UUID, bool) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return uuid.Nil, false
	}
	id, valid, err := h.sessions.Validate(r.Context(), token)
	if err != nil || !valid {
		return uuid.Nil, false
	}
	return id, true
}

// extractBearerToken pulls the token out of an "Authorization: Bearer <t>"
// header, returning "" when the header is absent or malformed.
func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
