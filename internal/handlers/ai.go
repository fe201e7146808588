package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/services"
)

// AIHandler proxies generative calls so the model API key never leaves the
// server. Every route requires a valid session. Calls carry no timeout; a
// slow model call holds only its own request.
type AIHandler struct {
	svc      ai.Service
	sessions *services.SessionService
}

func NewAIHandler(svc ai.Service, sessions *services.SessionService) *AIHandler {
	return &AIHandler{svc: svc, sessions: sessions}
}

type transcribeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	MimeType    string `json:"mime_type"`
}

type transcribeResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Milestone  bool   `json:"milestone"`
	Summary    string `json:"summary,omitempty"`
}

type titleResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
}

type textResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (h *AIHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := extractBearerToken(r.Header.Get("Authorization"))
	_, ok, err := h.sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return false
	}
	return true
}

// Transcribe runs audio through the model and returns transcript, milestone
// flag and one-line summary.
func (h *AIHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AudioBase64 == "" {
		http.Error(w, "audio_base64 is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Transcribe(r.Context(), req.AudioBase64, req.MimeType)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Printf("❌ Transcription failed: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(transcribeResponse{Success: false, Message: "Transcription failed"})
		return
	}

	json.NewEncoder(w).Encode(transcribeResponse{
		Success:    true,
		Transcript: result.Transcript,
		Milestone:  result.Milestone,
		Summary:    result.Summary,
	})
}

// SuggestTitle returns a short journey title and subtitle for the given logs.
func (h *AIHandler) SuggestTitle(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req struct {
		Logs string `json:"logs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	title, subtitle, err := h.svc.SuggestTitle(r.Context(), req.Logs)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Printf("❌ Title suggestion failed: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(titleResponse{Success: false, Message: "Title suggestion failed"})
		return
	}

	json.NewEncoder(w).Encode(titleResponse{Success: true, Title: title, Subtitle: subtitle})
}

// Recap summarizes a week of logs into one paragraph.
func (h *AIHandler) Recap(w http.ResponseWriter, r *http.Request) {
	h.textEndpoint(w, r, "logs", h.svc.Recap)
}

// Insight returns one line of encouragement for a single transcript.
func (h *AIHandler) Insight(w http.ResponseWriter, r *http.Request) {
	h.textEndpoint(w, r, "transcript", h.svc.Insight)
}

// Persona describes the user's recording persona from all their logs.
func (h *AIHandler) Persona(w http.ResponseWriter, r *http.Request) {
	h.textEndpoint(w, r, "logs", h.svc.Persona)
}

// textEndpoint is the shared shape of recap, insight and persona: one string
// in, one string out.
func (h *AIHandler) textEndpoint(w http.ResponseWriter, r *http.Request, field string, call func(ctx context.Context, input string) (string, error)) {
	if !h.authorize(w, r) {
		return
	}

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	text, err := call(r.Context(), body[field])
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Printf("❌ AI call failed: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(textResponse{Success: false, Message: "Generation failed"})
		return
	}

	json.NewEncoder(w).Encode(textResponse{Success: true, Text: text})
}
