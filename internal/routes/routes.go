package routes

import (
	"net/http"

	"github.com/audiolog-app/audiolog-backend/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers every HTTP and WebSocket route.
func SetupRoutes(r *chi.Mux, auth *handlers.AuthHandler, aiHandler *handlers.AIHandler, feedHandler *handlers.FeedHandler, feedWS *handlers.FeedWSHandler) {
	// Health check
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("OK"))
	})

	// Anonymous auth routes
	r.Post("/api/auth/anonymous", auth.AnonymousSignin)
	r.Get("/api/auth/me", auth.Me)
	r.Post("/api/auth/signout", auth.Signout)

	// AI proxy routes (the model API key never leaves the server)
	r.Post("/api/ai/transcribe", aiHandler.Transcribe)
	r.Post("/api/ai/title", aiHandler.SuggestTitle)
	r.Post("/api/ai/recap", aiHandler.Recap)
	r.Post("/api/ai/insight", aiHandler.Insight)
	r.Post("/api/ai/persona", aiHandler.Persona)

	// Feed point reads
	r.Get("/api/feed/logs", feedHandler.Logs)
	r.Get("/api/feed/logs/{logID}/comments", feedHandler.Comments)
	r.Get("/api/feed/settings", feedHandler.Settings)

	// Live sync gateway
	r.Get("/ws/feed", feedWS.Serve)
}
