package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/audiolog-app/audiolog-backend/internal/ai"
	"github.com/audiolog-app/audiolog-backend/internal/config"
	"github.com/audiolog-app/audiolog-backend/internal/database"
	"github.com/audiolog-app/audiolog-backend/internal/handlers"
	"github.com/audiolog-app/audiolog-backend/internal/middleware"
	"github.com/audiolog-app/audiolog-backend/internal/routes"
	"github.com/audiolog-app/audiolog-backend/internal/services"
	"github.com/audiolog-app/audiolog-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	if cfg.GeminiAPIKey == "" {
		log.Println("⚠️  WARNING: GEMINI_API_KEY not set. AI transcription and analysis will fail.")
	}

	// Connect to PostgreSQL (anonymous identities)
	log.Printf("Connecting to PostgreSQL...")
	pgDB, err := database.ConnectPostgres(cfg.PostgresURI)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer pgDB.Close()

	// Connect to Redis (sessions, rate limiting, change notifications)
	log.Printf("Connecting to Redis...")
	rdb, err := database.ConnectRedis(cfg.RedisURI)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Connect to MongoDB (logs, comments, settings)
	log.Printf("Connecting to MongoDB...")
	mongoClient, mongoDB, err := database.ConnectMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.DisconnectMongo(mongoClient)

	// Document store with Redis-backed change notifications
	notifier := store.NewNotifier(rdb)
	docStore := store.NewMongoStore(mongoDB, notifier)
	if err := docStore.EnsureIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB indexes: %v", err)
	} else {
		log.Println("✅ MongoDB indexes ensured")
	}

	// Services
	gemini := ai.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	sessions := services.NewSessionService(rdb)
	users := services.NewUserService(pgDB)

	// Handlers
	authHandler := handlers.NewAuthHandler(users, sessions)
	aiHandler := handlers.NewAIHandler(gemini, sessions)
	feedHandler := handlers.NewFeedHandler(docStore, sessions)
	feedWS := handlers.NewFeedWSHandler(docStore, gemini, sessions)

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Production: security headers + in-process burst limiter + Redis window limiter
	rateLimiter := middleware.NewRateLimiter(rdb)
	if cfg.IsProduction() {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.NewIPRateLimiter().Middleware)
		r.Use(rateLimiter.Middleware)
		log.Println("✅ Production security enabled (security headers, per-IP + window rate limiting)")
	} else {
		r.Use(rateLimiter.Middleware)
	}

	routes.SetupRoutes(r, authHandler, aiHandler, feedHandler, feedWS)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/auth/anonymous")
	log.Println("  GET  /api/auth/me")
	log.Println("  POST /api/auth/signout")
	log.Println("  POST /api/ai/transcribe")
	log.Println("  POST /api/ai/title")
	log.Println("  POST /api/ai/recap")
	log.Println("  POST /api/ai/insight")
	log.Println("  POST /api/ai/persona")
	log.Println("  GET  /api/feed/logs")
	log.Println("  GET  /api/feed/logs/{logID}/comments")
	log.Println("  GET  /api/feed/settings")
	log.Println("  GET  /ws/feed")

	log.Printf("🚀 Audiolog backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
