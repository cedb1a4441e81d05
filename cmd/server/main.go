package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/wordrush/backend/internal/api"
	"github.com/wordrush/backend/internal/bot"
	"github.com/wordrush/backend/internal/config"
	"github.com/wordrush/backend/internal/database"
	"github.com/wordrush/backend/internal/dictionary"
	"github.com/wordrush/backend/internal/game"
	"github.com/wordrush/backend/internal/matchmaking"
	"github.com/wordrush/backend/internal/migrations"
	"github.com/wordrush/backend/internal/rating"
	"github.com/wordrush/backend/internal/redis"
	"github.com/wordrush/backend/internal/state"
	"github.com/wordrush/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.PersistentStoreURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.PersistentStoreURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.StateStoreURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Load word lists
	dict, err := dictionary.Load(cfg.WordDataDir)
	if err != nil {
		log.Fatalf("Failed to load word lists from %s: %v", cfg.WordDataDir, err)
	}
	log.Printf("[DICT] Loaded %d answers, %d valid guesses", len(dict.Answers()), len(dict.ValidWords()))

	// Live match state lives in Redis so any process can arbitrate a win.
	store := state.NewRedisStore(rdb, cfg.MatchTTL)

	// WebSocket hub and cross-process relay
	hub := ws.NewHub()
	go hub.Run()
	relay := ws.NewRelay(rdb, hub)
	relay.Start(context.Background())

	// Initialize the match manager and rating service
	ratings := rating.NewService(db)
	game.InitializeManager(store, dict, hub, ratings, cfg.MatchTTL, cfg.DisconnectGrace)

	// Matchmaking queue: pairs humans, falls back to a bot at the wait budget
	queue := matchmaking.NewQueue(store, hub,
		func(a, b game.PlayerInfo) {
			if _, err := game.Manager.CreateMatch(a, b); err != nil {
				log.Printf("[MATCHMAKING] create match: %v", err)
			}
		},
		func(p game.PlayerInfo, d bot.Difficulty) {
			if _, err := game.Manager.CreateBotMatch(p, d); err != nil {
				log.Printf("[MATCHMAKING] create bot match: %v", err)
			}
		},
		cfg.MatchmakingWaitBudget, cfg.MatchmakingRetry, cfg.InitialBand, cfg.MaxBand)
	go queue.Run()

	gateway := ws.NewGateway(hub, db, queue, cfg.AuthTokenSecret)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, db, cfg, gateway)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting WordRush server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
