package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/majibu/backend/internal/accounts"
	"github.com/majibu/backend/internal/api"
	"github.com/majibu/backend/internal/config"
	"github.com/majibu/backend/internal/database"
	"github.com/majibu/backend/internal/matcher"
	"github.com/majibu/backend/internal/migrations"
	"github.com/majibu/backend/internal/notifier"
	"github.com/majibu/backend/internal/redis"
	"github.com/majibu/backend/internal/scoring"
	"github.com/majibu/backend/internal/sms"
	"github.com/majibu/backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Initialize SMS client (if configured)
	if smsClient := sms.NewClient(cfg, rdb); smsClient != nil {
		sms.SetDefault(smsClient)
		log.Printf("[SMS] HostPinnacle SMS client initialized (base=%s)", cfg.SMSServiceBaseURL)
	} else {
		log.Printf("[SMS] SMS is not configured (SMS_SERVICE_BASE_URL/SMS_SERVICE_USER_ID missing)")
	}

	// Pick the notification path: AMQP queue first, direct SMS next, log fallback
	var notify notifier.Notifier = notifier.LogNotifier{}
	if cfg.AMQPUrl != "" {
		queueNotifier, err := notifier.NewQueueNotifier(cfg.AMQPUrl, cfg.NotifyQueue)
		if err != nil {
			log.Fatalf("Failed to connect notification queue: %v", err)
		}
		defer queueNotifier.Close()
		notify = queueNotifier
		log.Printf("[NOTIFY] Publishing notifications to AMQP queue %q", cfg.NotifyQueue)
	} else if sms.Default != nil {
		notify = notifier.NewSMSNotifier(sms.Default)
		log.Printf("[NOTIFY] Delivering notifications directly via SMS")
	}

	params := scoring.Params{
		QuestionsInSession: cfg.QuestionsInSession,
		WeightAnswered:     cfg.WeightAnswered,
		WeightCorrect:      cfg.WeightCorrect,
		Low:                cfg.ModeratedLow,
		High:               cfg.ModeratedHigh,
		DecimalPlaces:      cfg.ScoreDecimalPlaces,
	}

	results := store.NewResultStore(db, params)
	duos := store.NewDuoSessionStore(db)
	stats := store.NewPoolStatsStore(db)
	ledger := accounts.NewLedger(db)

	lease := matcher.NewRedisLease(rdb, time.Duration(cfg.LeaseTTLSeconds)*time.Second)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	m := matcher.New(cfg, results, duos, stats, ledger, notify, lease, rng)

	// Start pool matcher worker
	go matcher.StartMatcherWorker(context.Background(), m, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	api.SetupRoutes(router, cfg, duos, stats, ledger)

	log.Printf("Starting Majibu matcher server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
