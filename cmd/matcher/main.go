// Command matcher runs a single matching tick and exits. It is meant for
// cron-style invocation; exit codes: 0 tick completed, 1 lease held by
// another instance, 2 unrecoverable store error.
package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/majibu/backend/internal/accounts"
	"github.com/majibu/backend/internal/config"
	"github.com/majibu/backend/internal/database"
	"github.com/majibu/backend/internal/matcher"
	"github.com/majibu/backend/internal/notifier"
	"github.com/majibu/backend/internal/redis"
	"github.com/majibu/backend/internal/scoring"
	"github.com/majibu/backend/internal/sms"
	"github.com/majibu/backend/internal/store"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(2)
	}
	defer db.Close()

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(2)
	}
	defer rdb.Close()

	var notify notifier.Notifier = notifier.LogNotifier{}
	if cfg.AMQPUrl != "" {
		queueNotifier, err := notifier.NewQueueNotifier(cfg.AMQPUrl, cfg.NotifyQueue)
		if err != nil {
			log.Printf("Failed to connect notification queue: %v", err)
			os.Exit(2)
		}
		defer queueNotifier.Close()
		notify = queueNotifier
	} else if smsClient := sms.NewClient(cfg, rdb); smsClient != nil {
		notify = notifier.NewSMSNotifier(smsClient)
	}

	params := scoring.Params{
		QuestionsInSession: cfg.QuestionsInSession,
		WeightAnswered:     cfg.WeightAnswered,
		WeightCorrect:      cfg.WeightCorrect,
		Low:                cfg.ModeratedLow,
		High:               cfg.ModeratedHigh,
		DecimalPlaces:      cfg.ScoreDecimalPlaces,
	}

	m := matcher.New(
		cfg,
		store.NewResultStore(db, params),
		store.NewDuoSessionStore(db),
		store.NewPoolStatsStore(db),
		accounts.NewLedger(db),
		notify,
		matcher.NewRedisLease(rdb, time.Duration(cfg.LeaseTTLSeconds)*time.Second),
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)

	if err := m.RunTick(context.Background(), time.Now()); err != nil {
		if errors.Is(err, matcher.ErrLeaseNotAcquired) {
			log.Printf("Tick skipped: %v", err)
			os.Exit(1)
		}
		log.Printf("Tick failed: %v", err)
		os.Exit(2)
	}
}
