package matcher

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/majibu/backend/internal/config"
)

// StartMatcherWorker runs the pool matcher as a periodic background job.
// An external cron invoking cmd/matcher is the equivalent one-shot form.
func StartMatcherWorker(ctx context.Context, m *Matcher, cfg *config.Config) {
	interval := time.Duration(cfg.TickPeriodSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[MATCHER] Starting pool matcher worker (tick every %v)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MATCHER] Worker stopped")
			return
		case <-ticker.C:
			if err := m.RunTick(ctx, time.Now()); err != nil {
				if errors.Is(err, ErrLeaseNotAcquired) {
					log.Printf("[MATCHER] Skipping tick: lease held elsewhere")
					continue
				}
				log.Printf("[MATCHER] Tick failed: %v", err)
			}
		}
	}
}
