package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/majibu/backend/internal/accounts"
	"github.com/majibu/backend/internal/api/handlers"
	"github.com/majibu/backend/internal/config"
	"github.com/majibu/backend/internal/store"
)

// SetupRoutes configures the operational API. The player-facing quiz flow
// lives in a separate service; this surface is read-only monitoring.
func SetupRoutes(router *gin.Engine, cfg *config.Config, duos *store.DuoSessionStore, stats *store.PoolStatsStore, ledger *accounts.Ledger) {
	v1 := router.Group("/api/v1")

	v1.GET("/health", handlers.HealthCheck)

	ops := v1.Group("/")
	if cfg.OpsAPIKeyHash != "" {
		ops.Use(handlers.RequireOpsKey(cfg.OpsAPIKeyHash))
	} else if cfg.Environment == "production" {
		log.Println("[API] WARNING: OPS_API_KEY_HASH not set; ops endpoints are open")
	}

	ops.GET("/pool-stats/latest", handlers.LatestPoolStats(stats))
	ops.GET("/duo-sessions", handlers.ListDuoSessions(duos))
	ops.GET("/accounts/:account/balance", handlers.AccountBalance(ledger))
	ops.GET("/accounts/:account/transactions", handlers.AccountHistory(ledger))
}
