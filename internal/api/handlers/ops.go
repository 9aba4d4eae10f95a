package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/majibu/backend/internal/accounts"
	"github.com/majibu/backend/internal/store"
)

// LatestPoolStats returns the most recent per-tick pool snapshot.
func LatestPoolStats(stats *store.PoolStatsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := stats.Latest(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if snapshot == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no tick has run yet"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

// ListDuoSessions returns matching outcomes, optionally filtered by quiz session.
func ListDuoSessions(duos *store.DuoSessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if sessionID := c.Query("session_id"); sessionID != "" {
			list, err := duos.ListBySession(ctx, sessionID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"duo_sessions": list})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		list, err := duos.ListRecent(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"duo_sessions": list})
	}
}

// AccountBalance returns the ledger balance for one account.
func AccountBalance(ledger *accounts.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		balance, err := ledger.BalanceOf(c.Request.Context(), account)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": account, "balance": balance})
	}
}

// AccountHistory returns the most recent ledger entries for one account.
func AccountHistory(ledger *accounts.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		entries, err := ledger.History(c.Request.Context(), account, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": account, "transactions": entries})
	}
}
