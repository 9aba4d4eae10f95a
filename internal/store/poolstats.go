package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/majibu/backend/internal/models"
)

// PoolStatsStore is the append-only time series of per-tick pool snapshots.
type PoolStatsStore struct {
	db *sqlx.DB
}

func NewPoolStatsStore(db *sqlx.DB) *PoolStatsStore {
	return &PoolStatsStore{db: db}
}

type poolStatsRow struct {
	ID           string    `db:"id"`
	TickTime     time.Time `db:"tick_time"`
	TotalPlayers int       `db:"total_players"`
	Statistics   []byte    `db:"statistics"`
	CreatedAt    time.Time `db:"created_at"`
}

// Append writes one snapshot; snapshots are never mutated.
func (s *PoolStatsStore) Append(ctx context.Context, stats models.PoolSessionStats) error {
	payload, err := json.Marshal(stats.Categories)
	if err != nil {
		return fmt.Errorf("marshal category stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pool_session_stats (id, tick_time, total_players, statistics, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, stats.ID, stats.TickTime, stats.TotalPlayers, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert pool stats: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or nil when no tick has run
// yet. Unknown category keys in the stored map are preserved as-is.
func (s *PoolStatsStore) Latest(ctx context.Context) (*models.PoolSessionStats, error) {
	var row poolStatsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tick_time, total_players, statistics, created_at
		FROM pool_session_stats ORDER BY created_at DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest pool stats: %w", err)
	}

	categories := make(map[string]models.CategoryStats)
	if len(row.Statistics) > 0 {
		if err := json.Unmarshal(row.Statistics, &categories); err != nil {
			return nil, fmt.Errorf("decode category stats: %w", err)
		}
	}

	return &models.PoolSessionStats{
		ID:           row.ID,
		TickTime:     row.TickTime,
		TotalPlayers: row.TotalPlayers,
		Categories:   categories,
		CreatedAt:    row.CreatedAt,
	}, nil
}
