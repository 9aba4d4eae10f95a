package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/majibu/backend/internal/models"
	"github.com/majibu/backend/internal/scoring"
)

// ResultStore persists Result records.
type ResultStore struct {
	db     *sqlx.DB
	params scoring.Params
}

func NewResultStore(db *sqlx.DB, params scoring.Params) *ResultStore {
	return &ResultStore{db: db, params: params}
}

// Create records a new participation when a player begins a quiz session.
func (s *ResultStore) Create(ctx context.Context, playerID, quizSessionID, category string, expiresAt time.Time) (*models.Result, error) {
	result := models.Result{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		QuizSessionID: quizSessionID,
		Category:      category,
		IsActive:      true,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (id, player_id, quiz_session_id, category, total_answered, total_correct, score, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0.0, TRUE, $5, $6)
	`, result.ID, result.PlayerID, result.QuizSessionID, result.Category, result.ExpiresAt, result.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}
	return &result, nil
}

// GetByID returns a single result row.
func (s *ResultStore) GetByID(ctx context.Context, id string) (*models.Result, error) {
	var r models.Result
	err := s.db.GetContext(ctx, &r, `
		SELECT id, player_id, quiz_session_id, category, total_answered, total_correct,
		       score, is_active, expires_at, created_at, submitted_at
		FROM results WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitAnswers records a player's performance exactly once and sets the
// moderated score used for matching.
func (s *ResultStore) SubmitAnswers(ctx context.Context, id string, totalAnswered, totalCorrect int) (float64, error) {
	if totalCorrect > totalAnswered || totalAnswered < 0 || totalCorrect < 0 {
		return 0, fmt.Errorf("invalid submission: answered=%d correct=%d", totalAnswered, totalCorrect)
	}
	if totalAnswered > s.params.QuestionsInSession {
		return 0, fmt.Errorf("answered %d exceeds questions per session %d", totalAnswered, s.params.QuestionsInSession)
	}

	score := scoring.Moderate(s.params, totalAnswered, totalCorrect)

	res, err := s.db.ExecContext(ctx, `
		UPDATE results
		SET total_answered = $1, total_correct = $2, score = $3, submitted_at = $4
		WHERE id = $5 AND submitted_at IS NULL
	`, totalAnswered, totalCorrect, score, time.Now(), id)
	if err != nil {
		return 0, fmt.Errorf("update result %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, fmt.Errorf("result %s already submitted or missing", id)
	}
	return score, nil
}

// EligibleForMatching returns every result admitted to this tick: still
// active, older than the load delay (so a session mid-play is never picked
// up), and at or past the buffered expiry.
func (s *ResultStore) EligibleForMatching(ctx context.Context, now time.Time, loadDelay, expiryBuffer time.Duration) ([]models.Result, error) {
	var results []models.Result
	err := s.db.SelectContext(ctx, &results, `
		SELECT id, player_id, quiz_session_id, category, total_answered, total_correct,
		       score, is_active, expires_at, created_at, submitted_at
		FROM results
		WHERE is_active = TRUE
		  AND created_at < $1
		  AND expires_at < $2
		ORDER BY created_at
	`, now.Add(-loadDelay), now.Add(expiryBuffer))
	if err != nil {
		return nil, fmt.Errorf("scan eligible results: %w", err)
	}
	return results, nil
}

// Deactivate flips is_active exactly once; an already-consumed result is
// not an error.
func (s *ResultStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE results SET is_active = FALSE WHERE id = $1 AND is_active = TRUE
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate result %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM results WHERE id = $1)`, id); err == nil && !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}
