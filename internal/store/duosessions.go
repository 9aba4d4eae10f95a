package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/majibu/backend/internal/models"
)

// ErrDuplicateDuoSession means one of the parties already has an outcome
// recorded for the quiz session. Callers treat it as idempotent success.
var ErrDuplicateDuoSession = errors.New("duo session already recorded for player and quiz session")

const pqUniqueViolation = "23505"

// DuoSessionStore is the append-only store of matching outcomes.
type DuoSessionStore struct {
	db *sqlx.DB
}

func NewDuoSessionStore(db *sqlx.DB) *DuoSessionStore {
	return &DuoSessionStore{db: db}
}

// Create appends a DuoSession, enforcing at most one outcome per
// (player, quiz_session_id). The pre-insert check catches a party already
// settled under either role; the partial unique indexes back it up at the
// schema level for concurrent writers.
func (s *DuoSessionStore) Create(ctx context.Context, duo models.DuoSession) error {
	if duo.PartyB.Valid && duo.PartyB.String == duo.PartyA {
		return fmt.Errorf("party_a and party_b are the same player %s", duo.PartyA)
	}
	if duo.Status == models.StatusPaired {
		if !duo.PartyB.Valid || !duo.WinnerID.Valid {
			return fmt.Errorf("paired duo session requires party_b and winner")
		}
	} else if duo.PartyB.Valid || duo.WinnerID.Valid {
		return fmt.Errorf("%s duo session must not carry party_b or winner", duo.Status)
	}

	parties := []string{duo.PartyA}
	if duo.PartyB.Valid {
		parties = append(parties, duo.PartyB.String)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var settled int
	err = tx.GetContext(ctx, &settled, `
		SELECT COUNT(*) FROM duo_sessions
		WHERE quiz_session_id = $1
		  AND (party_a = ANY($2) OR party_b = ANY($2))
	`, duo.QuizSessionID, pq.Array(parties))
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if settled > 0 {
		return ErrDuplicateDuoSession
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO duo_sessions (id, quiz_session_id, party_a, party_b, winner_id, status, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, duo.ID, duo.QuizSessionID, duo.PartyA, duo.PartyB, duo.WinnerID, duo.Status, duo.Amount, duo.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateDuoSession
		}
		return fmt.Errorf("insert duo session: %w", err)
	}

	return tx.Commit()
}

// ListBySession returns all outcomes for a quiz session.
func (s *DuoSessionStore) ListBySession(ctx context.Context, quizSessionID string) ([]models.DuoSession, error) {
	var duos []models.DuoSession
	err := s.db.SelectContext(ctx, &duos, `
		SELECT id, quiz_session_id, party_a, party_b, winner_id, status, amount, created_at
		FROM duo_sessions WHERE quiz_session_id = $1 ORDER BY created_at
	`, quizSessionID)
	if err != nil {
		return nil, fmt.Errorf("list duo sessions: %w", err)
	}
	return duos, nil
}

// ListRecent returns the newest outcomes, most recent first.
func (s *DuoSessionStore) ListRecent(ctx context.Context, limit int) ([]models.DuoSession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var duos []models.DuoSession
	err := s.db.SelectContext(ctx, &duos, `
		SELECT id, quiz_session_id, party_a, party_b, winner_id, status, amount, created_at
		FROM duo_sessions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent duo sessions: %w", err)
	}
	return duos, nil
}
