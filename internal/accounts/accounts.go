package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/majibu/backend/internal/models"
	"github.com/majibu/backend/internal/scoring"
)

// cash flow directions
const (
	FlowInward  = "INWARD"
	FlowOutward = "OUTWARD"
)

// Ledger provides the account gateway: balances plus append-only debits
// and credits. Every movement records initial_balance, charge and
// final_balance computed atomically under a row lock.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// BalanceOf returns the current balance for an account, zero if the
// account has never transacted.
func (l *Ledger) BalanceOf(ctx context.Context, account string) (float64, error) {
	var balance float64
	err := l.db.GetContext(ctx, &balance, `SELECT balance FROM accounts WHERE account = $1`, account)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown accounts read as zero; the row appears on first movement
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return balance, nil
}

// Credit adds funds to an account.
func (l *Ledger) Credit(ctx context.Context, account string, amount float64, reason, description string) error {
	return l.move(ctx, account, amount, FlowInward, reason, description)
}

// Debit removes funds from an account, rejecting overdrafts.
func (l *Ledger) Debit(ctx context.Context, account string, amount float64, reason, description string) error {
	return l.move(ctx, account, amount, FlowOutward, reason, description)
}

func (l *Ledger) move(ctx context.Context, account string, amount float64, cashFlow, reason, description string) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}
	charge := scoring.Round(amount, 2)

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Ensure the account row exists, then lock it
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account, balance, created_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		ON CONFLICT (account) DO NOTHING
	`, account); err != nil {
		return fmt.Errorf("ensure account %s: %w", account, err)
	}

	var initial float64
	if err := tx.GetContext(ctx, &initial, `SELECT balance FROM accounts WHERE account = $1 FOR UPDATE`, account); err != nil {
		return fmt.Errorf("lock account %s: %w", account, err)
	}

	final := initial + charge
	if cashFlow == FlowOutward {
		if initial < charge {
			return fmt.Errorf("insufficient funds in account %s: have %.2f, need %.2f", account, initial, charge)
		}
		final = initial - charge
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE account = $2`, final, account); err != nil {
		return fmt.Errorf("update balance for %s: %w", account, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_transactions (id, account, cash_flow, reason, initial_balance, charge, final_balance, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), account, cashFlow, reason, initial, charge, final, description, time.Now()); err != nil {
		return fmt.Errorf("append transaction for %s: %w", account, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf("[LEDGER] %s %s: account=%s charge=%.2f initial=%.2f final=%.2f desc=%s",
		cashFlow, reason, account, charge, initial, final, description)
	return nil
}

// History returns the most recent ledger entries for an account.
func (l *Ledger) History(ctx context.Context, account string, limit int) ([]models.AccountTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var entries []models.AccountTransaction
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, account, cash_flow, reason, initial_balance, charge, final_balance, description, created_at
		FROM account_transactions WHERE account = $1 ORDER BY created_at DESC LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history for %s: %w", account, err)
	}
	return entries, nil
}
