package models

import (
	"database/sql"
	"time"
)

// Quiz categories
const (
	CategoryBible    = "BIBLE"
	CategoryFootball = "FOOTBALL"
)

// DuoSession statuses
const (
	StatusPaired            = "PAIRED"
	StatusRefunded          = "REFUNDED"
	StatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Result represents one player's participation in a quiz session
type Result struct {
	ID            string       `db:"id" json:"id"`
	PlayerID      string       `db:"player_id" json:"player_id"`
	QuizSessionID string       `db:"quiz_session_id" json:"quiz_session_id"`
	Category      string       `db:"category" json:"category"`
	TotalAnswered int          `db:"total_answered" json:"total_answered"`
	TotalCorrect  int          `db:"total_correct" json:"total_correct"`
	Score         float64      `db:"score" json:"score"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	ExpiresAt     time.Time    `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	SubmittedAt   sql.NullTime `db:"submitted_at" json:"submitted_at,omitempty"`
}

// DuoSession is the durable outcome record for one player's participation
type DuoSession struct {
	ID            string         `db:"id" json:"id"`
	QuizSessionID string         `db:"quiz_session_id" json:"quiz_session_id"`
	PartyA        string         `db:"party_a" json:"party_a"`
	PartyB        sql.NullString `db:"party_b" json:"party_b,omitempty"`
	WinnerID      sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	Status        string         `db:"status" json:"status"`
	Amount        float64        `db:"amount" json:"amount"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// CategoryStats holds the adaptive pool statistics for one category at a tick
type CategoryStats struct {
	Players          int     `json:"players"`
	MeanPairwiseDiff float64 `json:"mean_pairwise_difference"`
	AverageScore     float64 `json:"average_score"`
	Ewma             float64 `json:"ewma"`
	PairingRange     float64 `json:"pairing_range"`
	Threshold        float64 `json:"threshold"`
}

// PoolSessionStats is the append-only per-tick snapshot of the pool
type PoolSessionStats struct {
	ID           string                   `db:"id" json:"id"`
	TickTime     time.Time                `db:"tick_time" json:"tick_time"`
	TotalPlayers int                      `db:"total_players" json:"total_players"`
	Categories   map[string]CategoryStats `db:"-" json:"categories"`
	CreatedAt    time.Time                `db:"created_at" json:"created_at"`
}

// Account represents a ledger account (keyed by the player's phone number
// for player wallets, or a well-known name for system accounts)
type Account struct {
	ID        int       `db:"id" json:"id"`
	Account   string    `db:"account" json:"account"`
	Balance   float64   `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccountTransaction is an append-only ledger entry
type AccountTransaction struct {
	ID             string    `db:"id" json:"id"`
	Account        string    `db:"account" json:"account"`
	CashFlow       string    `db:"cash_flow" json:"cash_flow"`
	Reason         string    `db:"reason" json:"reason"`
	InitialBalance float64   `db:"initial_balance" json:"initial_balance"`
	Charge         float64   `db:"charge" json:"charge"`
	FinalBalance   float64   `db:"final_balance" json:"final_balance"`
	Description    string    `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
