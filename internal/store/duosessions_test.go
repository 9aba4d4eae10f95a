package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/majibu/backend/internal/models"
)

func newMockDuoStore(t *testing.T) (*DuoSessionStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewDuoSessionStore(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func pairedDuo() models.DuoSession {
	return models.DuoSession{
		ID:            "d1",
		QuizSessionID: "s1",
		PartyA:        "alice",
		PartyB:        sql.NullString{String: "bob", Valid: true},
		WinnerID:      sql.NullString{String: "bob", Valid: true},
		Status:        models.StatusPaired,
		Amount:        1000,
		CreatedAt:     time.Now(),
	}
}

func TestCreateRejectsMalformedDuos(t *testing.T) {
	s, _ := newMockDuoStore(t)
	ctx := context.Background()

	duo := pairedDuo()
	duo.PartyB = sql.NullString{}
	duo.WinnerID = sql.NullString{}
	if err := s.Create(ctx, duo); err == nil {
		t.Error("PAIRED without party_b must be rejected")
	}

	duo = pairedDuo()
	duo.PartyB = sql.NullString{String: "alice", Valid: true}
	if err := s.Create(ctx, duo); err == nil {
		t.Error("a player cannot be paired with themselves")
	}

	duo = pairedDuo()
	duo.Status = models.StatusRefunded
	if err := s.Create(ctx, duo); err == nil {
		t.Error("REFUNDED must not carry party_b or winner")
	}
}

func TestCreateDetectsSettledPartyBeforeInsert(t *testing.T) {
	s, mock := newMockDuoStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM duo_sessions")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.Create(context.Background(), pairedDuo())
	if !errors.Is(err, ErrDuplicateDuoSession) {
		t.Fatalf("expected ErrDuplicateDuoSession, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateMapsUniqueViolationToDuplicate(t *testing.T) {
	s, mock := newMockDuoStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM duo_sessions")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO duo_sessions")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	err := s.Create(context.Background(), pairedDuo())
	if !errors.Is(err, ErrDuplicateDuoSession) {
		t.Fatalf("a concurrent writer's unique violation must map to ErrDuplicateDuoSession, got %v", err)
	}
}

func TestCreatePairedDuo(t *testing.T) {
	s, mock := newMockDuoStore(t)
	duo := pairedDuo()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM duo_sessions")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO duo_sessions")).
		WithArgs(duo.ID, duo.QuizSessionID, duo.PartyA, duo.PartyB, duo.WinnerID, duo.Status, duo.Amount, duo.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Create(context.Background(), duo); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateRefundedDuo(t *testing.T) {
	s, mock := newMockDuoStore(t)
	duo := models.DuoSession{
		ID:            "d2",
		QuizSessionID: "s1",
		PartyA:        "carol",
		Status:        models.StatusRefunded,
		Amount:        1000,
		CreatedAt:     time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM duo_sessions")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO duo_sessions")).
		WithArgs(duo.ID, duo.QuizSessionID, duo.PartyA, duo.PartyB, duo.WinnerID, duo.Status, duo.Amount, duo.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Create(context.Background(), duo); err != nil {
		t.Fatalf("Create: %v", err)
	}
}
