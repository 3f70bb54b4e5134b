package calllog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

func setupMockRepo(t *testing.T) (sqlmock.Sqlmock, *Repository) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	repo := New(db)
	repo.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = db.Close() })
	return mock, repo
}

func sampleRecord() contractx.TurnRecord {
	return contractx.TurnRecord{
		CallID:    "call-1",
		Intent:    statex.IntentSell,
		Sequence:  2,
		User:      "It has 3 beds",
		Agent:     "Great, and how many baths?",
		Extracted: map[string]any{"bedrooms": 3},
		Fields:    map[string]any{"bedrooms": 3, "property_address": "123 Main St"},
	}
}

func TestRecordTurn(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "inserts turn and upserts summary",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO "call_turns"`).
					WillReturnResult(sqlmock.NewResult(1, 1))
				// end_time is nil, so bun writes DEFAULT and reads it back.
				mock.ExpectQuery(`INSERT INTO "call_logs" .* ON CONFLICT \(call_id\) DO UPDATE .*GREATEST\(cl.turn_count, EXCLUDED.turn_count\).* RETURNING "end_time"`).
					WillReturnRows(sqlmock.NewRows([]string{"end_time"}).AddRow(nil))
				mock.ExpectCommit()
			},
		},
		{
			name: "rolls back when summary upsert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO "call_turns"`).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectQuery(`INSERT INTO "call_logs"`).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := setupMockRepo(t)
			tt.setupMock(mock)

			err := repo.RecordTurn(context.Background(), sampleRecord())
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordTurn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestRecordTurnRequiresCallID(t *testing.T) {
	mock, repo := setupMockRepo(t)

	rec := sampleRecord()
	rec.CallID = " "
	if err := repo.RecordTurn(context.Background(), rec); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("RecordTurn() error = %v, want ErrValidation", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestMarkEnded(t *testing.T) {
	mock, repo := setupMockRepo(t)
	mock.ExpectExec(`INSERT INTO "call_logs" .*'completed'.* ON CONFLICT \(call_id\) DO UPDATE SET end_time = EXCLUDED.end_time`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkEnded(context.Background(), "call-1", "completed"); err != nil {
		t.Fatalf("MarkEnded() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	mock, repo := setupMockRepo(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "call_logs"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "call_turns"`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
