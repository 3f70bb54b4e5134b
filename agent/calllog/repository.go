package calllog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN         string        `envconfig:"DSN" split_words:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
	AutoMigrate bool          `envconfig:"AUTO_MIGRATE" split_words:"true" default:"true"`
}

// Repository writes the call log to Postgres.
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

var _ contractx.TurnRecorder = (*Repository)(nil)

// Open connects with pgdriver. The connection is checked with a ping.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	)
	repo := New(sql.OpenDB(connector))

	if err := repo.db.PingContext(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

func New(sqldb *sql.DB) *Repository {
	return &Repository{
		db:  bun.NewDB(sqldb, pgdialect.New()),
		now: time.Now,
	}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the call log tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, model := range []any{(*CallLog)(nil), (*CallTurn)(nil)} {
		if _, err := r.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// RecordTurn inserts the turn and upserts the call summary in one transaction.
func (r *Repository) RecordTurn(ctx context.Context, rec contractx.TurnRecord) error {
	callID := strings.TrimSpace(rec.CallID)
	if callID == "" {
		return fmt.Errorf("%w: call id is required", contractx.ErrValidation)
	}
	now := r.now().UTC()

	turn := &CallTurn{
		ID:        uuid.NewString(),
		CallID:    callID,
		Sequence:  rec.Sequence,
		Intent:    rec.Intent.String(),
		UserText:  rec.User,
		AgentText: rec.Agent,
		Extracted: rec.Extracted,
		Dropped:   rec.Dropped,
		CreatedAt: now,
	}
	summary := &CallLog{
		CallID:          callID,
		Intent:          rec.Intent.String(),
		CollectedFields: rec.Fields,
		TurnCount:       rec.Sequence,
		Transcript:      transcriptLine(rec),
		StartTime:       now,
		UpdatedAt:       now,
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(turn).Exec(ctx); err != nil {
			return fmt.Errorf("insert call turn: %w", err)
		}
		_, err := tx.NewInsert().
			Model(summary).
			On("CONFLICT (call_id) DO UPDATE").
			Set("intent = EXCLUDED.intent").
			Set("collected_fields = EXCLUDED.collected_fields").
			Set("turn_count = GREATEST(cl.turn_count, EXCLUDED.turn_count)").
			Set("transcript = cl.transcript || EXCLUDED.transcript").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert call log: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record turn call_id=%s: %w", callID, err)
	}
	return nil
}

// MarkEnded stamps end_time and outcome, creating the row for calls that never routed.
func (r *Repository) MarkEnded(ctx context.Context, callID string, outcome string) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return fmt.Errorf("%w: call id is required", contractx.ErrValidation)
	}
	if outcome == "" {
		outcome = "ended"
	}
	now := r.now().UTC()

	_, err := r.db.NewInsert().
		Model(&CallLog{
			CallID:    callID,
			Outcome:   outcome,
			StartTime: now,
			EndTime:   &now,
			UpdatedAt: now,
		}).
		On("CONFLICT (call_id) DO UPDATE").
		Set("end_time = EXCLUDED.end_time").
		Set("outcome = EXCLUDED.outcome").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark call ended call_id=%s: %w", callID, err)
	}
	return nil
}

// Get returns the summary row of a call.
func (r *Repository) Get(ctx context.Context, callID string) (*CallLog, error) {
	out := new(CallLog)
	if err := r.db.NewSelect().Model(out).Where("cl.call_id = ?", callID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("get call log call_id=%s: %w", callID, err)
	}
	return out, nil
}

func transcriptLine(rec contractx.TurnRecord) string {
	return fmt.Sprintf("Caller: %s\nAgent: %s\n", rec.User, rec.Agent)
}
