package calllog

import (
	"time"

	"github.com/uptrace/bun"
)

// CallTurn is one committed specialist turn.
type CallTurn struct {
	bun.BaseModel `bun:"table:call_turns,alias:ct"`

	ID        string         `bun:"id,pk"`
	CallID    string         `bun:"call_id,notnull"`
	Sequence  int            `bun:"sequence,notnull"`
	Intent    string         `bun:"intent,notnull"`
	UserText  string         `bun:"user_text"`
	AgentText string         `bun:"agent_text"`
	Extracted map[string]any `bun:"extracted,type:jsonb"`
	Dropped   []string       `bun:"dropped,array"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

// CallLog is the per-call summary row the dashboard reads.
type CallLog struct {
	bun.BaseModel `bun:"table:call_logs,alias:cl"`

	CallID          string         `bun:"call_id,pk"`
	Intent          string         `bun:"intent"`
	CollectedFields map[string]any `bun:"collected_fields,type:jsonb"`
	TurnCount       int            `bun:"turn_count,notnull"`
	Transcript      string         `bun:"transcript"`
	Outcome         string         `bun:"outcome"`
	StartTime       time.Time      `bun:"start_time,notnull"`
	EndTime         *time.Time     `bun:"end_time"`
	UpdatedAt       time.Time      `bun:"updated_at,notnull"`
}
