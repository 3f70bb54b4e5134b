package state

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"
)

var (
	ErrIntentImmutable = errors.New("active intent is already set")
	ErrIntentInvalid   = errors.New("intent is not actionable")
)

// CallState is the per-call source of truth replayed to the model every turn.
type CallState struct {
	CallID       string `json:"call_id"`
	ActiveIntent Intent `json:"active_intent,omitempty"`

	// History is append-only; order is significant.
	History []Turn `json:"history,omitempty"`

	// CollectedFields is last-write-wins per key.
	CollectedFields map[string]any `json:"collected_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one committed caller utterance and the agent reply to it.
type Turn struct {
	User  string    `json:"user"`
	Agent string    `json:"agent"`
	At    time.Time `json:"at"`
}

// MergeResult reports what a field merge did.
type MergeResult struct {
	Applied []string
	Dropped []string
}

func NewCallState(callID string, now time.Time) *CallState {
	return &CallState{
		CallID:          callID,
		CollectedFields: make(map[string]any, 8),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
}

func (s *CallState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Routed reports whether the call has an active intent.
func (s *CallState) Routed() bool {
	return s != nil && s.ActiveIntent.Actionable()
}

// SetIntent performs the one-time UNROUTED -> ROUTED transition.
func (s *CallState) SetIntent(intent Intent, now time.Time) error {
	if s == nil {
		return errors.New("nil call state")
	}
	if !intent.Actionable() {
		return fmt.Errorf("%w: %q", ErrIntentInvalid, intent)
	}
	if s.ActiveIntent != IntentNone {
		if s.ActiveIntent == intent {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrIntentImmutable, s.ActiveIntent, intent)
	}
	s.ActiveIntent = intent
	s.Touch(now)
	return nil
}

func (s *CallState) AppendTurn(user, agent string, now time.Time) {
	s.History = append(s.History, Turn{
		User:  user,
		Agent: agent,
		At:    now.UTC(),
	})
	s.Touch(now)
}

// MergeFields applies updates last-write-wins, keeping only keys in the active
// intent vocabulary. Null values never create or clear a key.
func (s *CallState) MergeFields(updates map[string]any, now time.Time) MergeResult {
	var res MergeResult
	if s == nil || len(updates) == 0 {
		return res
	}
	s.EnsureFieldsMap()

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, raw := range keys {
		v := updates[raw]
		key := strings.TrimSpace(raw)
		if v == nil {
			continue
		}
		if !AllowsField(s.ActiveIntent, key) {
			res.Dropped = append(res.Dropped, raw)
			continue
		}
		s.CollectedFields[key] = v
		res.Applied = append(res.Applied, key)
	}
	if len(res.Applied) > 0 {
		s.Touch(now)
	}
	return res
}

func (s *CallState) EnsureFieldsMap() {
	if s.CollectedFields == nil {
		s.CollectedFields = make(map[string]any, 8)
	}
}

// Clone returns a copy whose history and field map can be mutated independently.
func (s *CallState) Clone() *CallState {
	if s == nil {
		return nil
	}
	out := *s
	out.History = append([]Turn(nil), s.History...)
	out.CollectedFields = maps.Clone(s.CollectedFields)
	out.EnsureFieldsMap()
	return &out
}

func (s *CallState) Validate() error {
	if strings.TrimSpace(s.CallID) == "" {
		return ErrInvalidCall
	}
	if s.ActiveIntent != IntentNone && !s.ActiveIntent.Actionable() {
		return fmt.Errorf("%w: active_intent=%q", ErrIntentInvalid, s.ActiveIntent)
	}
	if s.ActiveIntent == IntentNone && len(s.History) > 0 {
		return errors.New("unrouted call must not have history")
	}
	return nil
}
