package contract

import (
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

// AgentType names a model role. Each role may use its own model settings.
type AgentType string

const (
	AgentTypeRouter      AgentType = "router"
	AgentTypeSeller      AgentType = "seller"
	AgentTypeAcquisition AgentType = "acquisition"
)

// AgentTypeFor returns the specialist role that serves an intent.
func AgentTypeFor(intent statex.Intent) AgentType {
	if intent == statex.IntentSell {
		return AgentTypeSeller
	}
	return AgentTypeAcquisition
}

// CompletionRequest is one chat completion: system instructions, the
// replayed history and the latest caller utterance.
type CompletionRequest struct {
	System      string        `json:"system"`
	History     []statex.Turn `json:"history,omitempty"`
	UserMessage string        `json:"user_message"`
	Role        AgentType     `json:"role,omitempty"`
}

type Classification struct {
	Intent statex.Intent `json:"intent"`
	Raw    string        `json:"raw,omitempty"`
}

type SpecialistRequest struct {
	Intent      statex.Intent  `json:"intent"`
	UserMessage string         `json:"user_message"`
	History     []statex.Turn  `json:"history,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

type SpecialistResponse struct {
	ReplyText     string         `json:"reply_text"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

// TurnRecord is a committed specialist turn handed to the call log.
type TurnRecord struct {
	CallID    string         `json:"call_id"`
	Intent    statex.Intent  `json:"intent"`
	Sequence  int            `json:"sequence"`
	User      string         `json:"user"`
	Agent     string         `json:"agent"`
	Extracted map[string]any `json:"extracted,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Dropped   []string       `json:"dropped,omitempty"`
}
