package specialist

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

type specialistImpl struct {
	intent       statex.Intent
	agentType    contractx.AgentType
	completer    contractx.Completer
	systemPrompt string
}

type specialistLLMOutput struct {
	ReplyText     string         `json:"reply_text"`
	ExtractedData map[string]any `json:"extracted_data"`
}

var _ contractx.Specialist = (*specialistImpl)(nil)

func newSpecialist(intent statex.Intent, completer contractx.Completer, systemPrompt string) (*specialistImpl, error) {
	if !intent.Actionable() {
		return nil, fmt.Errorf("%w: no specialist for intent %q", contractx.ErrValidation, intent)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: specialist completer is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: specialist intent=%s", contractx.ErrPromptMissing, intent)
	}
	return &specialistImpl{
		intent:       intent,
		agentType:    contractx.AgentTypeFor(intent),
		completer:    completer,
		systemPrompt: systemPrompt,
	}, nil
}

// Run replays the full history so the model recalls fields from earlier turns.
// Extracted keys are returned as the model produced them; the caller filters them.
func (s *specialistImpl) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	if req.Intent != s.intent {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s got intent=%s", contractx.ErrValidation, s.intent, req.Intent)
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	raw, err := s.completer.Complete(ctx, contractx.CompletionRequest{
		System:      s.systemPrompt,
		History:     req.History,
		UserMessage: req.UserMessage,
		Role:        s.agentType,
	})
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	var out specialistLLMOutput
	if err := decodeModelJSON(raw, specialistSchema, &out); err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("specialist=%s: %w", s.agentType, err)
	}

	extracted := out.ExtractedData
	if extracted == nil {
		extracted = map[string]any{}
	}

	return contractx.SpecialistResponse{
		ReplyText:     strings.TrimSpace(out.ReplyText),
		ExtractedData: extracted,
	}, nil
}
