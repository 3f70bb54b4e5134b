package specialist

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

type routerImpl struct {
	completer    contractx.Completer
	systemPrompt string
}

type routerLLMOutput struct {
	Intent string `json:"intent"`
}

var _ contractx.Classifier = (*routerImpl)(nil)

func newRouter(completer contractx.Completer, systemPrompt string) (*routerImpl, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: router completer is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: router", contractx.ErrPromptMissing)
	}
	return &routerImpl{completer: completer, systemPrompt: systemPrompt}, nil
}

// Classify sends the utterance alone, without history. Labels outside
// BUY/SELL/RENT come back as GENERAL.
func (r *routerImpl) Classify(ctx context.Context, utterance string) (contractx.Classification, error) {
	if strings.TrimSpace(utterance) == "" {
		return contractx.Classification{}, fmt.Errorf("%w: utterance is required", contractx.ErrValidation)
	}

	raw, err := r.completer.Complete(ctx, contractx.CompletionRequest{
		System:      r.systemPrompt,
		UserMessage: utterance,
		Role:        contractx.AgentTypeRouter,
	})
	if err != nil {
		return contractx.Classification{}, err
	}

	var out routerLLMOutput
	if err := decodeModelJSON(raw, routerSchema, &out); err != nil {
		return contractx.Classification{Raw: raw}, fmt.Errorf("router: %w", err)
	}

	return contractx.Classification{
		Intent: statex.ParseIntent(out.Intent),
		Raw:    raw,
	}, nil
}
