package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

type registryImpl struct {
	classifier  contractx.Classifier
	specialists map[statex.Intent]contractx.Specialist
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Specialist(intent statex.Intent) (contractx.Specialist, error) {
	s, ok := r.specialists[intent]
	if !ok {
		return nil, fmt.Errorf("%w: no specialist for intent %q", contractx.ErrValidation, intent)
	}
	return s, nil
}

// Completers holds one Completion Client per role. BUY and RENT share Acquisition.
type Completers struct {
	Router      contractx.Completer
	Seller      contractx.Completer
	Acquisition contractx.Completer
}

// NewRegistry builds every role's completer on backend and wires the embedded prompts.
func NewRegistry(ctx context.Context, cfg llmx.Config, backend string, observe llmx.ObserveFunc) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var completers Completers
	for _, role := range []struct {
		agentType contractx.AgentType
		dst       *contractx.Completer
	}{
		{contractx.AgentTypeRouter, &completers.Router},
		{contractx.AgentTypeSeller, &completers.Seller},
		{contractx.AgentTypeAcquisition, &completers.Acquisition},
	} {
		c, err := llmx.NewCompleter(ctx, cfg, role.agentType, backend, observe)
		if err != nil {
			return nil, fmt.Errorf("create %s completer: %w", role.agentType, err)
		}
		*role.dst = c
	}

	return NewRegistryWith(completers, promptx.LoadPromptSet())
}

func NewRegistryWith(completers Completers, prompts promptx.PromptSet) (contractx.Registry, error) {
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	router, err := newRouter(completers.Router, prompts.Router)
	if err != nil {
		return nil, err
	}

	specialists := make(map[statex.Intent]contractx.Specialist, 3)
	for _, intent := range []statex.Intent{statex.IntentSell, statex.IntentBuy, statex.IntentRent} {
		completer := completers.Acquisition
		if intent == statex.IntentSell {
			completer = completers.Seller
		}
		systemPrompt, err := prompts.ForIntent(intent)
		if err != nil {
			return nil, err
		}
		s, err := newSpecialist(intent, completer, systemPrompt)
		if err != nil {
			return nil, err
		}
		specialists[intent] = s
	}

	return &registryImpl{
		classifier:  router,
		specialists: specialists,
	}, nil
}
