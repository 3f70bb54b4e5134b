package llm

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

// noThinkDirective disables reasoning traces on Nemotron models.
const noThinkDirective = "/no_think"

// buildMessages lays out system instructions, then each history turn as a
// user/assistant pair, then the latest utterance.
func buildMessages(req contractx.CompletionRequest, noThink bool) []*schema.Message {
	msgs := make([]*schema.Message, 0, 3+2*len(req.History))
	if noThink {
		msgs = append(msgs, schema.SystemMessage(noThinkDirective))
	}
	msgs = append(msgs, schema.SystemMessage(req.System))
	for _, turn := range req.History {
		msgs = append(msgs,
			schema.UserMessage(turn.User),
			schema.AssistantMessage(turn.Agent, nil),
		)
	}
	msgs = append(msgs, schema.UserMessage(req.UserMessage))
	return msgs
}

func validateRequest(req contractx.CompletionRequest) error {
	if strings.TrimSpace(req.System) == "" {
		return contractx.ErrPromptMissing
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.ErrValidation
	}
	return nil
}
