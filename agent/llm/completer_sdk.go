package llm

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	nimx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/nim"
)

type sdkCompleter struct {
	role    contractx.AgentType
	client  *openaisdk.Client
	cfg     nimx.Config
	noThink bool
}

var _ contractx.Completer = (*sdkCompleter)(nil)

// NewSDKCompleter calls the chat completions endpoint through the openai-go client.
func NewSDKCompleter(role contractx.AgentType, cfg nimx.Config, noThink bool) (contractx.Completer, error) {
	client := nimx.NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	return &sdkCompleter{role: role, client: client, cfg: cfg, noThink: noThink}, nil
}

func (c *sdkCompleter) Complete(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", fmt.Errorf("%w: role=%s", err, c.role)
	}

	callCtx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(callCtx, c.params(req))
	if err != nil {
		return "", classifyInvokeError(callCtx, c.role, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: role=%s returned no choices", contractx.ErrSchemaViolation, c.role)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: role=%s returned empty content", contractx.ErrSchemaViolation, c.role)
	}
	return content, nil
}

func (c *sdkCompleter) params(req contractx.CompletionRequest) openaisdk.ChatCompletionNewParams {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 3+2*len(req.History))
	if c.noThink {
		msgs = append(msgs, openaisdk.SystemMessage(noThinkDirective))
	}
	msgs = append(msgs, openaisdk.SystemMessage(req.System))
	for _, turn := range req.History {
		msgs = append(msgs,
			openaisdk.UserMessage(turn.User),
			openaisdk.AssistantMessage(turn.Agent),
		)
	}
	msgs = append(msgs, openaisdk.UserMessage(req.UserMessage))

	params := openaisdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.cfg.ModelName()),
		Messages:    msgs,
		Temperature: openaisdk.Float(float64(c.cfg.Temperature)),
		TopP:        openaisdk.Float(float64(c.cfg.TopP)),
	}
	if c.cfg.MaxCompletionToken != nil && *c.cfg.MaxCompletionToken > 0 {
		params.MaxTokens = openaisdk.Int(int64(*c.cfg.MaxCompletionToken))
	}
	if c.cfg.JSONMode {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}
