package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

type einoCompleter struct {
	role    contractx.AgentType
	runner  compose.Runnable[contractx.CompletionRequest, string]
	timeout time.Duration
}

var _ contractx.Completer = (*einoCompleter)(nil)

// NewEinoCompleter compiles build_messages -> model -> extract_content around chatModel.
func NewEinoCompleter(
	ctx context.Context,
	role contractx.AgentType,
	chatModel einomodel.BaseChatModel,
	timeout time.Duration,
	noThink bool,
) (contractx.Completer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}

	graph := compose.NewGraph[contractx.CompletionRequest, string]()

	if err := graph.AddLambdaNode("build_messages",
		compose.InvokableLambda(func(ctx context.Context, req contractx.CompletionRequest) ([]*schema.Message, error) {
			return buildMessages(req, noThink), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add completion build node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add completion model node: %w", err)
	}
	if err := graph.AddLambdaNode("extract_content",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (string, error) {
			if msg == nil {
				return "", fmt.Errorf("%w: empty model message", contractx.ErrSchemaViolation)
			}
			return strings.TrimSpace(msg.Content), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add completion extract node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "build_messages"},
		{"build_messages", "model"},
		{"model", "extract_content"},
		{"extract_content", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add completion edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("llm.completion."+string(role)))
	if err != nil {
		return nil, fmt.Errorf("compile completion graph: %w", err)
	}

	return &einoCompleter{role: role, runner: runner, timeout: timeout}, nil
}

func (c *einoCompleter) Complete(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", fmt.Errorf("%w: role=%s", err, c.role)
	}

	callCtx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner.Invoke(callCtx, req)
	if err != nil {
		return "", classifyInvokeError(callCtx, c.role, err)
	}
	if out == "" {
		return "", fmt.Errorf("%w: role=%s returned empty content", contractx.ErrSchemaViolation, c.role)
	}
	return out, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyInvokeError maps deadline expiry to ErrModelTimeout and everything
// else to ErrModelInvoke.
func classifyInvokeError(ctx context.Context, role contractx.AgentType, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: role=%s: %v", contractx.ErrModelTimeout, role, err)
	}
	if errors.Is(err, contractx.ErrSchemaViolation) {
		return fmt.Errorf("role=%s: %w", role, err)
	}
	return fmt.Errorf("%w: role=%s: %v", contractx.ErrModelInvoke, role, err)
}
