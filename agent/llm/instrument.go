package llm

import (
	"context"
	"time"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

// ObserveFunc receives the outcome of one completion.
type ObserveFunc func(role string, err error, d time.Duration)

// instrumented reports each completion's latency and status.
type instrumented struct {
	role    contractx.AgentType
	next    contractx.Completer
	observe ObserveFunc
}

// Instrument wraps c so every call is passed to observe. A nil observe returns c.
func Instrument(c contractx.Completer, role contractx.AgentType, observe ObserveFunc) contractx.Completer {
	if observe == nil {
		return c
	}
	return &instrumented{role: role, next: c, observe: observe}
}

func (i *instrumented) Complete(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, req)
	i.observe(string(i.role), err, time.Since(start))
	return out, err
}
