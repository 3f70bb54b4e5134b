package llm

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

// NewCompleter builds the Completion Client of one role on the selected backend.
func NewCompleter(
	ctx context.Context,
	cfg Config,
	role contractx.AgentType,
	backend string,
	observe ObserveFunc,
) (contractx.Completer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint := cfg.For(role)

	var (
		completer contractx.Completer
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendEino:
		chatModel, mErr := endpoint.New(ctx)
		if mErr != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, mErr)
		}
		completer, err = NewEinoCompleter(ctx, role, chatModel, cfg.Timeout, cfg.NoThink)
	case BackendSDK:
		completer, err = NewSDKCompleter(role, endpoint, cfg.NoThink)
	default:
		return nil, fmt.Errorf("%w: unknown llm backend %q", contractx.ErrValidation, backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(completer, role, observe), nil
}
