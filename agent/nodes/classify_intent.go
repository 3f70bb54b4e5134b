package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

// ClassifyIntent runs the history-free classification. A failure or a
// GENERAL result leaves the call unrouted with a clarify outcome.
func ClassifyIntent(ctx context.Context, in *GraphState, classifier contractx.Classifier) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", contractx.ErrValidation)
	}

	res, err := classifier.Classify(ctx, in.Text)
	if err != nil {
		log.Warn().Err(err).Str("call_id", in.CallID).Msg("intent classification failed")
		in.Outcome = OutcomeClarify
		in.Err = err
		return in, nil
	}
	in.Classification = res

	if !res.Intent.Actionable() {
		in.Outcome = OutcomeClarify
		return in, nil
	}

	if err := in.Call.SetIntent(res.Intent, in.Now); err != nil {
		return nil, fmt.Errorf("set intent: %w", err)
	}
	in.Classified = true

	log.Info().Str("call_id", in.CallID).Str("intent", res.Intent.String()).Msg("call routed")
	return in, nil
}

// RouteAfterClassify re-enters the specialist step on the same utterance
// once the call became routed.
func RouteAfterClassify(st *GraphState) (string, error) {
	if st == nil {
		return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if st.Outcome == OutcomeNone && st.Call.Routed() {
		return NodeConverse, nil
	}
	return NodeFinalizeReply, nil
}
