package orchestratornode

import (
	"context"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

// Converse dispatches to the active intent's specialist. History and fields
// change only when the specialist returned a valid reply.
func Converse(ctx context.Context, in *GraphState, models contractx.Registry) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if models == nil {
		return nil, fmt.Errorf("%w: specialist registry is required", contractx.ErrValidation)
	}
	if !in.Call.Routed() {
		return nil, fmt.Errorf("%w: converse on unrouted call", contractx.ErrValidation)
	}

	intent := in.Call.ActiveIntent
	spec, err := models.Specialist(intent)
	if err != nil {
		return apologize(in, err), nil
	}

	resp, err := spec.Run(ctx, contractx.SpecialistRequest{
		Intent:      intent,
		UserMessage: in.Text,
		History:     append([]statex.Turn(nil), in.Call.History...),
		Fields:      maps.Clone(in.Call.CollectedFields),
	})
	if err != nil {
		return apologize(in, err), nil
	}

	in.Merge = in.Call.MergeFields(resp.ExtractedData, in.Now)
	in.Call.AppendTurn(in.Text, resp.ReplyText, in.Now)
	in.Extracted = resp.ExtractedData
	in.Reply = resp.ReplyText
	in.Outcome = OutcomeSpecialist

	if len(in.Merge.Dropped) > 0 {
		log.Warn().
			Str("call_id", in.CallID).
			Str("intent", intent.String()).
			Strs("dropped", in.Merge.Dropped).
			Msg("dropped extracted fields outside vocabulary")
	}
	return in, nil
}

func apologize(in *GraphState, err error) *GraphState {
	log.Warn().Err(err).Str("call_id", in.CallID).Str("intent", in.Call.ActiveIntent.String()).Msg("specialist turn failed")
	in.Outcome = OutcomeApology
	in.Err = err
	return in
}
