package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if in.Outcome != OutcomeSpecialist {
		reply = FixedReply(in.Outcome)
	}
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: no reply for outcome %q", contractx.ErrValidation, in.Outcome)
	}

	return GraphOutput{
		Reply:      reply,
		Outcome:    in.Outcome,
		Intent:     in.Call.ActiveIntent,
		Label:      in.Classification.Intent,
		Classified: in.Classified,
		Merge:      in.Merge,
		Extracted:  in.Extracted,
		Err:        in.Err,
	}, nil
}
