package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

const (
	NodeValidateRequest = "validate_request"
	NodeClassifyIntent  = "classify_intent"
	NodeConverse        = "converse"
	NodeFinalizeReply   = "finalize_reply"
)

// GraphInput carries the utterance and the draft call state the turn may mutate.
type GraphInput struct {
	CallID     string
	Transcript string
	Call       *statex.CallState
}

type GraphOutput struct {
	Reply   string
	Outcome Outcome
	Intent  statex.Intent
	// Label is the classifier result when this turn ran classification.
	Label statex.Intent
	// Classified is set when this turn performed the UNROUTED -> ROUTED transition.
	Classified bool
	Merge      statex.MergeResult
	Extracted  map[string]any
	Err        error
}

type GraphState struct {
	CallID string
	Text   string
	Now    time.Time
	Call   *statex.CallState

	Classification contractx.Classification
	Classified     bool

	Reply     string
	Outcome   Outcome
	Merge     statex.MergeResult
	Extracted map[string]any

	// Err is the recoverable failure behind an apology or clarify reply.
	Err error
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	callID := strings.TrimSpace(in.CallID)
	if callID == "" {
		return nil, statex.ErrInvalidCall
	}
	if in.Call == nil {
		return nil, statex.ErrNilCallState
	}
	if in.Call.CallID != callID {
		return nil, fmt.Errorf("%w: call state %q does not match call id %q", contractx.ErrValidation, in.Call.CallID, callID)
	}

	st := &GraphState{
		CallID: callID,
		Text:   strings.TrimSpace(in.Transcript),
		Now:    nowFn().UTC(),
		Call:   in.Call,
	}
	if st.Text == "" {
		st.Outcome = OutcomeReprompt
		if !in.Call.Routed() {
			st.Outcome = OutcomeClarify
		}
	}
	return st, nil
}

// RouteAfterValidate is the first transition: empty utterances skip the
// model, routed calls go straight to their specialist.
func RouteAfterValidate(st *GraphState) (string, error) {
	if st == nil {
		return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	switch {
	case st.Outcome != OutcomeNone:
		return NodeFinalizeReply, nil
	case st.Call.Routed():
		return NodeConverse, nil
	default:
		return NodeClassifyIntent, nil
	}
}
