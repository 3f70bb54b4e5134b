package orchestratornode

// Outcome names which reply a turn produced.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeSpecialist Outcome = "specialist"
	OutcomeClarify    Outcome = "clarify"
	OutcomeApology    Outcome = "apology"
	OutcomeReprompt   Outcome = "reprompt"
)

const (
	ClarifyReply  = "I'd be happy to help. Are you looking to buy, sell, or rent a property?"
	ApologyReply  = "I'm sorry, I didn't quite catch that. Could you say that again?"
	RepromptReply = "Sorry, I didn't hear anything. Could you repeat that?"
)

// FixedReply returns the canned reply of a non-specialist outcome.
func FixedReply(outcome Outcome) string {
	switch outcome {
	case OutcomeClarify:
		return ClarifyReply
	case OutcomeReprompt:
		return RepromptReply
	case OutcomeApology:
		return ApologyReply
	default:
		return ""
	}
}
