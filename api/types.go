package api

// WebhookRequest is one turn delivered by the telephony provider.
type WebhookRequest struct {
	CallID          string `json:"call_id"`
	Transcript      string `json:"transcript"`
	ResponseID      int    `json:"response_id,omitempty"`
	InteractionType string `json:"interaction_type,omitempty"`
}

type WebhookResponse struct {
	ResponseID      int    `json:"response_id"`
	Content         string `json:"content"`
	ContentComplete bool   `json:"content_complete"`
	EndCall         bool   `json:"end_call"`
}

type EndCallRequest struct {
	Outcome string `json:"outcome,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
